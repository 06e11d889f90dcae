package handler_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/competition-hub-api/internal/service"
)

func startFiberServer(t *testing.T, app *fiber.App) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	t.Cleanup(func() {
		_ = app.ShutdownWithTimeout(time.Second)
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
		}
	})

	return "http://" + listener.Addr().String()
}

// publishUntil keeps publishing until stop is closed, covering the gap between
// connecting and the server-side subscription.
func publishUntil(bus *service.EventBus, event service.Event, stop <-chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		bus.Publish(context.Background(), event)
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func TestEventsWebsocketDeliversRecipientEvents(t *testing.T) {
	f := newAPIFixture(t)
	baseURL := startFiberServer(t, f.app)

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}
	conn, resp, err := dialer.Dial("ws"+strings.TrimPrefix(baseURL, "http")+"/api/v1/events/ws", http.Header{"X-User": {"bob"}})
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	roundID := uint(4)
	go publishUntil(f.bus, service.Event{
		Kind:          service.EventRoundActivated,
		CompetitionID: 9,
		RoundID:       &roundID,
		Recipients:    []string{"bob"},
		OccurredAt:    time.Now().UTC(),
	}, stop)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var event service.Event
	require.NoError(t, conn.ReadJSON(&event))
	require.Equal(t, service.EventRoundActivated, event.Kind)
	require.EqualValues(t, 9, event.CompetitionID)
	require.Equal(t, roundID, *event.RoundID)
}

func TestEventsWebsocketRequiresUpgrade(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(http.MethodGet, "/api/v1/events/ws", "bob", nil, "")
	require.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/v1/events/ws", "", nil, "")
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestEventsStreamWritesServerSentEvents(t *testing.T) {
	f := newAPIFixture(t)
	baseURL := startFiberServer(t, f.app)

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/events/stream", nil)
	require.NoError(t, err)
	req.Header.Set("X-User", "alice")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	stop := make(chan struct{})
	defer close(stop)
	applicationID := uint(12)
	go publishUntil(f.bus, service.Event{
		Kind:          service.EventApplicationSubmitted,
		CompetitionID: 3,
		ApplicationID: &applicationID,
		Recipients:    []string{"alice"},
		OccurredAt:    time.Now().UTC(),
	}, stop)

	reader := bufio.NewReader(resp.Body)
	var kind string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)

		if strings.HasPrefix(line, "event: ") {
			kind = strings.TrimPrefix(line, "event: ")
			continue
		}
		if strings.HasPrefix(line, "data: ") {
			var event service.Event
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
			require.Equal(t, string(service.EventApplicationSubmitted), kind)
			require.Equal(t, applicationID, *event.ApplicationID)
			require.Equal(t, []string{"alice"}, event.Recipients)
			return
		}
	}
}
