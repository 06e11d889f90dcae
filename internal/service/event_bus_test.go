package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case event := <-ch:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestEventBusDeliversToRecipients(t *testing.T) {
	bus := NewEventBus(nil, "", nil, testLogger())

	alice, closeAlice := bus.Subscribe("alice")
	defer closeAlice()
	bob, closeBob := bus.Subscribe("bob")
	defer closeBob()

	var hooked []Event
	bus.OnPublish(func(_ context.Context, event Event) { hooked = append(hooked, event) })

	bus.Publish(context.Background(), Event{Kind: EventReviewRecorded, CompetitionID: 3, Recipients: []string{"alice"}})

	event := receive(t, alice)
	require.Equal(t, EventReviewRecorded, event.Kind)
	require.False(t, event.OccurredAt.IsZero())
	require.Len(t, hooked, 1)

	select {
	case unexpected := <-bob:
		t.Fatalf("bob received %v", unexpected)
	default:
	}
}

func TestEventBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewEventBus(nil, "", nil, testLogger())

	ch, cleanup := bus.Subscribe("alice")
	cleanup()
	cleanup()

	_, open := <-ch
	require.False(t, open)

	bus.Publish(context.Background(), Event{Kind: EventRoundActivated, Recipients: []string{"alice"}})
}

func TestEventBusIgnoresOwnRemoteEcho(t *testing.T) {
	bus := NewEventBus(nil, "", nil, testLogger())
	ch, cleanup := bus.Subscribe("alice")
	defer cleanup()

	own, err := json.Marshal(envelope{Source: bus.nodeID, Event: Event{Kind: EventRoundActivated, Recipients: []string{"alice"}}})
	require.NoError(t, err)
	bus.handleRemote(own)

	foreign, err := json.Marshal(envelope{Source: "another-node", Event: Event{Kind: EventApplicantsEliminated, Recipients: []string{"alice"}}})
	require.NoError(t, err)
	bus.handleRemote(foreign)
	bus.handleRemote([]byte("not json"))

	event := receive(t, ch)
	require.Equal(t, EventApplicantsEliminated, event.Kind)
}

func TestEventBusForwardsAcrossNodesThroughRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := NewEventBus(newClient(), "comphub", nil, testLogger())
	receiver := NewEventBus(newClient(), "comphub", nil, testLogger())
	receiver.Start(ctx)

	ch, cleanup := receiver.Subscribe("creator-1")
	defer cleanup()

	require.Eventually(t, func() bool {
		sender.Publish(ctx, Event{Kind: EventApplicationSubmitted, CompetitionID: 9, Recipients: []string{"creator-1"}})
		select {
		case event := <-ch:
			return event.Kind == EventApplicationSubmitted && event.CompetitionID == 9
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}
