package handler_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/competition-hub-api/internal/dto"
)

func compileSchema(t *testing.T, name string) *jsonschema.Schema {
	t.Helper()
	schemaPath, err := filepath.Abs(filepath.Join("testdata", name))
	require.NoError(t, err)

	compiler := jsonschema.NewCompiler()
	schema, err := compiler.Compile("file://" + filepath.ToSlash(schemaPath))
	require.NoError(t, err)
	return schema
}

func validateBody(t *testing.T, schema *jsonschema.Schema, resp *http.Response) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	var payload interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.NoError(t, schema.Validate(payload))
}

func TestCompetitionContract(t *testing.T) {
	schema := compileSchema(t, "competition.schema.json")
	f := newAPIFixture(t)

	competition := f.createCompetition("alice", dto.CompetitionCreateRequest{
		Title:            "Contract Cup",
		Description:      "<p>Bring your best essay</p>",
		EvaluationPolicy: "POINTS",
		Rounds:           []dto.RoundInput{{Description: "Only round", Deadline: day(7)}},
	})
	resp := f.submit(fmt.Sprintf("/api/v1/competitions/%d/applications", competition.ID), "bob", "essay.pdf", pdfContent, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = f.do(http.MethodGet, fmt.Sprintf("/api/v1/competitions/%d", competition.ID), "alice", nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, schema, resp)
}

func TestNotificationContract(t *testing.T) {
	schema := compileSchema(t, "notifications.schema.json")
	f := newAPIFixture(t)

	competition := f.createCompetition("alice", dto.CompetitionCreateRequest{
		Title:               "Contract Notices",
		EvaluationPolicy:    "TEXT",
		ApplicationDeadline: day(7),
	})
	resp := f.submit(fmt.Sprintf("/api/v1/competitions/%d/applications", competition.ID), "bob", "essay.pdf", pdfContent, nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp = f.do(http.MethodGet, "/api/v1/notifications/submissions", "alice", nil, "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	validateBody(t, schema, resp)
}
