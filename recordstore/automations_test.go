package recordstore

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutomationByName_ReturnsNilWhenAbsent(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return mockResponse(http.StatusOK, `{"records":[]}`), nil
		},
	}
	c := newTestClient(mock)

	step, err := c.AutomationByName(context.Background(), "csv_ingest")
	require.NoError(t, err)
	assert.Nil(t, step)
}

func TestAutomationByName_DecodesExistingRow(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Contains(t, req.URL.String(), "/Automations")
			body := `{"records":[{"id":"auto1","fields":{"Name":"csv_ingest","Enabled":false,"Last Run Success":true,"Last Run Duration Seconds":4.5,"Last Run Message":"done"}}]}`
			return mockResponse(http.StatusOK, body), nil
		},
	}
	c := newTestClient(mock)

	step, err := c.AutomationByName(context.Background(), "csv_ingest")
	require.NoError(t, err)
	require.NotNil(t, step)
	assert.Equal(t, "auto1", step.RecordID)
	assert.False(t, step.Enabled)
	assert.True(t, step.LastRunSuccess)
	assert.Equal(t, 4.5, step.LastRunDuration)
}

func TestRecordAutomationResult_CreatesRowWhenAbsent(t *testing.T) {
	var methods []string
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			methods = append(methods, req.Method)
			if req.Method == http.MethodGet {
				return mockResponse(http.StatusOK, `{"records":[]}`), nil
			}
			return mockResponse(http.StatusOK, `{"id":"auto1","fields":{}}`), nil
		},
	}
	c := newTestClient(mock)

	err := c.RecordAutomationResult(context.Background(), AutomationStep{
		Name:            "job_projection",
		LastRunSuccess:  true,
		LastRunDuration: 1.2,
		LastRunMessage:  "✓ 3 jobs created",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"GET", "POST"}, methods)
}

func TestRecordAutomationResult_UpdatesExistingRowPreservingEnabled(t *testing.T) {
	var patched map[string]interface{}
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			if req.Method == http.MethodGet {
				return mockResponse(http.StatusOK, `{"records":[{"id":"auto1","fields":{"Name":"job_projection","Enabled":false}}]}`), nil
			}
			assert.Equal(t, http.MethodPatch, req.Method)
			patched = map[string]interface{}{"path": req.URL.Path}
			return mockResponse(http.StatusOK, `{"id":"auto1","fields":{}}`), nil
		},
	}
	c := newTestClient(mock)

	err := c.RecordAutomationResult(context.Background(), AutomationStep{
		Name:           "job_projection",
		LastRunSuccess: false,
		LastRunMessage: "✗ field-service timeout",
	})
	require.NoError(t, err)
	require.NotNil(t, patched)
	assert.Contains(t, patched["path"], "/Automations/auto1")
}
