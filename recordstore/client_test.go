package recordstore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strreconcile.dev/core/httpclient"
	"strreconcile.dev/core/model"
)

type mockHTTPClient struct {
	DoFunc func(req *http.Request) (*http.Response, error)
	calls  []*http.Request
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.calls = append(m.calls, req)
	return m.DoFunc(req)
}

func mockResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(mock *mockHTTPClient) *Client {
	hc := httpclient.New(mock, 5*time.Second)
	return New(hc, "https://store.example/v1/bases/appXXXX", "test-key")
}

func TestQueryReservations_SinglePage(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "Bearer test-key", req.Header.Get("Authorization"))
			assert.Contains(t, req.URL.String(), "/Reservations")
			body := `{"records":[{"id":"rec1","fields":{"UID":"uid-1","Check-in Date":"2026-03-01","Check-out Date":"2026-03-05","Entry Type":"Reservation"}}]}`
			return mockResponse(http.StatusOK, body), nil
		},
	}
	c := newTestClient(mock)

	records, err := c.QueryReservations(context.Background(), "{Status} != 'Old'")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec1", records[0].RecordID)
	assert.Equal(t, "uid-1", records[0].UID)
	assert.Equal(t, model.Date{Year: 2026, Month: 3, Day: 1}, records[0].CheckIn)
}

func TestQueryReservations_Pagination(t *testing.T) {
	page := 0
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			page++
			if page == 1 {
				return mockResponse(http.StatusOK, `{"records":[{"id":"rec1","fields":{"UID":"uid-1"}}],"offset":"cursor-2"}`), nil
			}
			assert.Contains(t, req.URL.String(), "offset=cursor-2")
			return mockResponse(http.StatusOK, `{"records":[{"id":"rec2","fields":{"UID":"uid-2"}}]}`), nil
		},
	}
	c := newTestClient(mock)

	records, err := c.QueryReservations(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec2", records[1].RecordID)
}

func TestQueryReservations_SkipsUndecodableRecord(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			body := `{"records":[{"id":"bad","fields":{"Check-in Date":"not-a-date"}},{"id":"good","fields":{"UID":"uid-2"}}]}`
			return mockResponse(http.StatusOK, body), nil
		},
	}
	c := newTestClient(mock)

	records, err := c.QueryReservations(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "good", records[0].RecordID)
}

func TestCreateReservation_SendsIdempotencyKey(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "run-1-uid-1", req.Header.Get("Idempotency-Key"))
			return mockResponse(http.StatusOK, `{"id":"rec1","fields":{"UID":"uid-1"}}`), nil
		},
	}
	c := newTestClient(mock)

	r := &model.Reservation{UID: "uid-1", PropertyID: "prop-1"}
	created, err := c.CreateReservation(context.Background(), r, "run-1-uid-1")
	require.NoError(t, err)
	assert.Equal(t, "rec1", created.RecordID)
}

func TestUpdateReservation_RequiresRecordID(t *testing.T) {
	c := newTestClient(&mockHTTPClient{})
	err := c.UpdateReservation(context.Background(), &model.Reservation{})
	assert.ErrorContains(t, err, "RecordID")
}

func TestUpdateReservation_Success(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, http.MethodPatch, req.Method)
			return mockResponse(http.StatusOK, `{"id":"rec1","fields":{}}`), nil
		},
	}
	c := newTestClient(mock)

	err := c.UpdateReservation(context.Background(), &model.Reservation{RecordID: "rec1"})
	assert.NoError(t, err)
}

func TestGetReservation_ClassifiesAuthError(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return mockResponse(http.StatusUnauthorized, `{"error":"bad key"}`), nil
		},
	}
	c := newTestClient(mock)

	_, err := c.GetReservation(context.Background(), "rec1")
	assert.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestGetReservation_ClassifiesRetryable(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			return mockResponse(http.StatusServiceUnavailable, "down"), nil
		},
	}
	c := newTestClient(mock)

	_, err := c.GetReservation(context.Background(), "rec1")
	assert.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestListLinkedProperties(t *testing.T) {
	mock := &mockHTTPClient{
		DoFunc: func(req *http.Request) (*http.Response, error) {
			assert.Contains(t, req.URL.String(), "/Properties")
			body := `{"records":[{"id":"prop1","fields":{"Name":"123 Main St","Owner Full Name":"Jane Doe"}}]}`
			return mockResponse(http.StatusOK, body), nil
		},
	}
	c := newTestClient(mock)

	props, err := c.ListLinkedProperties(context.Background())
	require.NoError(t, err)
	require.Len(t, props, 1)
	assert.Equal(t, "123 Main St", props[0].Name)
	assert.Equal(t, "Jane Doe", props[0].OwnerFullName)
}
