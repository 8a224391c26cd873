// Package recordstore implements C1: a typed gateway over the record
// store's HTTP document API (an Airtable-like hosted base reached through
// formula-filtered queries and linked-record references, not a directly
// reachable database server). Every other component reads and writes
// Reservation/Property state exclusively through this package — it is, per
// SPEC_FULL §2, "the bus all other components talk through for persisted
// state."
//
// The typed-wrapper-over-a-document-store shape is grounded on the
// teacher's db/repository/couchdb.go (revision-aware get-before-write,
// one method per document operation); the transport itself is plain HTTP
// REST rather than kivik, because the record store here is a hosted API
// reached over the network, not a CouchDB instance this process dials
// directly (see DESIGN.md).
package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"strreconcile.dev/core/httpclient"
	"strreconcile.dev/core/logging"
	"strreconcile.dev/core/model"
)

// Client is the gateway every component depends on.
type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string
	logger  *logging.ContextLogger

	// BatchSize bounds how many records a single list/query call requests
	// per page (SPEC_FULL C1). Production default 100.
	BatchSize int
}

// New builds a Client against baseURL (the record store's per-environment
// base, e.g. https://store.example/v1/bases/appXXXX) using apiKey for
// bearer authentication.
func New(http *httpclient.Client, baseURL, apiKey string) *Client {
	return &Client{
		http:      http,
		baseURL:   baseURL,
		apiKey:    apiKey,
		logger:    logging.New("recordstore"),
		BatchSize: 100,
	}
}

type recordEnvelope struct {
	ID     string                 `json:"id,omitempty"`
	Fields map[string]interface{} `json:"fields"`
}

type listEnvelope struct {
	Records []recordEnvelope `json:"records"`
	Offset  string           `json:"offset,omitempty"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req := httpclient.NewRequest(method, fullURL)
	req.Headers["Authorization"] = "Bearer " + c.apiKey
	req.Headers["Content-Type"] = "application/json"

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("recordstore: encode request: %w", err)
		}
		req.Body = raw
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		if resp != nil {
			return nil, classify(path, resp.StatusCode, err)
		}
		return nil, classify(path, 0, err)
	}
	return resp.Body, nil
}

// QueryReservations fetches every reservation record matching formula (a
// record-store formula expression, e.g. "{Status} != 'Old'"), paging
// through BatchSize-sized pages until exhausted.
func (c *Client) QueryReservations(ctx context.Context, formula string) ([]*model.Reservation, error) {
	var out []*model.Reservation
	offset := ""

	for {
		q := url.Values{}
		if formula != "" {
			q.Set("filterByFormula", formula)
		}
		q.Set("pageSize", fmt.Sprintf("%d", c.BatchSize))
		if offset != "" {
			q.Set("offset", offset)
		}

		raw, err := c.do(ctx, "GET", "/Reservations", q, nil)
		if err != nil {
			return nil, fmt.Errorf("query reservations: %w", err)
		}

		var page listEnvelope
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("recordstore: decode query page: %w", err)
		}

		for _, rec := range page.Records {
			r, err := decodeReservation(rec)
			if err != nil {
				c.logger.WithError(err).WithField("record_id", rec.ID).Warn("skipping undecodable reservation record")
				continue
			}
			out = append(out, r)
		}

		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}

	return out, nil
}

// ActiveReservationsForKey fetches the non-Old reservations sharing the
// given (UID, FeedURL), the lookup the reconciler (C6) performs at the
// start of every per-event decision (spec §4.6 step 1).
func (c *Client) ActiveReservationsForKey(ctx context.Context, key model.Key) ([]*model.Reservation, error) {
	formula := fmt.Sprintf(
		"AND({UID} = %s, {Feed URL} = %s, {Status} != 'Old')",
		quoteFormula(key.UID), quoteFormula(key.FeedURL),
	)
	return c.QueryReservations(ctx, formula)
}

// AllActiveReservations fetches every non-Old reservation, used by flag
// recomputation (spec §4.6.2) and the removal/sync-verification sweeps,
// which must see the whole active set rather than one key at a time.
func (c *Client) AllActiveReservations(ctx context.Context) ([]*model.Reservation, error) {
	return c.QueryReservations(ctx, "{Status} != 'Old'")
}

// ActiveReservationByJobID fetches the active (non-Old) reservation whose
// Job ID equals jobID, the lookup C8's webhook handler performs to map an
// inbound job-lifecycle event back to its record (spec §4.8). Nil, nil is
// returned when no active record carries that job id (e.g. the event
// named an old_-prefixed id, which the caller drops before ever reaching
// here).
func (c *Client) ActiveReservationByJobID(ctx context.Context, jobID string) (*model.Reservation, error) {
	formula := fmt.Sprintf("AND({Job ID} = %s, {Status} != 'Old')", quoteFormula(jobID))
	matches, err := c.QueryReservations(ctx, formula)
	if err != nil {
		return nil, fmt.Errorf("active reservation by job id %s: %w", jobID, err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func quoteFormula(s string) string {
	return "'" + jsonEscapeSingleQuotes(s) + "'"
}

func jsonEscapeSingleQuotes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\'' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

// GetReservation fetches a single reservation by record id.
func (c *Client) GetReservation(ctx context.Context, recordID string) (*model.Reservation, error) {
	raw, err := c.do(ctx, "GET", "/Reservations/"+recordID, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("get reservation %s: %w", recordID, err)
	}

	var rec recordEnvelope
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("recordstore: decode reservation %s: %w", recordID, err)
	}
	return decodeReservation(rec)
}

// CreateReservation creates a new reservation record. idempotencyKey
// should be derived from the ingest run id plus the reservation's UID
// (SPEC_FULL C1) so a retried create after a lost response does not
// duplicate the record.
func (c *Client) CreateReservation(ctx context.Context, r *model.Reservation, idempotencyKey string) (*model.Reservation, error) {
	fields := encodeReservation(r)
	body := recordEnvelope{Fields: fields}

	fullURL := c.baseURL + "/Reservations"
	req := httpclient.NewRequest("POST", fullURL)
	req.Headers["Authorization"] = "Bearer " + c.apiKey
	req.Headers["Content-Type"] = "application/json"
	req.IdempotencyKey = idempotencyKey

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("recordstore: encode create: %w", err)
	}
	req.Body = raw

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, classify("create_reservation", status, err)
	}

	var rec recordEnvelope
	if err := json.Unmarshal(resp.Body, &rec); err != nil {
		return nil, fmt.Errorf("recordstore: decode create response: %w", err)
	}
	return decodeReservation(rec)
}

// UpdateReservation patches the fields that changed on r, identified by
// r.RecordID. Callers should only call this when identity.ChangeSignature
// or the relevant downstream fields actually differ (spec §4.6 "no writes
// if unchanged").
func (c *Client) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	if r.RecordID == "" {
		return fmt.Errorf("recordstore: update requires a RecordID")
	}
	fields := encodeReservation(r)
	body := recordEnvelope{Fields: fields}

	_, err := c.do(ctx, "PATCH", "/Reservations/"+r.RecordID, nil, body)
	if err != nil {
		return fmt.Errorf("update reservation %s: %w", r.RecordID, err)
	}
	return nil
}

// ListLinkedProperties fetches every Property record, following the
// record store's linked-record convention (spec §3: Property is read-only
// reference data reached through list_linked).
func (c *Client) ListLinkedProperties(ctx context.Context) ([]*model.Property, error) {
	out := make([]*model.Property, 0)
	offset := ""

	for {
		q := url.Values{"pageSize": {"100"}}
		if offset != "" {
			q.Set("offset", offset)
		}

		raw, err := c.do(ctx, "GET", "/Properties", q, nil)
		if err != nil {
			return nil, fmt.Errorf("list properties: %w", err)
		}

		var page listEnvelope
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("recordstore: decode properties page: %w", err)
		}

		for _, rec := range page.Records {
			out = append(out, decodeProperty(rec))
		}

		if page.Offset == "" {
			break
		}
		offset = page.Offset
	}
	return out, nil
}
