// Package fieldservice implements C2: a typed HTTP client for the
// downstream field-service system that jobs are created in and scheduled
// against. It is the same dependency-injected HTTPClient shape as
// recordstore, grounded directly on hr/client.go (MocoClient's
// domain+token+httpClient fields, NewXWithHTTP constructor for test
// injection), with a token-bucket rate limiter layered on top per
// SPEC_FULL C2 — the teacher's Moco/Personio clients have no rate limiting
// of their own, so this is adopted from the wider example pack's use of
// golang.org/x/time/rate.
package fieldservice

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"strreconcile.dev/core/httpclient"
	"strreconcile.dev/core/logging"
)

// Job mirrors the downstream system's appointment/work-order resource.
type Job struct {
	ID            string
	AppointmentID string
	Status        string
	ScheduledTime time.Time
	PropertyID    string
	ServiceLine   string
	LineItems     []LineItem
}

// CreateJobRequest is the payload for creating a job from a reservation.
type CreateJobRequest struct {
	PropertyID      string
	CustomerID      string
	AddressID       string
	JobTemplateID   string
	JobTypeID       string
	ServiceLine     string
	RequestedTime   time.Time
	ScheduledEnd    time.Time
	ArrivalWindowMinutes int
	AssignedEmployeeID   string
	IdempotencyKey  string
}

// LineItem is one line on a job, cloned from its job template at creation
// time (spec §4.7 "clone the template's line items").
type LineItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client is the typed field-service gateway.
type Client struct {
	http    *httpclient.Client
	baseURL string
	token   string
	logger  *logging.ContextLogger
	limiter *rate.Limiter
}

// New builds a Client rate-limited to ratePerMinute requests per minute
// (SPEC_FULL C2; configured via envconfig.Shared.FieldServiceRateLimitPerMin).
func New(http *httpclient.Client, baseURL, token string, ratePerMinute int) *Client {
	if ratePerMinute <= 0 {
		ratePerMinute = 300
	}
	perSecond := float64(ratePerMinute) / 60.0
	return &Client{
		http:    http,
		baseURL: baseURL,
		token:   token,
		logger:  logging.New("fieldservice"),
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (c *Client) authHeaders(req *httpclient.Request) {
	req.Headers["Authorization"] = "Bearer " + c.token
	req.Headers["Content-Type"] = "application/json"
}

// do waits on the rate limiter, executes the request, and — on a 429 that
// carries a RateLimit-Reset header — sleeps until that reset before
// returning the error, so a caller that retries honors the server's
// stated window instead of spinning (spec: "429 + RateLimit-Reset
// handling", SPEC_FULL C2).
func (c *Client) do(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("fieldservice: rate limiter: %w", err)
	}

	resp, err := c.http.Do(ctx, req)
	if resp != nil && resp.IsRateLimited() {
		if wait := resetWait(resp.Headers); wait > 0 {
			c.logger.WithField("wait_ms", wait.Milliseconds()).Warn("field service rate limited, honoring reset window")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return resp, ctx.Err()
			}
		}
	}
	return resp, err
}

func resetWait(headers map[string]string) time.Duration {
	raw, ok := headers["Ratelimit-Reset"]
	if !ok {
		raw, ok = headers["RateLimit-Reset"]
	}
	if !ok || raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// CreateJob creates a job downstream and returns the created resource.
func (c *Client) CreateJob(ctx context.Context, r CreateJobRequest) (*Job, error) {
	payload := map[string]interface{}{
		"property_id":            r.PropertyID,
		"customer_id":            r.CustomerID,
		"address_id":             r.AddressID,
		"job_template_id":        r.JobTemplateID,
		"job_type_id":            r.JobTypeID,
		"service_line":           r.ServiceLine,
		"arrival_window_minutes": r.ArrivalWindowMinutes,
		"assigned_employee_id":   r.AssignedEmployeeID,
	}
	if !r.RequestedTime.IsZero() {
		payload["requested_time"] = r.RequestedTime.Format(time.RFC3339)
	}
	if !r.ScheduledEnd.IsZero() {
		payload["scheduled_end"] = r.ScheduledEnd.Format(time.RFC3339)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("fieldservice: encode create job: %w", err)
	}

	req := httpclient.NewRequest("POST", c.baseURL+"/jobs")
	c.authHeaders(req)
	req.Body = body
	req.IdempotencyKey = r.IdempotencyKey

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fieldservice: create job: %w", err)
	}

	var job jobEnvelope
	if err := json.Unmarshal(resp.Body, &job); err != nil {
		return nil, fmt.Errorf("fieldservice: decode create job response: %w", err)
	}
	return job.toJob(), nil
}

// GetJob fetches a job's current state, including the downstream schedule
// and status C7/C8 compare against for sync verification.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	req := httpclient.NewRequest("GET", c.baseURL+"/jobs/"+jobID)
	c.authHeaders(req)

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fieldservice: get job %s: %w", jobID, err)
	}

	var job jobEnvelope
	if err := json.Unmarshal(resp.Body, &job); err != nil {
		return nil, fmt.Errorf("fieldservice: decode job %s: %w", jobID, err)
	}
	return job.toJob(), nil
}

// UpdateJobSchedule requests the downstream system reschedule jobID to at.
func (c *Client) UpdateJobSchedule(ctx context.Context, jobID string, at time.Time) error {
	payload := map[string]interface{}{"scheduled_time": at.Format(time.RFC3339)}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("fieldservice: encode schedule update: %w", err)
	}

	req := httpclient.NewRequest("PATCH", c.baseURL+"/jobs/"+jobID+"/schedule")
	c.authHeaders(req)
	req.Body = body

	_, err = c.do(ctx, req)
	if err != nil {
		return fmt.Errorf("fieldservice: update schedule for %s: %w", jobID, err)
	}
	return nil
}

// CloneTemplateLineItems clones templateID's line items onto jobID and
// returns them in template order, so the caller can rename the first one to
// the composed service-line description (spec §4.7 "Job creation").
func (c *Client) CloneTemplateLineItems(ctx context.Context, jobID, templateID string) ([]LineItem, error) {
	payload := map[string]interface{}{"job_template_id": templateID}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("fieldservice: encode clone line items: %w", err)
	}

	req := httpclient.NewRequest("POST", c.baseURL+"/jobs/"+jobID+"/line_items/clone_from_template")
	c.authHeaders(req)
	req.Body = body

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fieldservice: clone line items for job %s: %w", jobID, err)
	}

	var envelope struct {
		LineItems []LineItem `json:"line_items"`
	}
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return nil, fmt.Errorf("fieldservice: decode line items for job %s: %w", jobID, err)
	}
	return envelope.LineItems, nil
}

// UpdateLineItemName renames one line item. The caller retries once with a
// truncated name on a "name too long" validation error (spec §4.7).
func (c *Client) UpdateLineItemName(ctx context.Context, jobID, lineItemID, name string) error {
	payload := map[string]interface{}{"name": name}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("fieldservice: encode line item name: %w", err)
	}

	req := httpclient.NewRequest("PATCH", c.baseURL+"/jobs/"+jobID+"/line_items/"+lineItemID)
	c.authHeaders(req)
	req.Body = body

	_, err = c.do(ctx, req)
	if err != nil {
		return fmt.Errorf("fieldservice: update line item %s on job %s: %w", lineItemID, jobID, err)
	}
	return nil
}

type jobEnvelope struct {
	ID            string     `json:"id"`
	AppointmentID string     `json:"appointment_id"`
	Status        string     `json:"status"`
	ScheduledTime string     `json:"scheduled_time"`
	PropertyID    string     `json:"property_id"`
	ServiceLine   string     `json:"service_line"`
	LineItems     []LineItem `json:"line_items"`
}

func (j jobEnvelope) toJob() *Job {
	job := &Job{
		ID:            j.ID,
		AppointmentID: j.AppointmentID,
		Status:        j.Status,
		PropertyID:    j.PropertyID,
		ServiceLine:   j.ServiceLine,
		LineItems:     j.LineItems,
	}
	if j.ScheduledTime != "" {
		if t, err := time.Parse(time.RFC3339, j.ScheduledTime); err == nil {
			job.ScheduledTime = t
		}
	}
	return job
}
