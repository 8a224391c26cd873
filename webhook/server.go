package webhook

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"strreconcile.dev/core/logging"
)

// ServerConfig configures the HTTP surface, grounded on
// evalgo-org-eve/http/server.go's ServerConfig/NewEchoServer shape.
type ServerConfig struct {
	BodyLimit string // e.g. "1M"; webhook payloads are small JSON/base64 blobs

	HMACSecret   []byte
	SharedSecret string
	CSVInboxDir  string
}

// DefaultServerConfig mirrors the teacher's DefaultServerConfig defaults
// where they still apply to a webhook-only surface.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{BodyLimit: "1M"}
}

// Server wires the Queue, signature verification, and CSV-attachment
// landing the two endpoints need.
type Server struct {
	cfg    ServerConfig
	queue  *Queue
	logger *logging.ContextLogger
}

// NewServer builds a Server. Callers still need to call NewEcho to obtain
// the *echo.Echo to serve.
func NewServer(cfg ServerConfig, queue *Queue) *Server {
	return &Server{cfg: cfg, queue: queue, logger: logging.New("webhook_server")}
}

// NewEcho builds the *echo.Echo exposing both routes, reusing the
// teacher's middleware stack (logger, recover, body limit, request id)
// minus the CORS/API-key layers, which don't apply to server-to-server
// webhook senders.
func (s *Server) NewEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))
	e.Use(middleware.Recover())
	if s.cfg.BodyLimit != "" {
		e.Use(middleware.BodyLimit(s.cfg.BodyLimit))
	}
	e.Use(middleware.RequestID())

	e.POST("/webhooks/field-service", s.handleFieldService)
	e.POST("/webhooks/email", s.handleEmail)
	return e
}

type okResponse struct {
	Status string `json:"status"`
}

var ok = okResponse{Status: "ok"}

type fieldServiceWebhookPayload struct {
	JobID          string    `json:"job_id"`
	Status         string    `json:"status"`
	ScheduledStart time.Time `json:"scheduled_start"`
}

// handleFieldService implements spec §4.8's field-service endpoint: verify
// signature (HMAC or shared secret; either suffices), enqueue, always
// answer 200 except on malformed JSON (a protocol error, which gets 400).
func (s *Server) handleFieldService(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}

	if !s.verify(c, body) {
		s.logger.Warn("field-service webhook signature verification failed, dropping")
		return c.JSON(http.StatusOK, ok)
	}

	var payload fieldServiceWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed json"})
	}

	s.queue.Enqueue(Event{
		Kind:        KindFieldService,
		ReceivedAt:  time.Now(),
		JobID:       payload.JobID,
		RawStatus:   payload.Status,
		ScheduledAt: payload.ScheduledStart,
		Raw:         body,
	})

	return c.JSON(http.StatusOK, ok)
}

type emailWebhookPayload struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
}

// handleEmail implements spec §4.8's email-with-CSV-attachment endpoint.
// Signature verification is optional here: when neither secret is
// configured, or no signature header is present, the request is accepted
// unverified; a present-but-failing signature is still dropped.
func (s *Server) handleEmail(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}

	if s.hasSignature(c) && !s.verify(c, body) {
		s.logger.Warn("email webhook signature present but invalid, dropping")
		return c.JSON(http.StatusOK, ok)
	}

	var payload emailWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "malformed json"})
	}

	if err := s.landAttachment(payload); err != nil {
		s.logger.WithError(err).Error("failed to land email attachment, dropping event")
		return c.JSON(http.StatusOK, ok)
	}

	s.queue.Enqueue(Event{Kind: KindEmail, ReceivedAt: time.Now(), Raw: body})
	return c.JSON(http.StatusOK, ok)
}

func (s *Server) landAttachment(payload emailWebhookPayload) error {
	if payload.Filename == "" || payload.ContentBase64 == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(payload.ContentBase64)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.cfg.CSVInboxDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.cfg.CSVInboxDir, filepath.Base(payload.Filename)), raw, 0o644)
}

const (
	hmacSignatureHeader = "X-FieldService-Signature"
	sharedSecretHeader  = "X-Internal-Auth"
)

func (s *Server) hasSignature(c echo.Context) bool {
	return c.Request().Header.Get(hmacSignatureHeader) != "" || c.Request().Header.Get(sharedSecretHeader) != ""
}

// verify implements spec §4.8's "either one suffices" authentication rule.
func (s *Server) verify(c echo.Context, body []byte) bool {
	if sig := c.Request().Header.Get(hmacSignatureHeader); sig != "" {
		if VerifyHMAC(s.cfg.HMACSecret, body, sig) {
			return true
		}
	}
	if secret := c.Request().Header.Get(sharedSecretHeader); secret != "" {
		if VerifySharedSecret(s.cfg.SharedSecret, secret) {
			return true
		}
	}
	return false
}
