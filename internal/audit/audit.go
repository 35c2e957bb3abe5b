// Package audit records administrative actions. Entries are persisted for
// the query API and mirrored to the structured log so operators can tail
// them without touching the database.
package audit

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradeconnect/server/internal/auth"
	"github.com/tradeconnect/server/internal/clock"
)

// Entry statuses.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type Entry struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Action       string            `json:"action"`
	Actor        string            `json:"actor"`
	ResourceType string            `json:"resourceType,omitempty"`
	ResourceID   string            `json:"resourceId,omitempty"`
	IPAddress    string            `json:"ipAddress"`
	Status       string            `json:"status"`
	Details      map[string]string `json:"details,omitempty"`
}

type Filters struct {
	Actor        string
	Action       string
	ResourceType string
	ResourceID   string
	Status       string
	From         time.Time
	To           time.Time
	Limit        int
	Offset       int
}

type Repository interface {
	Insert(ctx context.Context, entry Entry) error
	List(ctx context.Context, filters Filters) ([]Entry, int, error)
}

type Service struct {
	repo   Repository
	clock  clock.Clock
	logger zerolog.Logger
}

func NewService(repo Repository, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{repo: repo, clock: clk, logger: logger}
}

// Record persists one entry. Persistence failures are logged, not returned:
// audit writes must never fail the operation they describe.
func (s *Service) Record(ctx context.Context, entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.clock.Now()
	}
	if entry.Actor == "" {
		entry.Actor = "unknown"
	}

	event := s.logger.Info().
		Str("audit_action", entry.Action).
		Str("actor", entry.Actor).
		Str("status", entry.Status).
		Str("ip", entry.IPAddress)
	if entry.ResourceType != "" {
		event = event.Str("resource_type", entry.ResourceType).Str("resource_id", entry.ResourceID)
	}
	event.Msg("audit")

	if err := s.repo.Insert(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("audit_action", entry.Action).Msg("persist audit entry")
	}
}

// RecordFromRequest captures actor and client IP from the request, then
// records the entry.
func (s *Service) RecordFromRequest(r *http.Request, action, resourceType, resourceID, status string, details map[string]string) {
	actor := "unknown"
	if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
		actor = claims.Username
		if actor == "" {
			actor = claims.Subject
		}
	}

	s.Record(r.Context(), Entry{
		Action:       action,
		Actor:        actor,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    ClientIP(r),
		Status:       status,
		Details:      details,
	})
}

// Success records a successful action from an HTTP request.
func (s *Service) Success(r *http.Request, action, resourceType, resourceID string, details map[string]string) {
	s.RecordFromRequest(r, action, resourceType, resourceID, StatusSuccess, details)
}

// Failure records a failed action from an HTTP request.
func (s *Service) Failure(r *http.Request, action, resourceType, resourceID string, details map[string]string) {
	s.RecordFromRequest(r, action, resourceType, resourceID, StatusFailure, details)
}

// Query returns matching entries plus the total count for pagination.
func (s *Service) Query(ctx context.Context, filters Filters) ([]Entry, int, error) {
	if filters.Limit <= 0 || filters.Limit > 200 {
		filters.Limit = 50
	}
	if filters.Offset < 0 {
		filters.Offset = 0
	}
	return s.repo.List(ctx, filters)
}

// ClientIP resolves the caller address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
