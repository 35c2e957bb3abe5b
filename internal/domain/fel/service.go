// Package fel manages electronic invoices issued under Guatemala's Factura
// Electrónica en Línea regime: listing, voiding with a recorded reason, and
// the voided-invoice report.
package fel

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tradeconnect/server/internal/clock"
)

var (
	ErrInvoiceNotFound = errors.New("invoice not found")
	ErrAlreadyVoided   = errors.New("invoice already voided")
	ErrReasonTooShort  = errors.New("void reason too short")
)

// Invoice statuses.
const (
	StatusIssued = "issued"
	StatusVoided = "voided"
)

const minVoidReasonLength = 10

type Invoice struct {
	ID                string
	Series            string
	Number            int64
	AuthorizationUUID string
	RegistrationID    string
	EventULID         string
	AmountCents       int64
	Currency          string
	Status            string
	IssuedAt          time.Time
	VoidedAt          *time.Time
	VoidReason        string
	VoidedBy          string
}

type Filters struct {
	Status    string
	Series    string
	EventULID string
	From      *time.Time
	To        *time.Time
}

type Repository interface {
	List(ctx context.Context, filters Filters, limit int) ([]Invoice, error)
	Get(ctx context.Context, id string) (*Invoice, error)
	MarkVoided(ctx context.Context, id, reason, voidedBy string, at time.Time) error
}

// EventEmitter lets the service announce voids without knowing about the
// webhook subsystem.
type EventEmitter interface {
	Emit(ctx context.Context, eventType string, payload any)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, any) {}

type Service struct {
	repo    Repository
	clock   clock.Clock
	emitter EventEmitter
}

func NewService(repo Repository, clk clock.Clock, emitter EventEmitter) *Service {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Service{repo: repo, clock: clk, emitter: emitter}
}

func (s *Service) List(ctx context.Context, filters Filters, limit int) ([]Invoice, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, filters, limit)
}

func (s *Service) Get(ctx context.Context, id string) (*Invoice, error) {
	invoice, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, ErrInvoiceNotFound
	}
	return invoice, nil
}

// Void marks an issued invoice as voided, recording the acting admin and the
// reason, and emits a fel.invoice.voided event.
func (s *Service) Void(ctx context.Context, id, reason, voidedBy string) (*Invoice, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minVoidReasonLength {
		return nil, ErrReasonTooShort
	}

	invoice, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice.Status == StatusVoided {
		return nil, ErrAlreadyVoided
	}

	now := s.clock.Now()
	if err := s.repo.MarkVoided(ctx, id, reason, voidedBy, now); err != nil {
		return nil, err
	}

	invoice.Status = StatusVoided
	invoice.VoidedAt = &now
	invoice.VoidReason = reason
	invoice.VoidedBy = voidedBy

	s.emitter.Emit(ctx, "fel.invoice.voided", map[string]any{
		"invoiceId": invoice.ID,
		"series":    invoice.Series,
		"number":    invoice.Number,
		"reason":    reason,
		"voidedBy":  voidedBy,
		"voidedAt":  now.Format(time.RFC3339),
	})
	return invoice, nil
}

// Voided lists voided invoices, the report behind the admin page.
func (s *Service) Voided(ctx context.Context, filters Filters, limit int) ([]Invoice, error) {
	filters.Status = StatusVoided
	return s.List(ctx, filters, limit)
}
