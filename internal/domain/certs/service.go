// Package certs anchors attendance certificates on a blockchain gateway.
// Registration is asynchronous: the API creates a pending record with the
// certificate's content hash and a background job submits it, recording the
// resulting transaction id.
package certs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tradeconnect/server/internal/clock"
)

var ErrCertificateNotFound = errors.New("certificate not found")

// Certificate statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

type Certificate struct {
	ID             string
	RegistrationID string
	EventULID      string
	AttendeeName   string
	ContentHash    string
	Network        string
	TxID           string
	Status         string
	Attempts       int
	LastError      string
	CreatedAt      time.Time
	ConfirmedAt    *time.Time
}

type Repository interface {
	Create(ctx context.Context, cert Certificate) error
	Get(ctx context.Context, id string) (*Certificate, error)
	List(ctx context.Context, eventULID string, status string, limit int) ([]Certificate, error)
	MarkConfirmed(ctx context.Context, id, txID string, at time.Time) error
	MarkFailed(ctx context.Context, id, lastError string) error
	IncrementAttempts(ctx context.Context, id string) (int, error)
}

// Gateway submits a certificate hash to the chain and returns the
// transaction id.
type Gateway interface {
	Register(ctx context.Context, contentHash, network string) (string, error)
}

// Enqueuer schedules the background submission for a certificate.
type Enqueuer interface {
	EnqueueCertificateSubmission(ctx context.Context, certificateID string) error
}

// EventEmitter announces confirmed registrations (certificate.confirmed).
type EventEmitter interface {
	Emit(ctx context.Context, eventType string, payload any)
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, any) {}

type Service struct {
	repo     Repository
	gateway  Gateway
	enqueuer Enqueuer
	emitter  EventEmitter
	clock    clock.Clock
	network  string
}

func NewService(repo Repository, gateway Gateway, enqueuer Enqueuer, emitter EventEmitter, clk clock.Clock, network string) *Service {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Service{
		repo:     repo,
		gateway:  gateway,
		enqueuer: enqueuer,
		emitter:  emitter,
		clock:    clk,
		network:  network,
	}
}

type RequestInput struct {
	RegistrationID string
	EventULID      string
	AttendeeName   string
	IssuedAt       time.Time
}

// ContentHash derives the deterministic certificate hash that gets anchored.
func ContentHash(in RequestInput) string {
	payload := fmt.Sprintf("%s|%s|%s|%s",
		in.RegistrationID, in.EventULID, in.AttendeeName, in.IssuedAt.UTC().Format(time.RFC3339))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// Request creates a pending certificate record and enqueues its submission.
func (s *Service) Request(ctx context.Context, in RequestInput) (*Certificate, error) {
	cert := Certificate{
		ID:             uuid.NewString(),
		RegistrationID: in.RegistrationID,
		EventULID:      in.EventULID,
		AttendeeName:   in.AttendeeName,
		ContentHash:    ContentHash(in),
		Network:        s.network,
		Status:         StatusPending,
		CreatedAt:      s.clock.Now(),
	}

	if err := s.repo.Create(ctx, cert); err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	if err := s.enqueuer.EnqueueCertificateSubmission(ctx, cert.ID); err != nil {
		return nil, fmt.Errorf("enqueue certificate submission: %w", err)
	}
	return &cert, nil
}

// Submit pushes an unconfirmed certificate to the gateway. Called from the
// background worker; returning an error lets the job retry with backoff, so
// a failed record is picked up again on the next attempt.
func (s *Service) Submit(ctx context.Context, certificateID string) error {
	cert, err := s.repo.Get(ctx, certificateID)
	if err != nil {
		return err
	}
	if cert == nil {
		return ErrCertificateNotFound
	}
	if cert.Status == StatusConfirmed {
		return nil
	}

	if _, err := s.repo.IncrementAttempts(ctx, certificateID); err != nil {
		return fmt.Errorf("increment attempts: %w", err)
	}

	txID, err := s.gateway.Register(ctx, cert.ContentHash, cert.Network)
	if err != nil {
		if markErr := s.repo.MarkFailed(ctx, certificateID, err.Error()); markErr != nil {
			return fmt.Errorf("mark failed: %w", markErr)
		}
		return fmt.Errorf("gateway register: %w", err)
	}

	now := s.clock.Now()
	if err := s.repo.MarkConfirmed(ctx, certificateID, txID, now); err != nil {
		return fmt.Errorf("mark confirmed: %w", err)
	}

	s.emitter.Emit(ctx, "certificate.confirmed", map[string]any{
		"certificateId": cert.ID,
		"eventId":       cert.EventULID,
		"txId":          txID,
		"network":       cert.Network,
		"contentHash":   cert.ContentHash,
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*Certificate, error) {
	cert, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cert == nil {
		return nil, ErrCertificateNotFound
	}
	return cert, nil
}

func (s *Service) List(ctx context.Context, eventULID, status string, limit int) ([]Certificate, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, eventULID, status, limit)
}
