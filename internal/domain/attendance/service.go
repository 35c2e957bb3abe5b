// Package attendance tracks registration check-ins and produces per-event
// attendance reports.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tradeconnect/server/internal/clock"
)

var (
	ErrRegistrationNotFound  = errors.New("registration not found")
	ErrRegistrationCancelled = errors.New("registration is cancelled")
)

// Registration statuses.
const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

type Registration struct {
	ID           string
	EventULID    string
	AttendeeName string
	Email        string
	Type         string
	Status       string
	CheckedInAt  *time.Time
	CreatedAt    time.Time
}

// Report aggregates attendance for one event.
type Report struct {
	EventULID      string         `json:"eventId"`
	Registered     int            `json:"registered"`
	CheckedIn      int            `json:"checkedIn"`
	NoShow         int            `json:"noShow"`
	AttendanceRate float64        `json:"attendanceRate"`
	ByType         map[string]int `json:"byType"`
}

type Repository interface {
	GetRegistration(ctx context.Context, id string) (*Registration, error)
	SetCheckedIn(ctx context.Context, id string, at time.Time) error
	Report(ctx context.Context, eventULID string) (Report, error)
}

type Service struct {
	repo  Repository
	clock clock.Clock
}

func NewService(repo Repository, clk clock.Clock) *Service {
	return &Service{repo: repo, clock: clk}
}

// CheckIn marks a registration as attended. Repeated check-ins are idempotent
// and keep the original timestamp.
func (s *Service) CheckIn(ctx context.Context, registrationID string) (*Registration, error) {
	reg, err := s.repo.GetRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, ErrRegistrationNotFound
	}
	if reg.Status == StatusCancelled {
		return nil, ErrRegistrationCancelled
	}
	if reg.CheckedInAt != nil {
		return reg, nil
	}

	now := s.clock.Now()
	if err := s.repo.SetCheckedIn(ctx, registrationID, now); err != nil {
		return nil, fmt.Errorf("set checked in: %w", err)
	}
	reg.CheckedInAt = &now
	return reg, nil
}

// Report returns attendance aggregates for an event. The attendance rate is
// checked-in over registered, 0 when nobody registered.
func (s *Service) Report(ctx context.Context, eventULID string) (Report, error) {
	report, err := s.repo.Report(ctx, eventULID)
	if err != nil {
		return Report{}, err
	}
	if report.Registered > 0 {
		report.AttendanceRate = float64(report.CheckedIn) / float64(report.Registered)
	}
	report.NoShow = report.Registered - report.CheckedIn
	return report, nil
}
