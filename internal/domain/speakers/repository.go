package speakers

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("speaker not found")

var ErrHasFutureEvents = errors.New("speaker has future events")

var ErrAvailabilityConflict = errors.New("availability block conflicts with an existing one")

var ErrEndBeforeStart = errors.New("availability end date must be after start date")

var ErrSpeakerEventNotFound = errors.New("speaker is not assigned to event")

type Speaker struct {
	ID        string
	ULID      string
	FirstName string
	LastName  string
	Email     string
	Bio       string
	Category  string
	BaseRate  float64
	Verified  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type AvailabilityBlock struct {
	ID        string
	SpeakerID string
	StartDate time.Time
	EndDate   time.Time
	Notes     string
	CreatedAt time.Time
}

type Evaluation struct {
	ID            string
	SpeakerID     string
	EventULID     string
	Evaluator     string
	ContentScore  int
	DeliveryScore int
	MaterialScore int
	OverallScore  int
	Comments      string
	CreatedAt     time.Time
}

type CreateParams struct {
	ULID      string
	FirstName string
	LastName  string
	Email     string
	Bio       string
	Category  string
	BaseRate  float64
}

type UpdateParams struct {
	FirstName *string
	LastName  *string
	Email     *string
	Bio       *string
	Category  *string
	BaseRate  *float64
}

type AvailabilityCreateParams struct {
	SpeakerID string
	StartDate time.Time
	EndDate   time.Time
	Notes     string
}

type EvaluationCreateParams struct {
	SpeakerID     string
	EventULID     string
	Evaluator     string
	ContentScore  int
	DeliveryScore int
	MaterialScore int
	OverallScore  int
	Comments      string
}

type Filters struct {
	Query    string
	Category string
	Verified *bool
}

type Pagination struct {
	Limit int
	After string
}

type ListResult struct {
	Speakers   []Speaker
	NextCursor string
}

type Repository interface {
	List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error)
	GetByULID(ctx context.Context, ulid string) (*Speaker, error)
	Create(ctx context.Context, params CreateParams) (*Speaker, error)
	Update(ctx context.Context, ulid string, params UpdateParams) (*Speaker, error)
	Delete(ctx context.Context, ulid string) error
	SetVerified(ctx context.Context, ulid string, verified bool) (*Speaker, error)
	CountFutureAssignments(ctx context.Context, speakerID string, from time.Time) (int, error)
	HasAssignment(ctx context.Context, speakerID string, eventULID string) (bool, error)
	ListAvailability(ctx context.Context, speakerID string) ([]AvailabilityBlock, error)
	CreateAvailability(ctx context.Context, params AvailabilityCreateParams) (*AvailabilityBlock, error)
	CreateEvaluation(ctx context.Context, params EvaluationCreateParams) (*Evaluation, error)
}
