package speakers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	cursors "github.com/tradeconnect/server/internal/api/pagination"
	"github.com/tradeconnect/server/internal/clock"
	"github.com/tradeconnect/server/internal/domain/ids"
)

// Categories a speaker can be filed under.
const (
	CategoryKeynote  = "keynote"
	CategoryWorkshop = "workshop"
	CategoryPanel    = "panel"
	CategoryStandard = "standard"
)

func isAllowedCategory(value string) bool {
	switch value {
	case CategoryKeynote, CategoryWorkshop, CategoryPanel, CategoryStandard:
		return true
	default:
		return false
	}
}

type Service struct {
	repo     Repository
	clock    clock.Clock
	validate *validator.Validate
}

func NewService(repo Repository, clk clock.Clock) *Service {
	return &Service{
		repo:     repo,
		clock:    clk,
		validate: validator.New(),
	}
}

type CreateInput struct {
	FirstName string  `json:"firstName" validate:"required,min=2,max=100"`
	LastName  string  `json:"lastName" validate:"required,min=2,max=100"`
	Email     string  `json:"email" validate:"required,email"`
	Bio       string  `json:"bio" validate:"max=2000"`
	Category  string  `json:"category" validate:"required,oneof=keynote workshop panel standard"`
	BaseRate  float64 `json:"baseRate" validate:"gte=0"`
}

type UpdateInput struct {
	FirstName *string  `json:"firstName" validate:"omitempty,min=2,max=100"`
	LastName  *string  `json:"lastName" validate:"omitempty,min=2,max=100"`
	Email     *string  `json:"email" validate:"omitempty,email"`
	Bio       *string  `json:"bio" validate:"omitempty,max=2000"`
	Category  *string  `json:"category" validate:"omitempty,oneof=keynote workshop panel standard"`
	BaseRate  *float64 `json:"baseRate" validate:"omitempty,gte=0"`
}

type AvailabilityInput struct {
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	Notes     string `json:"notes" validate:"max=500"`
}

type EvaluationInput struct {
	EventID       string `json:"eventId" validate:"required"`
	Evaluator     string `json:"evaluator" validate:"required,min=2,max=100"`
	ContentScore  int    `json:"contentScore" validate:"min=1,max=5"`
	DeliveryScore int    `json:"deliveryScore" validate:"min=1,max=5"`
	MaterialScore int    `json:"materialScore" validate:"min=1,max=5"`
	OverallScore  int    `json:"overallScore" validate:"min=1,max=5"`
	Comments      string `json:"comments" validate:"max=2000"`
}

// FieldErrors flattens validator output into a field-to-constraint map for
// the error envelope. Returns nil when err is not a validation error.
func FieldErrors(err error) map[string]any {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return nil
	}
	fields := make(map[string]any, len(invalid))
	for _, fe := range invalid {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*Speaker, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	ulid, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("mint speaker ulid: %w", err)
	}

	return s.repo.Create(ctx, CreateParams{
		ULID:      ulid,
		FirstName: strings.TrimSpace(input.FirstName),
		LastName:  strings.TrimSpace(input.LastName),
		Email:     strings.ToLower(strings.TrimSpace(input.Email)),
		Bio:       strings.TrimSpace(input.Bio),
		Category:  input.Category,
		BaseRate:  input.BaseRate,
	})
}

func (s *Service) List(ctx context.Context, filters Filters, pagination Pagination) (ListResult, error) {
	return s.repo.List(ctx, filters, pagination)
}

func (s *Service) GetByULID(ctx context.Context, ulid string) (*Speaker, error) {
	return s.repo.GetByULID(ctx, ulid)
}

func (s *Service) Update(ctx context.Context, ulid string, input UpdateInput) (*Speaker, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	params := UpdateParams{
		FirstName: trimmed(input.FirstName),
		LastName:  trimmed(input.LastName),
		Email:     lowered(input.Email),
		Bio:       trimmed(input.Bio),
		Category:  input.Category,
		BaseRate:  input.BaseRate,
	}
	return s.repo.Update(ctx, ulid, params)
}

// Delete removes a speaker unless they are assigned to a future event.
func (s *Service) Delete(ctx context.Context, ulid string) error {
	speaker, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return err
	}

	count, err := s.repo.CountFutureAssignments(ctx, speaker.ID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("count future assignments: %w", err)
	}
	if count > 0 {
		return ErrHasFutureEvents
	}

	return s.repo.Delete(ctx, ulid)
}

func (s *Service) Verify(ctx context.Context, ulid string) (*Speaker, error) {
	return s.repo.SetVerified(ctx, ulid, true)
}

// AddAvailability creates an availability block after checking date ordering
// and overlap against the speaker's existing blocks.
func (s *Service) AddAvailability(ctx context.Context, ulid string, input AvailabilityInput) (*AvailabilityBlock, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}

	start, err := parseDate("startDate", input.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := parseDate("endDate", input.EndDate)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, ErrEndBeforeStart
	}

	speaker, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.ListAvailability(ctx, speaker.ID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	for _, block := range existing {
		if start.Before(block.EndDate) && block.StartDate.Before(end) {
			return nil, ErrAvailabilityConflict
		}
	}

	return s.repo.CreateAvailability(ctx, AvailabilityCreateParams{
		SpeakerID: speaker.ID,
		StartDate: start,
		EndDate:   end,
		Notes:     strings.TrimSpace(input.Notes),
	})
}

// Evaluate records a post-event evaluation. The speaker must be assigned to
// the event being evaluated.
func (s *Service) Evaluate(ctx context.Context, ulid string, input EvaluationInput) (*Evaluation, error) {
	if err := s.validate.Struct(input); err != nil {
		return nil, err
	}
	if err := ids.ValidateULID(input.EventID); err != nil {
		return nil, FilterError{Field: "eventId", Message: "invalid ULID"}
	}

	speaker, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}

	assigned, err := s.repo.HasAssignment(ctx, speaker.ID, input.EventID)
	if err != nil {
		return nil, fmt.Errorf("check assignment: %w", err)
	}
	if !assigned {
		return nil, ErrSpeakerEventNotFound
	}

	return s.repo.CreateEvaluation(ctx, EvaluationCreateParams{
		SpeakerID:     speaker.ID,
		EventULID:     input.EventID,
		Evaluator:     strings.TrimSpace(input.Evaluator),
		ContentScore:  input.ContentScore,
		DeliveryScore: input.DeliveryScore,
		MaterialScore: input.MaterialScore,
		OverallScore:  input.OverallScore,
		Comments:      strings.TrimSpace(input.Comments),
	})
}

type FilterError struct {
	Field   string
	Message string
}

func (e FilterError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ParseFilters builds list filters from query parameters.
func ParseFilters(values url.Values) (Filters, Pagination, error) {
	filters := Filters{}
	pagination := Pagination{Limit: 50}

	filters.Query = strings.TrimSpace(values.Get("q"))

	category := strings.ToLower(strings.TrimSpace(values.Get("category")))
	if category != "" {
		if !isAllowedCategory(category) {
			return filters, pagination, FilterError{Field: "category", Message: "unsupported category"}
		}
		filters.Category = category
	}

	if raw := strings.TrimSpace(values.Get("verified")); raw != "" {
		verified, err := strconv.ParseBool(raw)
		if err != nil {
			return filters, pagination, FilterError{Field: "verified", Message: "must be true or false"}
		}
		filters.Verified = &verified
	}

	limit, err := parseLimit(values)
	if err != nil {
		return filters, pagination, err
	}
	pagination.Limit = limit

	// The cursor is the base64 token handed out as nextCursor, not a bare
	// ULID; decode before trusting the boundary value.
	after := strings.TrimSpace(values.Get("after"))
	if after != "" {
		boundary, err := cursors.DecodeSpeakerCursor(after)
		if err != nil {
			return filters, pagination, FilterError{Field: "after", Message: "must be a cursor from a previous page"}
		}
		if err := ids.ValidateULID(boundary); err != nil {
			return filters, pagination, FilterError{Field: "after", Message: "must be a cursor from a previous page"}
		}
	}
	pagination.After = after

	return filters, pagination, nil
}

func parseLimit(values url.Values) (int, error) {
	limit := 50
	rawLimit := strings.TrimSpace(values.Get("limit"))
	if rawLimit == "" {
		return limit, nil
	}
	parsed, err := strconv.Atoi(rawLimit)
	if err != nil {
		return 0, FilterError{Field: "limit", Message: "must be a number"}
	}
	if parsed < 1 || parsed > 200 {
		return 0, FilterError{Field: "limit", Message: "must be between 1 and 200"}
	}
	return parsed, nil
}

func parseDate(field string, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, FilterError{Field: field, Message: "must be ISO8601 date"}
	}
	return parsed, nil
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	return &v
}

func lowered(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*value))
	return &v
}
