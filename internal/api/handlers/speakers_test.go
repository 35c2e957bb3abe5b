package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tradeconnect/server/internal/api/respond"
	"github.com/tradeconnect/server/internal/clock"
	"github.com/tradeconnect/server/internal/domain/ids"
	"github.com/tradeconnect/server/internal/domain/speakers"
)

type fakeSpeakerRepo struct {
	speaker      *speakers.Speaker
	availability []speakers.AvailabilityBlock
	futureCount  int
	assigned     bool
	deleted      []string
}

func (f *fakeSpeakerRepo) List(_ context.Context, _ speakers.Filters, _ speakers.Pagination) (speakers.ListResult, error) {
	if f.speaker == nil {
		return speakers.ListResult{}, nil
	}
	return speakers.ListResult{Speakers: []speakers.Speaker{*f.speaker}, NextCursor: "next"}, nil
}

func (f *fakeSpeakerRepo) GetByULID(_ context.Context, ulid string) (*speakers.Speaker, error) {
	if f.speaker == nil || f.speaker.ULID != ulid {
		return nil, speakers.ErrNotFound
	}
	return f.speaker, nil
}

func (f *fakeSpeakerRepo) Create(_ context.Context, params speakers.CreateParams) (*speakers.Speaker, error) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &speakers.Speaker{
		ID:        "row-1",
		ULID:      params.ULID,
		FirstName: params.FirstName,
		LastName:  params.LastName,
		Email:     params.Email,
		Bio:       params.Bio,
		Category:  params.Category,
		BaseRate:  params.BaseRate,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (f *fakeSpeakerRepo) Update(_ context.Context, ulid string, params speakers.UpdateParams) (*speakers.Speaker, error) {
	if f.speaker == nil || f.speaker.ULID != ulid {
		return nil, speakers.ErrNotFound
	}
	updated := *f.speaker
	if params.FirstName != nil {
		updated.FirstName = *params.FirstName
	}
	return &updated, nil
}

func (f *fakeSpeakerRepo) Delete(_ context.Context, ulid string) error {
	if f.speaker == nil || f.speaker.ULID != ulid {
		return speakers.ErrNotFound
	}
	f.deleted = append(f.deleted, ulid)
	return nil
}

func (f *fakeSpeakerRepo) SetVerified(_ context.Context, ulid string, verified bool) (*speakers.Speaker, error) {
	if f.speaker == nil || f.speaker.ULID != ulid {
		return nil, speakers.ErrNotFound
	}
	updated := *f.speaker
	updated.Verified = verified
	return &updated, nil
}

func (f *fakeSpeakerRepo) CountFutureAssignments(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.futureCount, nil
}

func (f *fakeSpeakerRepo) HasAssignment(_ context.Context, _ string, _ string) (bool, error) {
	return f.assigned, nil
}

func (f *fakeSpeakerRepo) ListAvailability(_ context.Context, _ string) ([]speakers.AvailabilityBlock, error) {
	return f.availability, nil
}

func (f *fakeSpeakerRepo) CreateAvailability(_ context.Context, params speakers.AvailabilityCreateParams) (*speakers.AvailabilityBlock, error) {
	return &speakers.AvailabilityBlock{
		ID:        "avail-1",
		SpeakerID: params.SpeakerID,
		StartDate: params.StartDate,
		EndDate:   params.EndDate,
		Notes:     params.Notes,
	}, nil
}

func (f *fakeSpeakerRepo) CreateEvaluation(_ context.Context, params speakers.EvaluationCreateParams) (*speakers.Evaluation, error) {
	return &speakers.Evaluation{
		ID:            "eval-1",
		SpeakerID:     params.SpeakerID,
		EventULID:     params.EventULID,
		Evaluator:     params.Evaluator,
		ContentScore:  params.ContentScore,
		DeliveryScore: params.DeliveryScore,
		MaterialScore: params.MaterialScore,
		OverallScore:  params.OverallScore,
		Comments:      params.Comments,
	}, nil
}

type recordedEvent struct {
	eventType string
	payload   any
}

type recordingEmitter struct {
	events []recordedEvent
}

func (e *recordingEmitter) Emit(_ context.Context, eventType string, payload any) {
	e.events = append(e.events, recordedEvent{eventType: eventType, payload: payload})
}

func testSpeaker() *speakers.Speaker {
	return &speakers.Speaker{
		ID:        "row-1",
		ULID:      "01JN5W9V5T3K4M8P2Q6R7S9T0V",
		FirstName: "Ana",
		LastName:  "Morales",
		Email:     "ana@example.com",
		Category:  "keynote",
		BaseRate:  1500,
		Verified:  false,
	}
}

func newSpeakersHandler(repo *fakeSpeakerRepo) (*SpeakersHandler, *recordingEmitter) {
	emitter := &recordingEmitter{}
	svc := speakers.NewService(repo, clock.NewFixed(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
	return &SpeakersHandler{Service: svc, Emitter: emitter, Env: "test"}, emitter
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) respond.Envelope {
	t.Helper()
	var env respond.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSpeakersCreate(t *testing.T) {
	handler, emitter := newSpeakersHandler(&fakeSpeakerRepo{})

	body := `{"firstName":"Ana","lastName":"Morales","email":"Ana@Example.com","category":"keynote","baseRate":1500}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	require.True(t, env.Success)

	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ana@example.com", data["email"])
	require.NotEmpty(t, data["id"])

	require.Len(t, emitter.events, 1)
	require.Equal(t, "speaker.created", emitter.events[0].eventType)
}

func TestSpeakersCreateValidation(t *testing.T) {
	handler, emitter := newSpeakersHandler(&fakeSpeakerRepo{})

	body := `{"firstName":"A","lastName":"Morales","email":"not-an-email","category":"keynote"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.False(t, env.Success)
	require.Equal(t, respond.CodeValidation, env.Error)

	fields, ok := env.Data.(map[string]any)
	require.True(t, ok)
	require.Contains(t, fields, "FirstName")
	require.Contains(t, fields, "Email")
	require.Empty(t, emitter.events)
}

func TestSpeakersCreateRejectsUnknownFields(t *testing.T) {
	handler, _ := newSpeakersHandler(&fakeSpeakerRepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers", strings.NewReader(`{"nombre":"Ana"}`))
	rec := httptest.NewRecorder()
	handler.Create(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeakersGetNotFound(t *testing.T) {
	handler, _ := newSpeakersHandler(&fakeSpeakerRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/speakers/01JN5W9V5T3K4M8P2Q6R7S9T0V", nil)
	req.SetPathValue("id", "01JN5W9V5T3K4M8P2Q6R7S9T0V")
	rec := httptest.NewRecorder()
	handler.Get(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, respond.CodeSpeakerNotFound, env.Error)
}

func TestSpeakersListInvalidFilter(t *testing.T) {
	handler, _ := newSpeakersHandler(&fakeSpeakerRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/speakers?category=singer", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeakersList(t *testing.T) {
	handler, _ := newSpeakersHandler(&fakeSpeakerRepo{speaker: testSpeaker()})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/speakers?category=keynote", nil)
	rec := httptest.NewRecorder()
	handler.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "next", data["nextCursor"])
	require.Len(t, data["items"], 1)
}

func TestSpeakersDeleteBlockedByFutureEvents(t *testing.T) {
	repo := &fakeSpeakerRepo{speaker: testSpeaker(), futureCount: 2}
	handler, emitter := newSpeakersHandler(repo)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/speakers/x", nil)
	req.SetPathValue("id", repo.speaker.ULID)
	rec := httptest.NewRecorder()
	handler.Delete(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, respond.CodeSpeakerHasFutureEvents, env.Error)
	require.Empty(t, repo.deleted)
	require.Empty(t, emitter.events)
}

func TestSpeakersDelete(t *testing.T) {
	repo := &fakeSpeakerRepo{speaker: testSpeaker()}
	handler, emitter := newSpeakersHandler(repo)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/speakers/x", nil)
	req.SetPathValue("id", repo.speaker.ULID)
	rec := httptest.NewRecorder()
	handler.Delete(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{repo.speaker.ULID}, repo.deleted)
	require.Len(t, emitter.events, 1)
	require.Equal(t, "speaker.deleted", emitter.events[0].eventType)
}

func TestSpeakersVerify(t *testing.T) {
	repo := &fakeSpeakerRepo{speaker: testSpeaker()}
	handler, _ := newSpeakersHandler(repo)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers/x/verify", nil)
	req.SetPathValue("id", repo.speaker.ULID)
	rec := httptest.NewRecorder()
	handler.Verify(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	require.Equal(t, true, data["verified"])
}

func TestSpeakersAddAvailabilityConflict(t *testing.T) {
	repo := &fakeSpeakerRepo{
		speaker: testSpeaker(),
		availability: []speakers.AvailabilityBlock{{
			StartDate: time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		}},
	}
	handler, _ := newSpeakersHandler(repo)

	body := `{"startDate":"2026-04-05","endDate":"2026-04-15"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers/x/availability", strings.NewReader(body))
	req.SetPathValue("id", repo.speaker.ULID)
	rec := httptest.NewRecorder()
	handler.AddAvailability(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, respond.CodeAvailabilityConflict, env.Error)
}

func TestSpeakersAddAvailabilityEndBeforeStart(t *testing.T) {
	repo := &fakeSpeakerRepo{speaker: testSpeaker()}
	handler, _ := newSpeakersHandler(repo)

	body := `{"startDate":"2026-04-10","endDate":"2026-04-01"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers/x/availability", strings.NewReader(body))
	req.SetPathValue("id", repo.speaker.ULID)
	rec := httptest.NewRecorder()
	handler.AddAvailability(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSpeakersAddAvailability(t *testing.T) {
	repo := &fakeSpeakerRepo{speaker: testSpeaker()}
	handler, _ := newSpeakersHandler(repo)

	body := `{"startDate":"2026-05-01","endDate":"2026-05-03","notes":"mornings only"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers/x/availability", strings.NewReader(body))
	req.SetPathValue("id", repo.speaker.ULID)
	rec := httptest.NewRecorder()
	handler.AddAvailability(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	require.Equal(t, "2026-05-01", data["startDate"])
	require.Equal(t, "2026-05-03", data["endDate"])
}

func TestSpeakersEvaluateUnassignedEvent(t *testing.T) {
	repo := &fakeSpeakerRepo{speaker: testSpeaker(), assigned: false}
	handler, _ := newSpeakersHandler(repo)

	eventID, err := ids.NewULID()
	require.NoError(t, err)
	body := `{"eventId":"` + eventID + `","evaluator":"Comite","contentScore":5,"deliveryScore":4,"materialScore":4,"overallScore":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers/x/evaluate", strings.NewReader(body))
	req.SetPathValue("id", repo.speaker.ULID)
	rec := httptest.NewRecorder()
	handler.Evaluate(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, respond.CodeSpeakerEventNotFound, env.Error)
}

func TestSpeakersEvaluate(t *testing.T) {
	repo := &fakeSpeakerRepo{speaker: testSpeaker(), assigned: true}
	handler, _ := newSpeakersHandler(repo)

	eventID, err := ids.NewULID()
	require.NoError(t, err)
	body := `{"eventId":"` + eventID + `","evaluator":"Comite","contentScore":5,"deliveryScore":4,"materialScore":4,"overallScore":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/speakers/x/evaluate", strings.NewReader(body))
	req.SetPathValue("id", repo.speaker.ULID)
	rec := httptest.NewRecorder()
	handler.Evaluate(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	require.Equal(t, eventID, data["eventId"])
	require.Equal(t, float64(5), data["contentScore"])
}

func TestSpeakersUpdate(t *testing.T) {
	repo := &fakeSpeakerRepo{speaker: testSpeaker()}
	handler, emitter := newSpeakersHandler(repo)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/speakers/x", strings.NewReader(`{"firstName":"Lucia"}`))
	req.SetPathValue("id", repo.speaker.ULID)
	rec := httptest.NewRecorder()
	handler.Update(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decodeEnvelope(t, rec)
	data := env.Data.(map[string]any)
	require.Equal(t, "Lucia", data["firstName"])
	require.Len(t, emitter.events, 1)
	require.Equal(t, "speaker.updated", emitter.events[0].eventType)
}
