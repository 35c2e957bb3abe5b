package attendance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tradeconnect/server/internal/clock"
)

var testNow = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

type stubAttendanceRepo struct {
	getFn     func(id string) (*Registration, error)
	checkInFn func(id string, at time.Time) error
	reportFn  func(eventULID string) (Report, error)
}

func (s stubAttendanceRepo) GetRegistration(_ context.Context, id string) (*Registration, error) {
	return s.getFn(id)
}

func (s stubAttendanceRepo) SetCheckedIn(_ context.Context, id string, at time.Time) error {
	return s.checkInFn(id, at)
}

func (s stubAttendanceRepo) Report(_ context.Context, eventULID string) (Report, error) {
	return s.reportFn(eventULID)
}

func TestCheckIn(t *testing.T) {
	var recordedAt time.Time
	repo := stubAttendanceRepo{
		getFn: func(id string) (*Registration, error) {
			return &Registration{ID: id, Status: StatusConfirmed}, nil
		},
		checkInFn: func(_ string, at time.Time) error {
			recordedAt = at
			return nil
		},
	}
	service := NewService(repo, clock.NewFixed(testNow))

	reg, err := service.CheckIn(context.Background(), "reg-1")
	require.NoError(t, err)
	require.NotNil(t, reg.CheckedInAt)
	require.Equal(t, testNow, recordedAt)
}

func TestCheckInIdempotent(t *testing.T) {
	earlier := testNow.Add(-time.Hour)
	repo := stubAttendanceRepo{
		getFn: func(id string) (*Registration, error) {
			return &Registration{ID: id, Status: StatusConfirmed, CheckedInAt: &earlier}, nil
		},
		checkInFn: func(string, time.Time) error {
			t.Fatal("repeated check-in must not write")
			return nil
		},
	}
	service := NewService(repo, clock.NewFixed(testNow))

	reg, err := service.CheckIn(context.Background(), "reg-1")
	require.NoError(t, err)
	require.Equal(t, earlier, *reg.CheckedInAt)
}

func TestCheckInNotFound(t *testing.T) {
	repo := stubAttendanceRepo{
		getFn: func(string) (*Registration, error) { return nil, nil },
	}
	service := NewService(repo, clock.NewFixed(testNow))

	_, err := service.CheckIn(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRegistrationNotFound)
}

func TestCheckInCancelled(t *testing.T) {
	repo := stubAttendanceRepo{
		getFn: func(id string) (*Registration, error) {
			return &Registration{ID: id, Status: StatusCancelled}, nil
		},
	}
	service := NewService(repo, clock.NewFixed(testNow))

	_, err := service.CheckIn(context.Background(), "reg-1")
	require.ErrorIs(t, err, ErrRegistrationCancelled)
}

func TestReportComputesRateAndNoShows(t *testing.T) {
	repo := stubAttendanceRepo{
		reportFn: func(eventULID string) (Report, error) {
			return Report{
				EventULID:  eventULID,
				Registered: 200,
				CheckedIn:  150,
				ByType:     map[string]int{"general": 180, "vip": 20},
			}, nil
		},
	}
	service := NewService(repo, clock.NewFixed(testNow))

	report, err := service.Report(context.Background(), "01HQZX3Y4K6F7G8H9J0K1M2N3P")
	require.NoError(t, err)
	require.Equal(t, 50, report.NoShow)
	require.InDelta(t, 0.75, report.AttendanceRate, 0.0001)
}

func TestReportEmptyEvent(t *testing.T) {
	repo := stubAttendanceRepo{
		reportFn: func(eventULID string) (Report, error) {
			return Report{EventULID: eventULID}, nil
		},
	}
	service := NewService(repo, clock.NewFixed(testNow))

	report, err := service.Report(context.Background(), "01HQZX3Y4K6F7G8H9J0K1M2N3P")
	require.NoError(t, err)
	require.Zero(t, report.AttendanceRate)
	require.Zero(t, report.NoShow)
}
