// Package reports aggregates financial and operational figures across
// events. Queries fan out concurrently and results are cached with a short
// TTL since the numbers tolerate slight staleness.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tradeconnect/server/internal/clock"
)

var ErrInvalidRange = errors.New("report range end must be after start")

// FinancialReport summarizes invoiced revenue for a period.
type FinancialReport struct {
	From           time.Time      `json:"from"`
	To             time.Time      `json:"to"`
	Currency       string         `json:"currency"`
	IssuedCount    int            `json:"issuedCount"`
	IssuedCents    int64          `json:"issuedCents"`
	VoidedCount    int            `json:"voidedCount"`
	VoidedCents    int64          `json:"voidedCents"`
	NetCents       int64          `json:"netCents"`
	RevenueByEvent []EventRevenue `json:"revenueByEvent"`
	RevenueByMonth []MonthRevenue `json:"revenueByMonth"`
	GeneratedAt    time.Time      `json:"generatedAt"`
}

type EventRevenue struct {
	EventULID string `json:"eventId"`
	EventName string `json:"eventName"`
	NetCents  int64  `json:"netCents"`
	Invoices  int    `json:"invoices"`
}

type MonthRevenue struct {
	Month    string `json:"month"`
	NetCents int64  `json:"netCents"`
}

// KPIReport carries the platform-wide operational indicators.
type KPIReport struct {
	From                time.Time `json:"from"`
	To                  time.Time `json:"to"`
	EventsHeld          int       `json:"eventsHeld"`
	TotalRegistrations  int       `json:"totalRegistrations"`
	TotalCheckIns       int       `json:"totalCheckIns"`
	AttendanceRate      float64   `json:"attendanceRate"`
	OccupancyRate       float64   `json:"occupancyRate"`
	WaitlistJoins       int       `json:"waitlistJoins"`
	WaitlistPromotions  int       `json:"waitlistPromotions"`
	WaitlistConversion  float64   `json:"waitlistConversion"`
	AverageSpeakerScore float64   `json:"averageSpeakerScore"`
	GeneratedAt         time.Time `json:"generatedAt"`
}

type InvoiceTotals struct {
	IssuedCount int
	IssuedCents int64
	VoidedCount int
	VoidedCents int64
	Currency    string
}

type RegistrationTotals struct {
	EventsHeld    int
	Registrations int
	CheckIns      int
	SeatsOffered  int
}

type WaitlistTotals struct {
	Joins      int
	Promotions int
}

type Repository interface {
	InvoiceTotals(ctx context.Context, from, to time.Time) (InvoiceTotals, error)
	RevenueByEvent(ctx context.Context, from, to time.Time) ([]EventRevenue, error)
	RevenueByMonth(ctx context.Context, from, to time.Time) ([]MonthRevenue, error)
	RegistrationTotals(ctx context.Context, from, to time.Time) (RegistrationTotals, error)
	WaitlistTotals(ctx context.Context, from, to time.Time) (WaitlistTotals, error)
	AverageSpeakerScore(ctx context.Context, from, to time.Time) (float64, error)
}

// Cache is a best-effort byte store. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
}

type Service struct {
	repo   Repository
	cache  Cache
	clock  clock.Clock
	logger zerolog.Logger
}

func NewService(repo Repository, cache Cache, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{repo: repo, cache: cache, clock: clk, logger: logger}
}

func cacheKey(kind string, from, to time.Time) string {
	return fmt.Sprintf("reports:%s:%s:%s", kind, from.Format("2006-01-02"), to.Format("2006-01-02"))
}

// Financial builds the revenue report for [from, to]. The three underlying
// aggregations run concurrently.
func (s *Service) Financial(ctx context.Context, from, to time.Time) (*FinancialReport, error) {
	if !to.After(from) {
		return nil, ErrInvalidRange
	}

	key := cacheKey("financial", from, to)
	if cached, ok := s.cacheGet(ctx, key); ok {
		var report FinancialReport
		if err := json.Unmarshal(cached, &report); err == nil {
			return &report, nil
		}
	}

	var (
		totals  InvoiceTotals
		byEvent []EventRevenue
		byMonth []MonthRevenue
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		totals, err = s.repo.InvoiceTotals(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		byEvent, err = s.repo.RevenueByEvent(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		byMonth, err = s.repo.RevenueByMonth(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("financial report: %w", err)
	}

	report := &FinancialReport{
		From:           from,
		To:             to,
		Currency:       totals.Currency,
		IssuedCount:    totals.IssuedCount,
		IssuedCents:    totals.IssuedCents,
		VoidedCount:    totals.VoidedCount,
		VoidedCents:    totals.VoidedCents,
		NetCents:       totals.IssuedCents - totals.VoidedCents,
		RevenueByEvent: byEvent,
		RevenueByMonth: byMonth,
		GeneratedAt:    s.clock.Now(),
	}
	s.cachePut(ctx, key, report)
	return report, nil
}

// KPIs builds the operational indicator report for [from, to].
func (s *Service) KPIs(ctx context.Context, from, to time.Time) (*KPIReport, error) {
	if !to.After(from) {
		return nil, ErrInvalidRange
	}

	key := cacheKey("kpis", from, to)
	if cached, ok := s.cacheGet(ctx, key); ok {
		var report KPIReport
		if err := json.Unmarshal(cached, &report); err == nil {
			return &report, nil
		}
	}

	var (
		regs     RegistrationTotals
		waitlist WaitlistTotals
		avgScore float64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		regs, err = s.repo.RegistrationTotals(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		waitlist, err = s.repo.WaitlistTotals(gctx, from, to)
		return err
	})
	g.Go(func() error {
		var err error
		avgScore, err = s.repo.AverageSpeakerScore(gctx, from, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("kpi report: %w", err)
	}

	report := &KPIReport{
		From:                from,
		To:                  to,
		EventsHeld:          regs.EventsHeld,
		TotalRegistrations:  regs.Registrations,
		TotalCheckIns:       regs.CheckIns,
		AttendanceRate:      ratio(regs.CheckIns, regs.Registrations),
		OccupancyRate:       ratio(regs.Registrations, regs.SeatsOffered),
		WaitlistJoins:       waitlist.Joins,
		WaitlistPromotions:  waitlist.Promotions,
		WaitlistConversion:  ratio(waitlist.Promotions, waitlist.Joins),
		AverageSpeakerScore: avgScore,
		GeneratedAt:         s.clock.Now(),
	}
	s.cachePut(ctx, key, report)
	return report, nil
}

func ratio(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole)
}

func (s *Service) cacheGet(ctx context.Context, key string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, key)
}

func (s *Service) cachePut(ctx context.Context, key string, report any) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(report)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache report")
		return
	}
	s.cache.Set(ctx, key, data)
}
