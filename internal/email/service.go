// Package email sends transactional mail through the Resend API. When no
// API key is configured the service logs and drops messages, so local
// development works without credentials.
package email

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/mail"
	"strings"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"

	"github.com/tradeconnect/server/internal/domain/capacity"
)

type Service struct {
	client *resend.Client
	from   string
	logger zerolog.Logger
}

// NewService builds the mail service. An empty apiKey disables sending.
func NewService(apiKey, from string, logger zerolog.Logger) (*Service, error) {
	if apiKey != "" {
		if err := validateAddress(from); err != nil {
			return nil, fmt.Errorf("invalid sender address: %w", err)
		}
	}

	var client *resend.Client
	if apiKey != "" {
		client = resend.NewClient(apiKey)
	}

	return &Service{
		client: client,
		from:   from,
		logger: logger.With().Str("component", "email").Logger(),
	}, nil
}

var promotionTemplate = template.Must(template.New("promotion").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
  <h2>¡Tu lugar está listo!</h2>
  <p>Un lugar se liberó y tu registro pasó de la lista de espera a un lugar reservado.</p>
  <p>Tu reserva vence el <strong>{{.ExpiresAt}}</strong>. Confirma antes de esa hora para conservar tu lugar.</p>
  <p style="color: #888; font-size: 12px;">TradeConnect &middot; {{.Year}}</p>
</body>
</html>`))

type promotionData struct {
	ExpiresAt string
	Year      int
}

// WaitlistPromoted emails the attendee that their waitlist spot converted
// into a seat lock. Implements the capacity notifier contract.
func (s *Service) WaitlistPromoted(ctx context.Context, entry capacity.WaitlistEntry, lock capacity.Lock) {
	if err := s.sendPromotion(ctx, entry, lock); err != nil {
		s.logger.Error().Err(err).
			Str("event_id", entry.EventULID).
			Str("waitlist_entry_id", entry.ID).
			Msg("send promotion email")
	}
}

func (s *Service) sendPromotion(ctx context.Context, entry capacity.WaitlistEntry, lock capacity.Lock) error {
	if err := validateAddress(entry.Email); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}

	if s.client == nil {
		s.logger.Info().
			Str("to", entry.Email).
			Str("event_id", entry.EventULID).
			Msg("email disabled, skipping promotion notification")
		return nil
	}

	var body bytes.Buffer
	err := promotionTemplate.Execute(&body, promotionData{
		ExpiresAt: lock.ExpiresAt.Format("2006-01-02 15:04 MST"),
		Year:      time.Now().Year(),
	})
	if err != nil {
		return fmt.Errorf("render template: %w", err)
	}

	return s.send(ctx, entry.Email, "Tu lugar en el evento está confirmado", body.String())
}

func (s *Service) send(ctx context.Context, to, subject, htmlBody string) error {
	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{to},
		Subject: subject,
		Html:    htmlBody,
	}

	sent, err := s.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		var rateLimitErr *resend.RateLimitError
		if errors.As(err, &rateLimitErr) {
			s.logger.Warn().
				Str("limit", rateLimitErr.Limit).
				Str("reset", rateLimitErr.Reset).
				Msg("resend rate limit exceeded")
		}
		return fmt.Errorf("resend send: %w", err)
	}

	s.logger.Info().Str("email_id", sent.Id).Str("to", to).Msg("email sent")
	return nil
}

func validateAddress(address string) error {
	addr, err := mail.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("invalid email format: %w", err)
	}
	if strings.ContainsAny(addr.Address, "\r\n") {
		return fmt.Errorf("address contains newline characters")
	}
	return nil
}
