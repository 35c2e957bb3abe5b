package email

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tradeconnect/server/internal/domain/capacity"
)

func TestNewServiceValidatesSenderWhenEnabled(t *testing.T) {
	_, err := NewService("re_key", "not-an-address", zerolog.Nop())
	require.Error(t, err)

	svc, err := NewService("re_key", "TradeConnect <no-reply@tradeconnect.gt>", zerolog.Nop())
	require.NoError(t, err)
	require.NotNil(t, svc.client)
}

func TestNewServiceDisabledWithoutKey(t *testing.T) {
	svc, err := NewService("", "whatever", zerolog.Nop())
	require.NoError(t, err)
	require.Nil(t, svc.client)
}

func TestSendPromotionSkipsWhenDisabled(t *testing.T) {
	svc, err := NewService("", "no-reply@tradeconnect.gt", zerolog.Nop())
	require.NoError(t, err)

	entry := capacity.WaitlistEntry{ID: "wl-1", EventULID: "01J", Email: "ana@example.com"}
	lock := capacity.Lock{ExpiresAt: time.Now().Add(15 * time.Minute)}
	require.NoError(t, svc.sendPromotion(context.Background(), entry, lock))
}

func TestSendPromotionRejectsBadRecipient(t *testing.T) {
	svc, err := NewService("", "no-reply@tradeconnect.gt", zerolog.Nop())
	require.NoError(t, err)

	entry := capacity.WaitlistEntry{Email: "bad address\r\n"}
	require.Error(t, svc.sendPromotion(context.Background(), entry, capacity.Lock{}))
}

func TestPromotionTemplateRenders(t *testing.T) {
	var buf bytes.Buffer
	err := promotionTemplate.Execute(&buf, promotionData{ExpiresAt: "2025-06-01 12:00 UTC", Year: 2025})
	require.NoError(t, err)
	require.Contains(t, buf.String(), "2025-06-01 12:00 UTC")
}
