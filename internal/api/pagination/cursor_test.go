package pagination

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSpeakerCursorRoundTrip(t *testing.T) {
	cursor := EncodeSpeakerCursor("01jexample0000000000000000")
	ulid, err := DecodeSpeakerCursor(cursor)
	require.NoError(t, err)
	require.Equal(t, "01JEXAMPLE0000000000000000", ulid)
}

func TestDecodeSpeakerCursorRejectsGarbage(t *testing.T) {
	for _, cursor := range []string{
		"",
		"   ",
		"not-base64!!",
		base64.RawURLEncoding.EncodeToString([]byte("wrong:01J")),
		base64.RawURLEncoding.EncodeToString([]byte("spk:")),
	} {
		_, err := DecodeSpeakerCursor(cursor)
		require.ErrorIs(t, err, ErrInvalidCursor, "cursor %q", cursor)
	}
}
