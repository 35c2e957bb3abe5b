package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// EncodeSpeakerCursor encodes the ULID of the last speaker on a page as
// base64(spk:ULID). Speakers order by ULID, which already sorts by creation
// time.
func EncodeSpeakerCursor(ulid string) string {
	value := "spk:" + strings.ToUpper(strings.TrimSpace(ulid))
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// DecodeSpeakerCursor decodes base64(spk:ULID) into the boundary ULID.
func DecodeSpeakerCursor(cursor string) (string, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return "", ErrInvalidCursor
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", ErrInvalidCursor
	}
	value := string(decoded)
	if !strings.HasPrefix(value, "spk:") {
		return "", ErrInvalidCursor
	}
	ulid := strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(value, "spk:")))
	if ulid == "" {
		return "", ErrInvalidCursor
	}
	return ulid, nil
}
