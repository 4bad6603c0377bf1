package persistence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xmasacrex/club-rpg/internal/domain"
)

func TestCursorTokenIsOpaqueAndStable(t *testing.T) {
	c := &domain.Cursor{StartedAt: time.Date(2026, 10, 15, 8, 30, 0, 1500, time.UTC), ID: "9b2c"}

	token := EncodeCursor(c)
	require.NotContains(t, token, "|")

	decoded, err := DecodeCursor(token)
	require.NoError(t, err)
	require.True(t, c.StartedAt.Equal(decoded.StartedAt))
	require.Equal(t, c.ID, decoded.ID)
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	c, err := DecodeCursor("  ")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))

	_, err = DecodeCursor("%%%")
	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor("bm9zZXBhcmF0b3I")
	require.ErrorIs(t, err, ErrInvalidCursor)
}
