package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	assert.Equal(t, MaxLimit+1, LimitWithBuffer(1000))
}

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{
		CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 123456789, time.FixedZone("CET", 3600)),
		ID:        uuid.MustParse("6f1c1c2e-1d7a-4d8e-9b0a-2f1e6a7b8c9d"),
	}
	token := EncodeCursor(in)
	assert.NotContains(t, token, "=")
	assert.NotContains(t, token, "+")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursor(t *testing.T) {
	c, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, c)

	for _, bad := range []string{"%%%", "bm90IGpzb24", EncodeCursor(Cursor{})} {
		_, err := ParseCursor(bad)
		assert.Error(t, err, "token %q", bad)
	}
}

func TestPage(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	type row struct {
		at time.Time
		id uuid.UUID
	}
	rows := make([]row, 4)
	for i := range rows {
		rows[i] = row{at: base.Add(-time.Duration(i) * time.Minute), id: uuid.New()}
	}
	position := func(r row) Cursor { return Cursor{CreatedAt: r.at, ID: r.id} }

	page, next := Page(rows, 3, position)
	assert.Len(t, page, 3)
	require.NotNil(t, next)
	assert.Equal(t, rows[2].id, next.ID)

	page, next = Page(rows[:2], 3, position)
	assert.Len(t, page, 2)
	assert.Nil(t, next)
}
