package attendance

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caresync-backend/internal/shift"
)

func TestClockEventRow_ToModel(t *testing.T) {
	at := time.Date(2025, 3, 5, 9, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	row := clockEventRow{
		EventID: 7, EventULID: "01J0000000000000000000000", UserID: 3,
		Type: "OUT", Note: sql.NullString{String: "handover", Valid: true},
		Latitude: 1.5, Longitude: 2.5, ClockedAt: at,
	}

	ev, err := row.toModel()
	require.NoError(t, err)
	assert.Equal(t, shift.Out, ev.Type)
	require.NotNil(t, ev.Note)
	assert.Equal(t, "handover", *ev.Note)
	assert.Equal(t, time.UTC, ev.ClockedAt.Location())
	assert.True(t, ev.ClockedAt.Equal(at))
}

func TestClockEventRow_ToModelRejectsUnknownType(t *testing.T) {
	for _, typ := range []string{"", "in", "BREAK"} {
		_, err := clockEventRow{EventID: 9, Type: typ}.toModel()
		assert.Error(t, err, typ)
	}
}
