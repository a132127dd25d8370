package appointment

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, s string) TimeOfDay {
	t.Helper()
	tod, err := ParseTimeOfDay(s)
	require.NoError(t, err)
	return tod
}

func timeStrings(slots []TimeOfDay) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}

func testFacility(t *testing.T, open, close string, slotMinutes int) *Facility {
	t.Helper()
	f := &Facility{ID: uuid.New(), Name: "Test Clinic", SlotMinutes: slotMinutes}
	o := mustTime(t, open)
	c := mustTime(t, close)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		f.Hours[wd] = &DayHours{Open: o, Close: c}
	}
	return f
}

// Monday 2024-06-10.
var testDate = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)

func TestFreeSlots_MorningWithOneBooked(t *testing.T) {
	f := testFacility(t, "09:00", "12:00", 30)

	slots := FreeSlots(f, testDate, []TimeOfDay{mustTime(t, "10:00")})

	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:00", "11:30"}, timeStrings(slots))
}

func TestFreeSlots_ClosedDay(t *testing.T) {
	f := testFacility(t, "09:00", "17:00", 30)
	f.Hours[time.Sunday] = nil

	sunday := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, FreeSlots(f, sunday, nil))
}

func TestFreeSlots_PartialTrailingIntervalDropped(t *testing.T) {
	// 45-minute slots over 09:00-10:40: only 09:00 and 09:45 fit; the
	// 10:30 remainder would end past close and is dropped, not rounded.
	f := testFacility(t, "09:00", "10:40", 45)

	slots := FreeSlots(f, testDate, nil)

	assert.Equal(t, []string{"09:00", "09:45"}, timeStrings(slots))
}

func TestFreeSlots_CloseExclusive(t *testing.T) {
	f := testFacility(t, "09:00", "10:00", 30)

	slots := FreeSlots(f, testDate, nil)

	// The 10:00 slot would end at 10:30, past close, so the last one
	// offered is 09:30.
	assert.Equal(t, []string{"09:00", "09:30"}, timeStrings(slots))
}

func TestParseTimeOfDay(t *testing.T) {
	tod, err := ParseTimeOfDay("09:30")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay(9*60+30), tod)
	assert.Equal(t, "09:30", tod.String())

	for _, bad := range []string{"", "9", "24:00", "12:60", "noon", "-1:00"} {
		_, err := ParseTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidTimeOfDay, bad)
	}
}
