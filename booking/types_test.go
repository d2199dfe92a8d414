package booking_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/makersapien/classlog-sub002/booking"
)

func TestCanTransition_StateMachine(t *testing.T) {
	allowed := []struct{ from, to booking.SlotStatus }{
		{booking.SlotAvailable, booking.SlotBooked},
		{booking.SlotAvailable, booking.SlotCancelled},
		{booking.SlotBooked, booking.SlotCompleted},
		{booking.SlotBooked, booking.SlotCancelled},
		{booking.SlotBooked, booking.SlotNoShow},
		{booking.SlotBooked, booking.SlotAvailable},  // re-list on cancel
		{booking.SlotAvailable, booking.SlotNoShow}, // lapsed group slot with seats taken
	}
	for _, tc := range allowed {
		assert.True(t, booking.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}

	// Terminal states never move again, and nothing skips booked.
	denied := []struct{ from, to booking.SlotStatus }{
		{booking.SlotAvailable, booking.SlotCompleted},
		{booking.SlotCompleted, booking.SlotAvailable},
		{booking.SlotCompleted, booking.SlotBooked},
		{booking.SlotCancelled, booking.SlotAvailable},
		{booking.SlotNoShow, booking.SlotBooked},
	}
	for _, tc := range denied {
		assert.False(t, booking.CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestSlotPattern_KeyIsStable(t *testing.T) {
	p := booking.SlotPattern{TeacherID: "tea-1", Weekday: time.Wednesday, StartHour: 9, StartMin: 5}
	assert.Equal(t, "tea-1|3|09:05", p.Key())

	q := booking.SlotPattern{TeacherID: "tea-1", Weekday: time.Wednesday, StartHour: 9, StartMin: 5}
	assert.Equal(t, p.Key(), q.Key())
	assert.NotEqual(t, p.Key(),
		booking.SlotPattern{TeacherID: "tea-1", Weekday: time.Thursday, StartHour: 9, StartMin: 5}.Key())
}

func TestSlot_PatternDerivedFromStartTime(t *testing.T) {
	slot := booking.ScheduleSlot{
		TeacherID: "tea-1",
		StartTime: time.Date(2026, time.March, 4, 15, 30, 0, 0, time.UTC),
		EndTime:   time.Date(2026, time.March, 4, 16, 30, 0, 0, time.UTC),
	}
	p := slot.Pattern()
	assert.Equal(t, time.Wednesday, p.Weekday)
	assert.Equal(t, 15, p.StartHour)
	assert.Equal(t, 30, p.StartMin)
}

func TestTemplate_OccurrenceOn(t *testing.T) {
	tmpl := booking.TimeSlotTemplate{
		TeacherID:       "tea-1",
		DayOfWeek:       time.Friday,
		StartHour:       18,
		StartMinute:     15,
		DurationMinutes: 45,
	}
	day := time.Date(2026, time.March, 6, 0, 0, 0, 0, time.UTC)
	w := tmpl.OccurrenceOn(day)
	assert.Equal(t, time.Date(2026, time.March, 6, 18, 15, 0, 0, time.UTC), w.Start)
	assert.Equal(t, 45*time.Minute, w.End.Sub(w.Start))
}
