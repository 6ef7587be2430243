package slots

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"booking-service/internal/domain"
	"booking-service/internal/timeutil"
)

// indexed by time.Weekday, so 0 is Sunday
var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

// weeklyDates lists the civil dates in [from, to] that fall on dayOfWeek,
// observed in loc.
func weeklyDates(dayOfWeek int, from, to timeutil.Date, loc *time.Location) ([]timeutil.Date, error) {
	if dayOfWeek < 0 || dayOfWeek > 6 {
		return nil, fmt.Errorf("%w: day of week %d out of range", domain.ErrInvalidInput, dayOfWeek)
	}
	// Anchor at noon so a DST change at midnight cannot shift the date.
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[dayOfWeek]},
		Dtstart:   time.Date(from.Year, from.Month, from.Day, 12, 0, 0, 0, loc),
		Until:     time.Date(to.Year, to.Month, to.Day, 12, 0, 0, 0, loc),
	})
	if err != nil {
		return nil, fmt.Errorf("expand weekly rule: %w", err)
	}

	occurrences := r.All()
	dates := make([]timeutil.Date, 0, len(occurrences))
	for _, t := range occurrences {
		dates = append(dates, timeutil.DateOf(t, loc))
	}
	return dates, nil
}
