package appointment

import "time"

// FreeSlots generates the bookable start times for a facility on a date,
// minus the given taken times. Closed days yield nil. Slot generation is
// close-exclusive: a slot whose end would pass the closing time is not
// offered, so a trailing partial interval is dropped rather than rounded.
func FreeSlots(f *Facility, date time.Time, taken []TimeOfDay) []TimeOfDay {
	hours := f.HoursOn(date)
	if hours == nil {
		return nil
	}

	step := f.Granularity()

	booked := make(map[TimeOfDay]struct{}, len(taken))
	for _, t := range taken {
		booked[t] = struct{}{}
	}

	var free []TimeOfDay
	for t := hours.Open; t.Add(step) <= hours.Close; t = t.Add(step) {
		if _, ok := booked[t]; ok {
			continue
		}
		free = append(free, t)
	}
	return free
}
