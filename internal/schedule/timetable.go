package schedule

import (
	"sort"
	"time"

	"departureboard.app/gtfsdb"
)

const timetableKeyLayout = "2006-01-02 15:04:05"

// serviceDays are the three local midnights a query can touch.
type serviceDays struct {
	yesterday time.Time
	today     time.Time
	tomorrow  time.Time
}

func newServiceDays(now time.Time, loc *time.Location) serviceDays {
	today := midnight(now, loc)
	return serviceDays{
		yesterday: today.AddDate(0, 0, -1),
		today:     today,
		tomorrow:  today.AddDate(0, 0, 1),
	}
}

// placement is one day a departure row is scheduled on.
type placement struct {
	day  DayTag
	date time.Time
}

// place resolves the service days on which a row runs, given the seconds
// since service midnight of the departure. A service day's times past
// 24:00 spill onto the following calendar date.
func (d serviceDays) place(dep int64, yesterday, today, tomorrow bool, calendarDate string, exceptionType int64) []placement {
	offsetDays := int(dep / secondsPerDay)
	added := func(date time.Time) bool {
		return exceptionType == gtfsdb.ExceptionAdded && calendarDate == date.Format(gtfsdb.DateLayout)
	}

	var out []placement
	if yesterday && offsetDays >= 1 {
		out = append(out, placement{Yesterday, d.yesterday.AddDate(0, 0, offsetDays)})
	}
	if today || added(d.today) {
		out = append(out, placement{Today, d.today.AddDate(0, 0, offsetDays)})
	}
	if (tomorrow || added(d.tomorrow)) && offsetDays == 0 {
		out = append(out, placement{Tomorrow, d.tomorrow})
	}
	return out
}

// Timetable holds the candidate departures of one query keyed by their
// local origin departure instant.
type Timetable struct {
	entries map[string]*CandidateDeparture
}

func buildTimetable(rows []gtfsdb.CandidateDepartureRow, days serviceDays) *Timetable {
	tt := &Timetable{entries: make(map[string]*CandidateDeparture, len(rows))}
	for _, row := range rows {
		dep := row.Origin.DepartureTime
		for _, p := range days.place(dep, row.Yesterday, row.Today, row.Tomorrow, row.CalendarDate, row.TodayCD) {
			c := candidateFromRow(row)
			c.Day = p.day
			c.At = wallClock(p.date, dep)
			tt.entries[c.At.Format(timetableKeyLayout)] = &c
		}
	}
	tt.markBoundaries()
	return tt
}

// Len returns the number of timetable entries.
func (tt *Timetable) Len() int {
	return len(tt.entries)
}

// Sorted returns the entries in ascending key order.
func (tt *Timetable) Sorted() []*CandidateDeparture {
	keys := make([]string, 0, len(tt.entries))
	for k := range tt.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*CandidateDeparture, len(keys))
	for i, k := range keys {
		out[i] = tt.entries[k]
	}
	return out
}

// After returns the entries strictly after now, ascending.
func (tt *Timetable) After(now time.Time) []*CandidateDeparture {
	var out []*CandidateDeparture
	for _, c := range tt.Sorted() {
		if c.At.After(now) {
			out = append(out, c)
		}
	}
	return out
}

// markBoundaries flags the first departure of today and tomorrow and the
// last departure of the yesterday rollover and of today.
func (tt *Timetable) markBoundaries() {
	firstSeen := map[DayTag]bool{}
	last := map[DayTag]*CandidateDeparture{}
	for _, c := range tt.Sorted() {
		if (c.Day == Today || c.Day == Tomorrow) && !firstSeen[c.Day] {
			c.First = true
			firstSeen[c.Day] = true
		}
		if c.Day == Yesterday || c.Day == Today {
			last[c.Day] = c
		}
	}
	for _, c := range last {
		c.Last = true
	}
}
