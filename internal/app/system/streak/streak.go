// Package streak computes current and best completion streaks from habit
// logs.
//
// A day is kept when at least one log dated that day is done. The current
// streak counts consecutive kept days ending today, or ending yesterday when
// today has no completion yet so an unfinished morning does not read as a
// broken streak. The best streak is the longest run of kept days anywhere in
// the history.
package streak

import (
	"sort"

	"github.com/consistencygrid/consistencygrid/internal/app/system/calendar"
)

// Log is one habit's completion state for one day.
type Log struct {
	Date calendar.Date
	Done bool
}

// Result holds both streak lengths in days.
type Result struct {
	Current int `json:"currentStreak"`
	Best    int `json:"bestStreak"`
}

// Calculate returns the streaks for logs as of today. Logs may be unordered,
// may repeat a date across habits, and may include not-done rows. Logs dated
// after today are ignored.
func Calculate(logs []Log, today calendar.Date) Result {
	kept := KeptDays(logs, today)
	if len(kept) == 0 {
		return Result{}
	}

	return Result{
		Current: current(kept, today),
		Best:    best(kept),
	}
}

// KeptDays returns the set of days on or before today with at least one
// done log.
func KeptDays(logs []Log, today calendar.Date) map[calendar.Date]struct{} {
	kept := make(map[calendar.Date]struct{})
	for _, l := range logs {
		if !l.Done || l.Date.After(today) {
			continue
		}
		kept[l.Date] = struct{}{}
	}
	return kept
}

func current(kept map[calendar.Date]struct{}, today calendar.Date) int {
	day := today
	if _, ok := kept[day]; !ok {
		day = today.AddDays(-1)
	}

	n := 0
	for {
		if _, ok := kept[day]; !ok {
			return n
		}
		n++
		day = day.AddDays(-1)
	}
}

func best(kept map[calendar.Date]struct{}) int {
	days := make([]calendar.Date, 0, len(kept))
	for d := range kept {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	longest, run := 0, 0
	for i, d := range days {
		if i > 0 && days[i-1].AddDays(1) == d {
			run++
		} else {
			run = 1
		}
		if run > longest {
			longest = run
		}
	}
	return longest
}
