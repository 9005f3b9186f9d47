package dates

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ISOLayout is the canonical calendar-date format used across the service.
const ISOLayout = "2006-01-02"

// Resolution is the canonical outcome of resolving the analyzer's date fields:
// one main date plus a disjoint set of additional occurrence dates.
type Resolution struct {
	MainDate       *time.Time
	RecurringDates []time.Time
	IsRecurring    bool
}

// IsUnspecified reports whether the analyzer returned one of its "no data"
// sentinels. The analyzer emits Spanish sentinels for blank flyer fields, so
// these are treated as absent wherever they appear, not just for dates.
func IsUnspecified(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "no especificado", "gratis":
		return true
	}
	return false
}

// ResolveDates resolves the analyzer's main-date string and recurring-date
// strings into a single main date plus additional recurrence dates, preferring
// future occurrences.
//
// When the recurring hint is set and recurring dates are present they are
// authoritative and mainDateStr is ignored entirely: the analyzer's standalone
// main date is frequently stale for recurring events.
func ResolveDates(mainDateStr string, recurringDates []string, isRecurringHint bool) Resolution {
	return resolveAt(time.Now(), mainDateStr, recurringDates, isRecurringHint)
}

func resolveAt(now time.Time, mainDateStr string, recurringDates []string, isRecurringHint bool) Resolution {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if isRecurringHint && len(recurringDates) > 0 {
		parsed := make([]time.Time, 0, len(recurringDates))
		for _, s := range recurringDates {
			if t := parseAt(now, s); t != nil {
				parsed = append(parsed, *t)
			}
		}
		if len(parsed) > 0 {
			sort.Slice(parsed, func(i, j int) bool { return parsed[i].Before(parsed[j]) })

			var future, past []time.Time
			for _, t := range parsed {
				if !t.Before(today) {
					future = append(future, t)
				} else {
					past = append(past, t)
				}
			}

			if len(future) > 0 {
				// Past occurrences are discarded entirely.
				return Resolution{
					MainDate:       &future[0],
					RecurringDates: append([]time.Time{}, future[1:]...),
					IsRecurring:    len(future) > 1,
				}
			}

			// Everything is in the past: the most recent date wins.
			main := past[len(past)-1]
			return Resolution{
				MainDate:       &main,
				RecurringDates: append([]time.Time{}, past[:len(past)-1]...),
				IsRecurring:    len(parsed) > 1,
			}
		}
		// All recurring strings were unparseable; fall back to the main date.
	}

	if !IsUnspecified(mainDateStr) {
		if t := parseAt(now, mainDateStr); t != nil {
			return Resolution{MainDate: t, RecurringDates: []time.Time{}}
		}
	}

	return Resolution{RecurringDates: []time.Time{}}
}

// ParseDate parses a flexible calendar-date string as produced by the
// analyzer. Accepted forms, with "-" or "/" separators:
//
//	YYYY-MM-DD  when the first component is > 1000 (read year-first)
//	DD-MM-YYYY  otherwise
//	DD-MM       assumed to belong to the current calendar year
//
// The first-component heuristic is intentionally preserved as-is; downstream
// consumers depend on its exact behavior for ambiguous inputs. Returns nil for
// anything unparseable or out of range.
func ParseDate(s string) *time.Time {
	return parseAt(time.Now(), s)
}

func parseAt(now time.Time, s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	sep := "-"
	if strings.Contains(s, "/") {
		sep = "/"
	}

	parts := strings.Split(s, sep)
	nums := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil
		}
		nums = append(nums, n)
	}

	var year, month, day int
	switch len(nums) {
	case 3:
		if nums[0] > 1000 {
			year, month, day = nums[0], nums[1], nums[2]
		} else {
			day, month, year = nums[0], nums[1], nums[2]
		}
	case 2:
		day, month, year = nums[0], nums[1], now.Year()
	default:
		return nil
	}

	if month < 1 || month > 12 || day < 1 || day > 31 {
		return nil
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	return &t
}

// FormatISO renders a resolved date in the canonical YYYY-MM-DD form.
func FormatISO(t time.Time) string {
	return t.Format(ISOLayout)
}

// FormatAllISO renders a list of resolved dates in canonical form.
func FormatAllISO(ts []time.Time) []string {
	out := make([]string, 0, len(ts))
	for _, t := range ts {
		out = append(out, FormatISO(t))
	}
	return out
}
