package birdc

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	fractionRe  = regexp.MustCompile(`\.\d+$`)
	clockRe     = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)
	monthDayRe  = regexp.MustCompile(`^([A-Za-z]{3})(\d{1,2})$`)
	plainYearRe = regexp.MustCompile(`^\d{4}$`)
)

// Full datetime spellings. Old daemons print the date day first.
var datetimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"02-01-2006 15:04:05",
}

var monthAbbrev = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

// ResolveTime turns one of BIRD's time spellings into an instant in now's
// location. The daemon abbreviates recent values (a clock time for today, a
// month and day for this year), so now anchors the missing parts.
//
// Tried in order: full datetime, date, clock time, month+day, year.
func ResolveTime(raw string, now time.Time) (time.Time, error) {
	value := strings.TrimSpace(raw)
	loc := now.Location()

	for _, layout := range datetimeLayouts {
		if t, err := time.ParseInLocation(layout, fractionRe.ReplaceAllString(value, ""), loc); err == nil {
			return t, nil
		}
	}

	if t, err := time.ParseInLocation("2006-01-02", value, loc); err == nil {
		return t, nil
	}

	if t, ok := resolveClock(value, now); ok {
		return t, nil
	}

	if t, ok := resolveMonthDay(value, now); ok {
		return t, nil
	}

	if plainYearRe.MatchString(value) {
		year, _ := strconv.Atoi(value)
		return time.Date(year, time.January, 1, 0, 0, 0, 0, loc), nil
	}

	return time.Time{}, &TimeError{Raw: raw}
}

// resolveClock handles HH:MM and HH:MM:SS[.frac]. A clock time later than
// now belongs to the previous day.
func resolveClock(value string, now time.Time) (time.Time, bool) {
	value = fractionRe.ReplaceAllString(value, "")
	if !clockRe.MatchString(value) {
		return time.Time{}, false
	}
	layout := "15:04"
	if strings.Count(value, ":") == 2 {
		layout = "15:04:05"
	}
	clock, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, false
	}

	t := time.Date(now.Year(), now.Month(), now.Day(),
		clock.Hour(), clock.Minute(), clock.Second(), 0, now.Location())
	nowClock := time.Date(now.Year(), now.Month(), now.Day(),
		now.Hour(), now.Minute(), now.Second(), 0, now.Location())
	if t.After(nowClock) {
		t = t.AddDate(0, 0, -1)
	}
	return t, true
}

// resolveMonthDay handles "Jun13". The year is the most recent one in which
// that day already passed; today's month-day is taken as a year ago since
// the daemon prints a clock time for anything from today.
func resolveMonthDay(value string, now time.Time) (time.Time, bool) {
	m := monthDayRe.FindStringSubmatch(value)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := monthAbbrev[strings.ToLower(m[1])]
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[2])
	if day < 1 || day > 31 {
		return time.Time{}, false
	}

	var year int
	switch {
	case now.Month() == month:
		if now.Day() <= day {
			year = now.Year() - 1
		} else {
			year = now.Year()
		}
	case now.Month() > month:
		year = now.Year()
	default:
		year = now.Year() - 1
	}

	t := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
	if t.Month() != month {
		// Feb30 and friends normalize into the next month
		return time.Time{}, false
	}
	return t, true
}
