// README: Absolute and relative date phrases resolved against a reference day.
package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
)

type dateRole int

const (
	roleAuto dateRole = iota
	roleEnd
)

type dateMatch struct {
	date       civil.Date
	start, end int
	role       dateRole
}

const monthPattern = `(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)`

const weekdayPattern = `(monday|tuesday|wednesday|thursday|friday|saturday|sunday)`

var (
	isoDateRe    = regexp.MustCompile(`\b(\d{4})-(\d{1,2})-(\d{1,2})\b`)
	monthRangeRe = regexp.MustCompile(`\b` + monthPattern + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?\s*(?:-|to|until|through|thru)\s*(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	monthDayRe   = regexp.MustCompile(`\b` + monthPattern + `\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s+(\d{4})\b)?`)
	dayMonthRe   = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?` + monthPattern + `\b(?:,?\s+(\d{4})\b)?`)
	slashDateRe  = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?\b`)
	ordinalDayRe = regexp.MustCompile(`\bthe\s+(\d{1,2})(?:st|nd|rd|th)\b`)
	dayAfterRe   = regexp.MustCompile(`\bday after tomorrow\b`)
	tomorrowRe   = regexp.MustCompile(`\btomorrow\b`)
	todayRe      = regexp.MustCompile(`\b(?:today|tonight)\b`)
	weekdayRe    = regexp.MustCompile(`\b(?:(?:next|this|coming|on)\s+)?` + weekdayPattern + `\b`)
	inSpanRe     = regexp.MustCompile(`\bin\s+(\d+|a|an|` + numberWordPattern + `)\s+(days?|weeks?|months?)\b`)
	nextWeekRe   = regexp.MustCompile(`\bnext\s+week\b`)
	weekendRe    = regexp.MustCompile(`\b(this|next)\s+weekend\b`)
	endMarkerRe  = regexp.MustCompile(`(?:\b(?:return|returning|back|until|till|through|thru|to|check(?:ing)?[\s-]?out)\s+(?:on\s+)?(?:the\s+)?|-\s*)$`)
)

var monthByPrefix = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

// ResolveDate resolves the first date expression in phrase against ref.
func ResolveDate(phrase string, ref civil.Date) (civil.Date, bool) {
	if d, err := civil.ParseDate(strings.TrimSpace(phrase)); err == nil {
		return d, true
	}
	matches := findDates(phrase, ref)
	if len(matches) == 0 {
		return civil.Date{}, false
	}
	return matches[0].date, true
}

// NextWeekday returns the first day strictly after ref that falls on wd.
// A weekday never resolves to ref itself.
func NextWeekday(ref civil.Date, wd time.Weekday) civil.Date {
	diff := (int(wd) - int(weekdayOf(ref)) + 7) % 7
	if diff == 0 {
		diff = 7
	}
	return ref.AddDays(diff)
}

func weekdayOf(d civil.Date) time.Weekday {
	return d.In(time.UTC).Weekday()
}

// findDates returns the date expressions of text in order of appearance.
// Overlapping matches keep the earliest, longest one.
func findDates(text string, ref civil.Date) []dateMatch {
	lower := asciiLower(text)
	var all []dateMatch
	add := func(d civil.Date, start, end int, role dateRole) {
		if d.IsValid() {
			all = append(all, dateMatch{date: d, start: start, end: end, role: role})
		}
	}

	for _, m := range isoDateRe.FindAllStringSubmatchIndex(lower, -1) {
		add(civil.Date{Year: atoi(lower, m, 1), Month: time.Month(atoi(lower, m, 2)), Day: atoi(lower, m, 3)}, m[0], m[1], roleAuto)
	}
	for _, m := range monthRangeRe.FindAllStringSubmatchIndex(lower, -1) {
		month := monthByPrefix[lower[m[2]:m[2]+3]]
		first := inferYear(month, atoi(lower, m, 2), optYear(lower, m, 4), ref)
		last := inferYear(month, atoi(lower, m, 3), optYear(lower, m, 4), ref)
		if last.Before(first) {
			last = last.AddMonths(12)
		}
		add(first, m[0], m[5], roleAuto)
		add(last, m[5], m[1], roleEnd)
	}
	for _, m := range monthDayRe.FindAllStringSubmatchIndex(lower, -1) {
		month := monthByPrefix[lower[m[2]:m[2]+3]]
		add(inferYear(month, atoi(lower, m, 2), optYear(lower, m, 3), ref), m[0], m[1], roleAuto)
	}
	for _, m := range dayMonthRe.FindAllStringSubmatchIndex(lower, -1) {
		month := monthByPrefix[lower[m[4]:m[4]+3]]
		add(inferYear(month, atoi(lower, m, 1), optYear(lower, m, 3), ref), m[0], m[1], roleAuto)
	}
	for _, m := range slashDateRe.FindAllStringSubmatchIndex(lower, -1) {
		year := optYear(lower, m, 3)
		if year > 0 && year < 100 {
			year += 2000
		}
		add(inferYear(time.Month(atoi(lower, m, 1)), atoi(lower, m, 2), year, ref), m[0], m[1], roleAuto)
	}
	for _, m := range ordinalDayRe.FindAllStringSubmatchIndex(lower, -1) {
		day := atoi(lower, m, 1)
		d := civil.Date{Year: ref.Year, Month: ref.Month, Day: day}
		if d.Before(ref) {
			d = civil.Date{Year: ref.Year, Month: ref.Month + 1, Day: day}
			if d.Month > time.December {
				d = civil.Date{Year: ref.Year + 1, Month: time.January, Day: day}
			}
		}
		add(d, m[0], m[1], roleAuto)
	}
	for _, m := range dayAfterRe.FindAllStringIndex(lower, -1) {
		add(ref.AddDays(2), m[0], m[1], roleAuto)
	}
	for _, m := range tomorrowRe.FindAllStringIndex(lower, -1) {
		add(ref.AddDays(1), m[0], m[1], roleAuto)
	}
	for _, m := range todayRe.FindAllStringIndex(lower, -1) {
		add(ref, m[0], m[1], roleAuto)
	}
	for _, m := range weekdayRe.FindAllStringSubmatchIndex(lower, -1) {
		add(NextWeekday(ref, weekdays[lower[m[2]:m[3]]]), m[0], m[1], roleAuto)
	}
	for _, m := range inSpanRe.FindAllStringSubmatchIndex(lower, -1) {
		n := parseCount(lower[m[2]:m[3]])
		switch unit := lower[m[4]:m[5]]; {
		case strings.HasPrefix(unit, "day"):
			add(ref.AddDays(n), m[0], m[1], roleAuto)
		case strings.HasPrefix(unit, "week"):
			add(ref.AddDays(7*n), m[0], m[1], roleAuto)
		case strings.HasPrefix(unit, "month"):
			add(ref.AddMonths(n), m[0], m[1], roleAuto)
		}
	}
	for _, m := range nextWeekRe.FindAllStringIndex(lower, -1) {
		add(NextWeekday(ref, time.Monday), m[0], m[1], roleAuto)
	}
	for _, m := range weekendRe.FindAllStringSubmatchIndex(lower, -1) {
		sat := ref.AddDays((int(time.Saturday) - int(weekdayOf(ref)) + 7) % 7)
		if weekdayOf(ref) == time.Sunday {
			sat = ref
		}
		if lower[m[2]:m[3]] == "next" {
			sat = NextWeekday(sat, time.Saturday)
		}
		add(sat, m[0], m[1], roleAuto)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].start != all[j].start {
			return all[i].start < all[j].start
		}
		return all[i].end > all[j].end
	})
	out := make([]dateMatch, 0, len(all))
	lastEnd := -1
	for _, d := range all {
		if d.start < lastEnd {
			continue
		}
		if d.role == roleAuto && endMarkerRe.MatchString(lower[:d.start]) {
			d.role = roleEnd
		}
		out = append(out, d)
		lastEnd = d.end
	}
	return out
}

// inferYear picks year when given, otherwise the first occurrence of
// month/day on or after ref.
func inferYear(month time.Month, day, year int, ref civil.Date) civil.Date {
	if year > 0 {
		return civil.Date{Year: year, Month: month, Day: day}
	}
	d := civil.Date{Year: ref.Year, Month: month, Day: day}
	if d.Before(ref) {
		d.Year++
	}
	return d
}

func atoi(s string, m []int, group int) int {
	if m[2*group] < 0 {
		return 0
	}
	n, _ := strconv.Atoi(s[m[2*group]:m[2*group+1]])
	return n
}

func optYear(s string, m []int, group int) int {
	if 2*group+1 >= len(m) || m[2*group] < 0 {
		return 0
	}
	return atoi(s, m, group)
}

// asciiLower lower-cases ASCII letters only, so byte offsets into the result
// are valid offsets into the input.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
