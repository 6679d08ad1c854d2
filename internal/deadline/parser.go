// Package deadline normalizes free-text deadline phrases ("by friday",
// "within 2 hours", "the 25th") into calendar dates resolved against the
// date of the email that carried them.
package deadline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISODate is the output layout for normalized deadlines.
const ISODate = "2006-01-02"

var monthPrefixes = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March,
	"apr": time.April, "may": time.May, "jun": time.June,
	"jul": time.July, "aug": time.August, "sep": time.September,
	"oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tues": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thurs": time.Thursday, "thur": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// Same-day phrases are matched as substrings, so "please reply urgently"
// and "need it ASAP!" both resolve.
var sameDayPhrases = []string{
	"asap", "as soon as possible", "immediately",
	"right away", "right now", "urgent", "at your earliest",
}

var (
	hoursRe       = regexp.MustCompile(`(?:within|in)\s+\d+\s*(?:hour|hr|minute|min)`)
	beforeEventRe = regexp.MustCompile(`before\s+(?:the|our|my)\s+(?:meeting|call|demo|presentation|review)`)
	weekdayRe     = regexp.MustCompile(`\b(?:(next|this)\s+)?(monday|tuesday|tues|tue|wednesday|wed|thursday|thurs|thur|thu|friday|fri|saturday|sat|sunday|sun|mon)\b`)
	relativeRe    = regexp.MustCompile(`\b(?:in|within)\s+(a|an|\d+)\s+(day|days|week|weeks)\b`)
	plainDaysRe   = regexp.MustCompile(`^(\d+)\s+days?$`)
	isoRe         = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	usDateRe      = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{4})\b`)
	shortUSRe     = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`)
	monthDayRe    = regexp.MustCompile(`\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?\b`)
	dayMonthRe    = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*(?:,?\s+(\d{4}))?\b`)
	bareDayRe     = regexp.MustCompile(`\b(?:the|by)\s+(\d{1,2})(?:st|nd|rd|th)\b`)
)

var nullLike = map[string]bool{
	"null": true, "none": true, "n/a": true, "na": true,
	"no deadline": true, "no date": true, "tbd": true, "to be determined": true,
}

// Normalize resolves a free-text deadline phrase against the reference time
// (the email date, UTC). It returns the deadline as "YYYY-MM-DD" and true,
// or ("", false) when the phrase carries no recoverable date. Rules apply
// in order and the first match wins; matching is by substring, so filler
// text around the phrase is tolerated.
func Normalize(raw string, ref time.Time) (string, bool) {
	txt := strings.ToLower(strings.TrimSpace(raw))
	if txt == "" || nullLike[txt] {
		return "", false
	}

	today := dateOf(ref.UTC())

	// Same-day markers.
	if strings.Contains(txt, "tonight") || strings.Contains(txt, "this evening") {
		return today.Format(ISODate), true
	}
	if strings.Contains(txt, "today") && !strings.Contains(txt, "yesterday") {
		return today.Format(ISODate), true
	}
	if strings.Contains(txt, "end of day") || strings.Contains(txt, "eod") {
		return today.Format(ISODate), true
	}
	if strings.Contains(txt, "close of business") || strings.Contains(txt, "cob") {
		return today.Format(ISODate), true
	}
	for _, p := range sameDayPhrases {
		if strings.Contains(txt, p) {
			return today.Format(ISODate), true
		}
	}
	if hoursRe.MatchString(txt) {
		return today.Format(ISODate), true
	}
	// "before the meeting" and friends: conservative, assume today.
	if beforeEventRe.MatchString(txt) {
		return today.Format(ISODate), true
	}

	// Next-day markers.
	if strings.Contains(txt, "tomorrow") || strings.Contains(txt, "tmrw") {
		return today.AddDate(0, 0, 1).Format(ISODate), true
	}
	if strings.Contains(txt, "first thing") && strings.Contains(txt, "morning") {
		return today.AddDate(0, 0, 1).Format(ISODate), true
	}

	// Weekday references: "friday", "by friday", "this tuesday", "next monday".
	// Bare and "this" resolve to the earliest not-before occurrence (a
	// same-day mention stays same-day); "next" pushes a same-day hit out a week.
	if m := weekdayRe.FindStringSubmatch(txt); m != nil {
		wd := weekdayNames[m[2]]
		ahead := (int(wd) - int(today.Weekday()) + 7) % 7
		if m[1] == "next" && ahead == 0 {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead).Format(ISODate), true
	}

	// Week anchors.
	if strings.Contains(txt, "next week") {
		return today.AddDate(0, 0, 7).Format(ISODate), true
	}
	if strings.Contains(txt, "this week") {
		return upcomingSunday(today).Format(ISODate), true
	}
	if strings.Contains(txt, "end of week") || strings.Contains(txt, "end of the week") || txt == "eow" {
		return upcomingFriday(today).Format(ISODate), true
	}

	// Relative offsets: "in 3 days", "within 5 days", "in a week", "5 days".
	if m := relativeRe.FindStringSubmatch(txt); m != nil {
		n := 1
		if m[1] != "a" && m[1] != "an" {
			n, _ = strconv.Atoi(m[1])
		}
		if strings.HasPrefix(m[2], "week") {
			n *= 7
		}
		return today.AddDate(0, 0, n).Format(ISODate), true
	}
	if m := plainDaysRe.FindStringSubmatch(txt); m != nil {
		n, _ := strconv.Atoi(m[1])
		return today.AddDate(0, 0, n).Format(ISODate), true
	}

	// Month anchors.
	if strings.Contains(txt, "end of month") || txt == "eom" {
		return endOfMonth(today).Format(ISODate), true
	}
	if strings.Contains(txt, "next month") {
		firstOfNext := time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, time.UTC)
		return firstOfNext.Format(ISODate), true
	}

	// Explicit dates. A date with no year stays in the email's year.
	if m := isoRe.FindStringSubmatch(txt); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	if m := usDateRe.FindStringSubmatch(txt); m != nil {
		return buildDate(m[3], m[1], m[2])
	}
	if m := shortUSRe.FindStringSubmatch(txt); m != nil {
		return buildDate(strconv.Itoa(today.Year()), m[1], m[2])
	}
	if m := monthDayRe.FindStringSubmatch(txt); m != nil {
		return namedDate(monthPrefixes[m[1]], m[2], m[3], today)
	}
	if m := dayMonthRe.FindStringSubmatch(txt); m != nil {
		return namedDate(monthPrefixes[m[2]], m[1], m[3], today)
	}

	// Bare day-of-month: "the 25th" lands in the email's month, rolling
	// forward one month once the day has passed.
	if m := bareDayRe.FindStringSubmatch(txt); m != nil {
		day, _ := strconv.Atoi(m[1])
		d := time.Date(today.Year(), today.Month(), day, 0, 0, 0, 0, time.UTC)
		if d.Month() != today.Month() || d.Day() != day {
			return "", false
		}
		if d.Before(today) {
			d = time.Date(today.Year(), today.Month()+1, day, 0, 0, 0, 0, time.UTC)
			if d.Day() != day {
				return "", false
			}
		}
		return d.Format(ISODate), true
	}

	return "", false
}

// namedDate builds a date from a month name match; the year defaults to
// the email's year when the phrase carries none.
func namedDate(month time.Month, dayStr, yearStr string, today time.Time) (string, bool) {
	day, _ := strconv.Atoi(dayStr)
	year := today.Year()
	if yearStr != "" {
		year, _ = strconv.Atoi(yearStr)
	}
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Month() != month || d.Day() != day {
		return "", false
	}
	return d.Format(ISODate), true
}

func buildDate(year, month, day string) (string, bool) {
	y, _ := strconv.Atoi(year)
	m, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return "", false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if int(t.Month()) != m || t.Day() != d {
		return "", false
	}
	return t.Format(ISODate), true
}

func upcomingFriday(today time.Time) time.Time {
	ahead := (int(time.Friday) - int(today.Weekday()) + 7) % 7
	return today.AddDate(0, 0, ahead)
}

// upcomingSunday is the Sunday that closes the current Monday-start week;
// a Sunday reference resolves to itself.
func upcomingSunday(today time.Time) time.Time {
	if today.Weekday() == time.Sunday {
		return today
	}
	ahead := 7 - int(today.Weekday())
	return today.AddDate(0, 0, ahead)
}

func endOfMonth(today time.Time) time.Time {
	return time.Date(today.Year(), today.Month()+1, 0, 0, 0, 0, 0, time.UTC)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
