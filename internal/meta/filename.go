package meta

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Filename conventions seen in the field, tried in order. The first two
// tolerate single-digit date and time components, the third is the strict
// compact form.
var filenamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^log_.+_(\d{4})-(\d{1,2})-(\d{1,2})-(\d{1,2})-(\d{1,2})-(\d{1,2})$`),
	regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})_(\d{1,2})-(\d{1,2})-(\d{1,2})$`),
	regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})_(\d{2})(\d{2})(\d{2})$`),
}

// ParseFilenameDate recovers a flight date from a conventional log filename.
// A match whose components do not form a real calendar time (month 13, hour
// 31) is rejected and the remaining patterns are tried. The result carries no
// timezone information beyond the local zone.
func ParseFilenameDate(name string) (time.Time, bool) {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	for _, pat := range filenamePatterns {
		m := pat.FindStringSubmatch(stem)
		if m == nil {
			continue
		}
		parts := make([]int, 6)
		for i := range parts {
			n, err := strconv.Atoi(m[i+1])
			if err != nil {
				parts = nil
				break
			}
			parts[i] = n
		}
		if parts == nil {
			continue
		}
		t, ok := calendarTime(parts[0], parts[1], parts[2], parts[3], parts[4], parts[5])
		if ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// calendarTime builds a local timestamp and rejects component values that
// time.Date would silently normalize away.
func calendarTime(year, month, day, hour, min, sec int) (time.Time, bool) {
	t := time.Date(year, time.Month(month), day, hour, min, sec, 0, time.Local)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	if t.Hour() != hour || t.Minute() != min || t.Second() != sec {
		return time.Time{}, false
	}
	return t, true
}
