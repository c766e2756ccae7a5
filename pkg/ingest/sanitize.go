package ingest

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	maxRawNameLen = 200
	maxUnitLen    = 40
	maxFlagLen    = 20
)

var validStatus = map[string]bool{
	"above": true, "below": true, "within": true, "flagged_by_lab": true, "unknown": true,
}

var whitespace = regexp.MustCompile(`\s+`)

// sanitizedResult is the defensively-coerced shape persisted to
// lab_results: every field has already been clamped, enum-constrained,
// and numerically coerced.
type sanitizedResult struct {
	RawName string
	Value   float64
	Unit    string
	RefLow  *float64
	RefHigh *float64
	Flag    string
}

// sanitize parses the vision provider's raw JSON response and defensively
// coerces it into canonical shape: normalized whitespace, clamped string
// lengths, constrained status enum, coerced numerics, and a best-effort
// parsed collection date. Rows with no legible numeric value are dropped
// rather than persisted with a fabricated zero.
func sanitize(raw json.RawMessage) ([]sanitizedResult, *time.Time, error) {
	var parsed extractedReport
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, nil, fmt.Errorf("parse extraction output: %w", err)
	}

	var collectedAt *time.Time
	if parsed.CollectedAt != nil {
		if t, ok := parseFlexibleDate(*parsed.CollectedAt); ok {
			collectedAt = &t
		}
	}

	out := make([]sanitizedResult, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Value == nil {
			continue
		}
		name := clamp(normalizeWhitespace(r.RawName), maxRawNameLen)
		if name == "" {
			continue
		}

		sr := sanitizedResult{
			RawName: name,
			Value:   *r.Value,
			RefLow:  r.RefLow,
			RefHigh: r.RefHigh,
		}
		if r.Unit != nil {
			sr.Unit = clamp(normalizeWhitespace(*r.Unit), maxUnitLen)
		}
		sr.Flag = resolveFlag(r)
		out = append(out, sr)
	}
	return out, collectedAt, nil
}

// resolveFlag prefers the structured status enum when it is one of the
// five canonical values; otherwise it falls back to the lab's free-text
// flag (whitespace-normalized and clamped), and to "unknown" when neither
// is present.
func resolveFlag(r extractedResult) string {
	if r.Status != nil && validStatus[*r.Status] {
		return *r.Status
	}
	if r.Flag != nil && strings.TrimSpace(*r.Flag) != "" {
		return clamp(normalizeWhitespace(*r.Flag), maxFlagLen)
	}
	return "unknown"
}

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

func clamp(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var (
	isoDate      = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	slashDate    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{2,4})$`)
	dashDateFull = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{2,4})$`)
)

// parseFlexibleDate parses a collection date in several formats a lab
// report might use. ISO (YYYY-MM-DD) is unambiguous. For slash/dash
// forms, a day component over 12 fixes day/month order unambiguously
// (European D/M/Y); if both components could be either, the date is
// rejected rather than guessed. Two-digit years pivot at 50: 00-49 ->
// 2000-2049, 50-99 -> 1950-1999.
func parseFlexibleDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if m := isoDate.FindStringSubmatch(s); m != nil {
		return buildDate(m[1], m[2], m[3])
	}
	for _, re := range []*regexp.Regexp{slashDate, dashDateFull} {
		if m := re.FindStringSubmatch(s); m != nil {
			return parseAmbiguousDate(m[1], m[2], m[3])
		}
	}
	return time.Time{}, false
}

func parseAmbiguousDate(a, b, yearStr string) (time.Time, bool) {
	first, err1 := strconv.Atoi(a)
	second, err2 := strconv.Atoi(b)
	if err1 != nil || err2 != nil {
		return time.Time{}, false
	}

	var day, month int
	switch {
	case first > 12 && second <= 12:
		day, month = first, second
	case second > 12 && first <= 12:
		day, month = second, first
	case first <= 12 && second <= 12:
		// Ambiguous day<=12 and month<=12: neither order can be inferred
		// confidently, so the date is rejected rather than guessed.
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
	return buildDate(yearStr, fmt.Sprintf("%02d", month), fmt.Sprintf("%02d", day))
}

func buildDate(yearStr, monthStr, dayStr string) (time.Time, bool) {
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, false
	}
	if len(yearStr) == 2 {
		if year < 50 {
			year += 2000
		} else {
			year += 1900
		}
	}
	month, err := strconv.Atoi(monthStr)
	if err != nil || month < 1 || month > 12 {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != time.Month(month) || t.Day() != day {
		// time.Date normalizes out-of-range days (Feb 29 in a non-leap
		// year, Apr 31, ...) into the following month instead of
		// rejecting them; the round-trip check catches that.
		return time.Time{}, false
	}
	return t, true
}
