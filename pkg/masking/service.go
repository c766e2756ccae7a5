package masking

import "log/slog"

// Service applies PHI redaction to free text. Created once at startup
// (patterns are compiled eagerly) and safe for concurrent use; it carries
// no per-request state.
type Service struct {
	patterns []*CompiledPattern
	maskers  []Masker
}

// NewService compiles the built-in pattern table and registers the
// structural maskers. An invalid built-in pattern is a programmer error,
// not a runtime condition, so it panics rather than degrading silently.
func NewService() *Service {
	patterns, err := compiledBuiltinPatterns()
	if err != nil {
		panic("masking: built-in pattern failed to compile: " + err.Error())
	}
	s := &Service{patterns: patterns}
	s.maskers = append(s.maskers, &reportIDMasker{})
	slog.Info("masking service initialized", "patterns", len(s.patterns), "maskers", len(s.maskers))
	return s
}

// Redact applies structural maskers then the regex sweep to text. Intended
// for anything crossing a boundary where PHI shouldn't travel unredacted:
// application logs, audit event detail fields, and any LLM prompt that
// isn't already scoped to one consented patient record.
func (s *Service) Redact(text string) string {
	if text == "" {
		return text
	}
	masked := text
	for _, m := range s.maskers {
		if m.AppliesTo(masked) {
			masked = m.Mask(masked)
		}
	}
	for _, p := range s.patterns {
		masked = p.Regex.ReplaceAllString(masked, p.Replacement)
	}
	return masked
}

// reportIDMasker redacts labtrace's own UUID-shaped report and patient
// identifiers from free text destined for logs, since a leaked internal ID
// combined with other context can re-identify a patient as reliably as a
// name would.
type reportIDMasker struct{}

func (reportIDMasker) Name() string { return "internal-uuid" }

func (reportIDMasker) AppliesTo(data string) bool {
	return uuidLike.MatchString(data)
}

func (reportIDMasker) Mask(data string) string {
	return uuidLike.ReplaceAllString(data, "[REDACTED-ID]")
}
