package masking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestService_RedactsKnownPatterns(t *testing.T) {
	s := NewService()

	cases := map[string]string{
		"call 555-123-4567 for results":       "[REDACTED-PHONE]",
		"ssn 123-45-6789 on file":              "[REDACTED-SSN]",
		"contact jane.doe@example.com":         "[REDACTED-EMAIL]",
		"dob 04/12/1980 recorded":              "[REDACTED-DOB]",
		"MRN: AB12345 assigned":                "[REDACTED-MRN]",
		"report 3fa85f64-5717-4562-b3fc-2c963f66afa6 failed": "[REDACTED-ID]",
	}

	for input, want := range cases {
		got := s.Redact(input)
		assert.Contains(t, got, want, "input: %s", input)
	}
}

func TestService_LeavesCleanTextUnchanged(t *testing.T) {
	s := NewService()
	text := "glucose result 95 mg/dL within normal range"
	assert.Equal(t, text, s.Redact(text))
}

func TestService_EmptyStringIsNoop(t *testing.T) {
	s := NewService()
	assert.Equal(t, "", s.Redact(""))
}
