package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

// Redactor masks credentials before log lines reach their writer
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor for the credentials the server handles:
// bearer tokens, request body tokens, JWTs, AWS keys and HMAC secrets.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			// Authorization headers
			regexp.MustCompile(`Bearer\s+[A-Za-z0-9._~+/=-]+`),

			// Compact JWS, header.payload.signature
			regexp.MustCompile(`eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]*`),

			// "token" fields of dispatch requests
			regexp.MustCompile(`"token"\s*:\s*"[^"]*"`),

			// AWS access key ids and secrets
			regexp.MustCompile(`(A3T[A-Z0-9]|AKIA|ASIA)[A-Z0-9]{16}`),
			regexp.MustCompile(`(?i)secret_access_key["\s:=]+[^\s",}]+`),

			// Hex secrets and generic secrets
			regexp.MustCompile(`(?i)secret_hex["\s:=]+[^\s",}]+`),
			regexp.MustCompile(`(?i)password["\s:=]+[^\s",}]+`),
		},
	}
}

// AddPattern adds a custom redaction pattern
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.patterns = append(r.patterns, re)
	return nil
}

// Redact masks every match in s
func (r *Redactor) Redact(s string) string {
	result := s
	for _, pattern := range r.patterns {
		result = pattern.ReplaceAllString(result, redacted)
	}
	return result
}

// Wrap returns a writer that redacts everything written through it
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{
		writer:   w,
		redactor: r,
	}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success; the redacted line length differs.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
