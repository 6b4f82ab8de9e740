package logger

import (
	"io"
	"regexp"
)

const redacted = "[REDACTED]"

type rule struct {
	re   *regexp.Regexp
	repl string
}

// Redactor masks provider credentials in log output.
type Redactor struct {
	rules []rule
}

// NewRedactor creates a redactor for Anthropic and OpenAI keys, bearer tokens
// and api_key fields.
func NewRedactor() *Redactor {
	return &Redactor{
		rules: []rule{
			// sk-ant- must run before the generic sk- rule.
			{regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]{20,}`), redacted},
			{regexp.MustCompile(`sk-[a-zA-Z0-9_-]{20,}`), redacted},
			{regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]+`), "Bearer " + redacted},
			{regexp.MustCompile(`(?i)("?(?:api_key|apikey|x-api-key)"?\s*[:=]\s*)"[^"]*"`), `${1}"` + redacted + `"`},
		},
	}
}

// AddPattern adds a pattern whose matches are replaced wholesale.
func (r *Redactor) AddPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	r.rules = append(r.rules, rule{re: re, repl: redacted})
	return nil
}

// Redact masks every known secret in s.
func (r *Redactor) Redact(s string) string {
	for _, rl := range r.rules {
		s = rl.re.ReplaceAllString(s, rl.repl)
	}
	return s
}

// Wrap returns a writer that redacts before writing to w.
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{writer: w, redactor: r}
}

type redactingWriter struct {
	writer   io.Writer
	redactor *Redactor
}

// Write reports len(p) on success so zerolog does not treat shortened output
// as a short write.
func (w *redactingWriter) Write(p []byte) (int, error) {
	if _, err := w.writer.Write([]byte(w.redactor.Redact(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}
