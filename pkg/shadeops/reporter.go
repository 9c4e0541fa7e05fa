package shadeops

import (
	"fmt"
	"sync"
)

// Severity of a shader message.
type Severity int

const (
	SevError Severity = iota
	SevWarning
)

func (s Severity) String() string {
	if s == SevWarning {
		return "warning"
	}
	return "error"
}

// Message is one diagnostic raised while shading.
type Message struct {
	Severity Severity
	Text     string
}

// Reporter collects the errors and warnings of shader executions. It
// implements interp.Reporter and is safe for concurrent use.
type Reporter struct {
	mu   sync.Mutex
	msgs []Message

	// Forward, when set, also receives every message as it arrives.
	Forward func(Message)
}

// Errorf implements interp.Reporter.
func (r *Reporter) Errorf(format string, args ...any) {
	r.add(SevError, fmt.Sprintf(format, args...))
}

// Warningf implements interp.Reporter.
func (r *Reporter) Warningf(format string, args ...any) {
	r.add(SevWarning, fmt.Sprintf(format, args...))
}

func (r *Reporter) add(sev Severity, text string) {
	m := Message{Severity: sev, Text: text}
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	fwd := r.Forward
	r.mu.Unlock()
	if fwd != nil {
		fwd(m)
	}
}

// Messages returns a copy of everything reported so far.
func (r *Reporter) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

// Errors returns the text of the reported errors.
func (r *Reporter) Errors() []string {
	var out []string
	for _, m := range r.Messages() {
		if m.Severity == SevError {
			out = append(out, m.Text)
		}
	}
	return out
}

// Reset drops the collected messages.
func (r *Reporter) Reset() {
	r.mu.Lock()
	r.msgs = nil
	r.mu.Unlock()
}
