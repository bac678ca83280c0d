// Package logging provides the plain log.Printf-style diagnostics used
// throughout the pipeline, matching the teacher's agents.Logger convention
// rather than introducing a structured logging dependency the corpus never
// reaches for.
package logging

import "log"

// Logger prefixes every line with a component tag, mirroring the teacher's
// "[ALERT] %s | %s" convention.
type Logger struct {
	component string
	verbose   bool
}

// New builds a Logger for one component. verbose gates Debugf output; Infof
// and Errorf always print.
func New(component string, verbose bool) *Logger {
	return &Logger{component: component, verbose: verbose}
}

func (l *Logger) Infof(format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{l.component}, args...)...)
}

func (l *Logger) Errorf(format string, args ...any) {
	log.Printf("[%s] ERROR "+format, append([]any{l.component}, args...)...)
}

func (l *Logger) Debugf(format string, args ...any) {
	if !l.verbose {
		return
	}
	log.Printf("[%s] DEBUG "+format, append([]any{l.component}, args...)...)
}
