// Package logging prefixes every line with the emitting component, e.g.
// "scheduler:", "history-store:".
package logging

import "log"

// Logger is a component-scoped wrapper over the standard logger.
type Logger struct {
	component string
}

// New returns a Logger that prefixes every line with component.
func New(component string) *Logger {
	return &Logger{component: component}
}

func (l *Logger) Printf(format string, args ...any) {
	log.Printf(l.component+": "+format, args...)
}

func (l *Logger) Println(args ...any) {
	log.Println(append([]any{l.component + ":"}, args...)...)
}

func (l *Logger) Fatalf(format string, args ...any) {
	log.Fatalf(l.component+": "+format, args...)
}
