package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with structured logging.
//
// The function should be called in a defer statement. If a panic occurs,
// it will be recovered and logged at Error level with the panic value and
// full stack trace. After logging, the panic is NOT re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}
