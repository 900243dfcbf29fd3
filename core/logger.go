package core

// Logger is any service that can report application events and errors.
type Logger interface {
	Enable(enabled bool)
	Info(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
