package contracts

// LogLevel represents the severity level for logging.
type LogLevel int

const (
	// InfoLevel indicates informational messages that highlight the progress of the application.
	InfoLevel LogLevel = iota
	// DebugLevel indicates debug messages that are useful for developers to troubleshoot issues.
	DebugLevel
	// ErrorLevel indicates error messages that represent serious issues that need attention.
	ErrorLevel
	// WarnLevel indicates potentially harmful situations that should be monitored.
	WarnLevel
	// FatalLevel indicates very severe error events that will presumably lead the application to abort.
	FatalLevel
)

// Field represents a typed log field.
type Field interface {
	Bool(key string, val bool) Field
	Int(key string, val int) Field
	Int64(key string, val int64) Field
	Float64(key string, val float64) Field
	String(key string, val string) Field
	Uint32(key string, val uint32) Field
	Uint64(key string, val uint64) Field
	Error(key string, val error) Field
}

// Logger provides leveled, structured logging. Implementations must be safe
// for concurrent use from control-domain goroutines; the realtime callback
// never logs.
type Logger interface {
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Debug(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	Field() Field

	SetLevel(level LogLevel)
}
