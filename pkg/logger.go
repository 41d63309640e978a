package analyzer

type Logger interface {
	Info(message string, module string)
	Error(string)
}

type nopLogger struct{}

func (nopLogger) Info(string, string) {}
func (nopLogger) Error(string)        {}

var (
	logger    Logger = nopLogger{}
	verbosity int
)

func SetLogger(l Logger) {
	if l == nil {
		logger = nopLogger{}
		return
	}
	logger = l
}

// SetVerbosity sets the level above which informational messages are sent
// to the logger.
func SetVerbosity(level int) {
	verbosity = level
}
