package log

import (
	"io"
	"os"
	"runtime/debug"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LDebug    = 1
	LInfo     = 1 << 1
	LError    = 1 << 2
	LCritical = 1 << 3
)

var (
	gLogger = logrus.New()
)

func init() {
	gLogger.SetOutput(os.Stderr)
	SetLogLevel(LInfo)
}

// ParseLevel maps a level name as found in configuration files to one of the
// L* constants.
func ParseLevel(name string) (int, error) {
	switch strings.ToLower(name) {
	case "debug":
		return LDebug, nil
	case "", "info":
		return LInfo, nil
	case "error", "warn":
		return LError, nil
	case "critical", "fatal":
		return LCritical, nil
	}
	return LInfo, errors.Errorf("unknown log level %q", name)
}

// InitLogger configures level, format and destination. An empty filepath logs
// to stderr, otherwise output goes to a rotating file.
func InitLogger(logLevel int, filepath string, isJSON bool) {
	if isJSON {
		gLogger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		gLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stderr
	if filepath != "" {
		out = &lumberjack.Logger{
			Filename:   filepath,
			MaxSize:    50,
			MaxBackups: 2,
			Compress:   true,
		}
	}
	gLogger.SetOutput(out)
	SetLogLevel(logLevel)
}

func SetLogLevel(logLevel int) {
	gLogger.SetReportCaller(false)
	switch logLevel {
	case LDebug:
		gLogger.SetLevel(logrus.DebugLevel)
		gLogger.SetReportCaller(true)
	case LError:
		gLogger.SetLevel(logrus.ErrorLevel)
	case LCritical:
		gLogger.SetLevel(logrus.FatalLevel)
	default:
		gLogger.SetLevel(logrus.InfoLevel)
	}
}

func Debugf(format string, i ...interface{}) {
	gLogger.Debugf(format, i...)
}

func Infof(format string, i ...interface{}) {
	gLogger.Infof(format, i...)
}

func Errorf(format string, i ...interface{}) {
	gLogger.Errorf(format, i...)
}

// WithFields returns an entry carrying structured context, e.g. the chunk
// offset a message refers to.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return gLogger.WithFields(fields)
}

// DontPanicf logs a recovered panic along with the current stack.
func DontPanicf(format string, i ...interface{}) {
	gLogger.WithField("stack", string(debug.Stack())).Errorf(format, i...)
}
