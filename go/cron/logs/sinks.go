package logs

import (
	"context"
	"os"
	"path/filepath"

	"github.com/flyteorg/flytestdlib/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/usgs-eros/espa-cron/go/cron/settings"
)

// Sink identifies one of the log files named in the [logging] section.
type Sink uint8

const (
	SinkCron Sink = iota
	SinkDisposition
	SinkPlot
)

// AllSinks lists the sinks in the order they are opened.
var AllSinks = []Sink{SinkCron, SinkDisposition, SinkPlot}

var sinkNames = [...]string{"cron", "disposition", "plot"}

func (s Sink) valid() bool {
	return int(s) < len(sinkNames)
}

func (s Sink) String() string {
	if s.valid() {
		return sinkNames[s]
	}

	return "unknown"
}

// SettingsKey returns the [logging] key that holds the sink's path.
func (s Sink) SettingsKey() string {
	switch s {
	case SinkCron:
		return settings.KeyLogFilename
	case SinkDisposition:
		return settings.KeyDispositionLogFilename
	case SinkPlot:
		return settings.KeyPlotLogFilename
	}

	return ""
}

const (
	FormatText = "text"
	FormatJSON = "json"
)

type Options struct {
	// One of logrus' level names. Defaults to info.
	Level string
	// FormatText or FormatJSON. Defaults to text.
	Format string
}

func (o Options) formatter() (logrus.Formatter, error) {
	switch o.Format {
	case "", FormatText:
		return &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}, nil
	case FormatJSON:
		return &logrus.JSONFormatter{}, nil
	}

	return nil, errors.Errorf("unsupported log format [%s]", o.Format)
}

func (o Options) level() (logrus.Level, error) {
	if len(o.Level) == 0 {
		return logrus.InfoLevel, nil
	}

	return logrus.ParseLevel(o.Level)
}

type sink struct {
	path   string
	logger *logrus.Logger
}

// Sinks holds one logger per configured log file. Sinks that share a path share the open file.
type Sinks struct {
	sinks [len(sinkNames)]sink
	files []*os.File
}

// Open creates missing parent directories and opens every configured log file for appending. If any file fails to
// open, the ones already opened are closed.
func Open(ctx context.Context, cfg settings.Logging, opts Options) (*Sinks, error) {
	formatter, err := opts.formatter()
	if err != nil {
		return nil, err
	}

	level, err := opts.level()
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level")
	}

	res := &Sinks{}
	opened := map[string]*os.File{}
	for _, s := range AllSinks {
		path := cfg.Get(s.SettingsKey())
		if len(path) == 0 {
			_ = res.Close()
			return nil, errors.Errorf("no path configured for the %s log (%s)", s, s.SettingsKey())
		}

		path = filepath.Clean(path)
		f, found := opened[path]
		if !found {
			f, err = openAppend(path)
			if err != nil {
				_ = res.Close()
				return nil, errors.Wrapf(err, "failed to open the %s log", s)
			}

			opened[path] = f
			res.files = append(res.files, f)
		}

		l := logrus.New()
		l.SetOutput(f)
		l.SetFormatter(formatter)
		l.SetLevel(level)
		res.sinks[s] = sink{path: path, logger: l}

		logger.Debugf(ctx, "Opened %s log sink at [%s]", s, path)
	}

	return res, nil
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
}

// Logger returns the logger writing to the sink's file, or nil for an unknown sink.
func (s *Sinks) Logger(which Sink) *logrus.Logger {
	if !which.valid() {
		return nil
	}

	return s.sinks[which].logger
}

// Path returns the cleaned path the sink writes to, or an empty string for an unknown sink.
func (s *Sinks) Path(which Sink) string {
	if !which.valid() {
		return ""
	}

	return s.sinks[which].path
}

// Close closes every open file. It is safe to call more than once.
func (s *Sinks) Close() error {
	var errs []error
	for _, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.files = nil
	return utilerrors.NewAggregate(errs)
}
