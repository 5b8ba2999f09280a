// Package settings loads and validates the INI settings file read by the ESPA processing cron. The file has three
// sections: logging destinations, Hadoop submission limits and the priority -> Hadoop queue table.
package settings

import (
	"encoding/json"
	"math"
	"path/filepath"
	"time"

	"github.com/flyteorg/flytestdlib/errors"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/usgs-eros/espa-cron/go/cron/queues"
)

const (
	SectionLogging      = "logging"
	SectionHadoop       = "hadoop"
	SectionQueueMapping = "hadoop_queue_mapping"

	KeyDispositionLogFilename = "disposition_log_filename"
	KeyLogFilename            = "log_filename"
	KeyPlotLogFilename        = "plot_log_filename"
	KeyMaxJobs                = "max_jobs"
	KeyTimeout                = "timeout"
)

const (
	ErrMalformed         errors.ErrorCode = "MALFORMED_SETTINGS"
	ErrReadFailed        errors.ErrorCode = "READ_FAILED"
	ErrMissingSection    errors.ErrorCode = "MISSING_SECTION"
	ErrMissingKey        errors.ErrorCode = "MISSING_KEY"
	ErrUnknownSection    errors.ErrorCode = "UNKNOWN_SECTION"
	ErrUnknownKey        errors.ErrorCode = "UNKNOWN_KEY"
	ErrInvalidInteger    errors.ErrorCode = "INVALID_INTEGER"
	ErrNonPositiveValue  errors.ErrorCode = "NON_POSITIVE_VALUE"
	ErrValueOutOfRange   errors.ErrorCode = "VALUE_OUT_OF_RANGE"
	ErrEmptyQueueMapping errors.ErrorCode = "EMPTY_QUEUE_MAPPING"
	ErrEmptyQueueName    errors.ErrorCode = "EMPTY_QUEUE_NAME"
	ErrRelativeLogPath   errors.ErrorCode = "RELATIVE_LOG_PATH"
	ErrDuplicateLogPath  errors.ErrorCode = "DUPLICATE_LOG_PATH"
)

// Largest values that still fit their Go types: max_jobs in an int, timeout in a time.Duration.
const (
	MaxJobsLimit       int64 = math.MaxInt
	TimeoutMillisLimit int64 = math.MaxInt64 / int64(time.Millisecond)
)

var (
	loggingKeys = []string{KeyDispositionLogFilename, KeyLogFilename, KeyPlotLogFilename}
	hadoopKeys  = []string{KeyMaxJobs, KeyTimeout}
)

// Logging holds the destinations of the three cron logs.
type Logging struct {
	DispositionLogFilename string `json:"disposition_log_filename"`
	LogFilename            string `json:"log_filename"`
	PlotLogFilename        string `json:"plot_log_filename"`
}

// Get returns the value of a logging key, or an empty string for an unknown key.
func (l Logging) Get(key string) string {
	switch key {
	case KeyDispositionLogFilename:
		return l.DispositionLogFilename
	case KeyLogFilename:
		return l.LogFilename
	case KeyPlotLogFilename:
		return l.PlotLogFilename
	}

	return ""
}

// Hadoop holds the job submission limits.
type Hadoop struct {
	// Concurrency ceiling for submitted jobs.
	MaxJobs int
	// Per-job timeout. The file stores it in milliseconds.
	Timeout time.Duration
}

// TimeoutMillis returns the timeout the way the settings file spells it.
func (h Hadoop) TimeoutMillis() int64 {
	return h.Timeout.Milliseconds()
}

type hadoopJSON struct {
	MaxJobs int   `json:"max_jobs"`
	Timeout int64 `json:"timeout"`
}

func (h Hadoop) MarshalJSON() ([]byte, error) {
	return json.Marshal(hadoopJSON{MaxJobs: h.MaxJobs, Timeout: h.TimeoutMillis()})
}

func (h *Hadoop) UnmarshalJSON(raw []byte) error {
	v := hadoopJSON{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}

	if v.Timeout > TimeoutMillisLimit || v.Timeout < -TimeoutMillisLimit {
		return errors.Errorf(ErrValueOutOfRange, "%s %s must not exceed [%d] ms, got [%d]", SectionHadoop, KeyTimeout,
			TimeoutMillisLimit, v.Timeout)
	}

	h.MaxJobs = v.MaxJobs
	h.Timeout = time.Duration(v.Timeout) * time.Millisecond
	return nil
}

// Settings is the typed content of a cron settings file. It is not mutated after a successful load.
type Settings struct {
	Logging      Logging             `json:"logging"`
	Hadoop       Hadoop              `json:"hadoop"`
	QueueMapping queues.QueueMapping `json:"hadoop_queue_mapping"`
}

// Default returns the values shipped with the ESPA deployment.
func Default() *Settings {
	return &Settings{
		Logging: Logging{
			DispositionLogFilename: "/tmp/espa-cron-disposition.log",
			LogFilename:            "/tmp/espa-cron.log",
			PlotLogFilename:        "/tmp/espa-cron-plot.log",
		},
		Hadoop: Hadoop{
			MaxJobs: 150,
			Timeout: 48 * time.Hour,
		},
		QueueMapping: queues.New(map[string]string{
			"all":    "ondemand",
			"low":    "ondemand-low",
			"normal": "ondemand",
			"high":   "ondemand-high",
		}),
	}
}

// Validate checks the semantic rules that apply to settings no matter where they came from. All problems are returned
// together as an aggregate; each carries one of the package error codes.
func (s *Settings) Validate() error {
	return s.validate(false)
}

func (s *Settings) validate(strict bool) error {
	var errs []error
	errs = append(errs, validateLogging(s.Logging, strict)...)
	errs = append(errs, checkPositive(SectionHadoop, KeyMaxJobs, int64(s.Hadoop.MaxJobs))...)
	errs = append(errs, checkPositive(SectionHadoop, KeyTimeout, s.Hadoop.TimeoutMillis())...)
	errs = append(errs, validateQueueMapping(s.QueueMapping)...)
	return utilerrors.NewAggregate(errs)
}

func validateLogging(l Logging, strict bool) []error {
	var errs []error
	seen := make(map[string]string, len(loggingKeys))
	for _, key := range loggingKeys {
		value := l.Get(key)
		if len(value) == 0 {
			errs = append(errs, errors.Errorf(ErrMissingKey, "[%s] %s is required", SectionLogging, key))
			continue
		}

		if strict && !filepath.IsAbs(value) {
			errs = append(errs, errors.Errorf(ErrRelativeLogPath, "[%s] %s must be an absolute path, got [%s]",
				SectionLogging, key, value))
		}

		cleaned := filepath.Clean(value)
		if other, found := seen[cleaned]; found {
			errs = append(errs, errors.Errorf(ErrDuplicateLogPath, "[%s] %s and %s both point at [%s]",
				SectionLogging, other, key, cleaned))
			continue
		}

		seen[cleaned] = key
	}

	return errs
}

func checkPositive(section, key string, value int64) []error {
	if value > 0 {
		return nil
	}

	return []error{errors.Errorf(ErrNonPositiveValue, "[%s] %s must be a positive integer, got [%d]", section, key, value)}
}

func validateQueueMapping(m queues.QueueMapping) []error {
	if m.Len() == 0 {
		return []error{errors.Errorf(ErrEmptyQueueMapping, "[%s] must map at least one priority", SectionQueueMapping)}
	}

	var errs []error
	entries := m.Entries()
	for _, label := range m.Priorities() {
		if len(entries[label]) == 0 {
			errs = append(errs, errors.Errorf(ErrEmptyQueueName, "[%s] %s has an empty queue name",
				SectionQueueMapping, label))
		}
	}

	return errs
}
