package settings

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flyteorg/flytestdlib/errors"
	"github.com/flyteorg/flytestdlib/logger"
	"gopkg.in/ini.v1"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/usgs-eros/espa-cron/go/cron/queues"
)

var loadOptions = ini.LoadOptions{
	Insensitive:             true,
	IgnoreInlineComment:     true,
	PreserveSurroundedQuote: true,
	KeyValueDelimiters:      "=",
}

// Loader reads settings files. In strict mode unknown sections and keys are errors and log paths must be absolute.
type Loader struct {
	Strict bool
}

// Parse parses settings with a lenient Loader.
func Parse(ctx context.Context, data []byte) (*Settings, error) {
	return Loader{}.Parse(ctx, data)
}

// Load reads and parses a settings file with a lenient Loader.
func Load(ctx context.Context, path string) (*Settings, error) {
	return Loader{}.Load(ctx, path)
}

func (l Loader) Load(ctx context.Context, path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(ErrReadFailed, err, "Failed to read settings file [%s]", path)
	}

	s, err := l.Parse(ctx, data)
	if err != nil {
		return nil, errors.Wrapf(errorCode(err), err, "Invalid settings file [%s]", path)
	}

	logger.Infof(ctx, "Loaded cron settings from [%s]: max_jobs [%d], timeout [%v], [%d] queue priorities",
		path, s.Hadoop.MaxJobs, s.Hadoop.Timeout, s.QueueMapping.Len())
	return s, nil
}

// Parse decodes INI text. Every structural and semantic problem is reported at once.
func (l Loader) Parse(ctx context.Context, data []byte) (*Settings, error) {
	f, err := ini.LoadSources(loadOptions, data)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, err, "Failed to parse settings")
	}

	s := &Settings{}
	var errs []error
	if l.Strict {
		errs = append(errs, unknownEntries(f)...)
	}

	if sec, err := f.GetSection(SectionLogging); err != nil {
		errs = append(errs, missingSection(SectionLogging))
	} else {
		s.Logging = Logging{
			DispositionLogFilename: sec.Key(KeyDispositionLogFilename).String(),
			LogFilename:            sec.Key(KeyLogFilename).String(),
			PlotLogFilename:        sec.Key(KeyPlotLogFilename).String(),
		}

		errs = append(errs, validateLogging(s.Logging, l.Strict)...)
	}

	if sec, err := f.GetSection(SectionHadoop); err != nil {
		errs = append(errs, missingSection(SectionHadoop))
	} else {
		maxJobs, maxJobsErrs := readPositiveInt(sec, KeyMaxJobs, MaxJobsLimit)
		timeout, timeoutErrs := readPositiveInt(sec, KeyTimeout, TimeoutMillisLimit)
		errs = append(errs, maxJobsErrs...)
		errs = append(errs, timeoutErrs...)
		s.Hadoop = Hadoop{
			MaxJobs: int(maxJobs),
			Timeout: time.Duration(timeout) * time.Millisecond,
		}
	}

	if sec, err := f.GetSection(SectionQueueMapping); err != nil {
		errs = append(errs, missingSection(SectionQueueMapping))
	} else {
		s.QueueMapping = queues.New(sec.KeysHash())
		errs = append(errs, validateQueueMapping(s.QueueMapping)...)
	}

	if len(errs) > 0 {
		logger.Debugf(ctx, "Settings failed validation with [%d] problems", len(errs))
		return nil, utilerrors.NewAggregate(errs)
	}

	return s, nil
}

func missingSection(name string) error {
	return errors.Errorf(ErrMissingSection, "[%s] section is required", name)
}

// readPositiveInt reads a required integer in the range (0, limit]. Out of range values come back as 0.
func readPositiveInt(sec *ini.Section, key string, limit int64) (int64, []error) {
	if !sec.HasKey(key) || len(sec.Key(key).String()) == 0 {
		return 0, []error{errors.Errorf(ErrMissingKey, "[%s] %s is required", sec.Name(), key)}
	}

	raw := sec.Key(key).String()
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, []error{errors.Errorf(ErrInvalidInteger, "[%s] %s must be an integer, got [%s]", sec.Name(), key, raw)}
	}

	if errs := checkPositive(sec.Name(), key, value); len(errs) > 0 {
		return 0, errs
	}

	if value > limit {
		return 0, []error{errors.Errorf(ErrValueOutOfRange, "[%s] %s must not exceed [%d], got [%d]", sec.Name(), key,
			limit, value)}
	}

	return value, nil
}

func unknownEntries(f *ini.File) []error {
	known := map[string][]string{
		SectionLogging:      loggingKeys,
		SectionHadoop:       hadoopKeys,
		SectionQueueMapping: nil,
	}

	var errs []error
	for _, sec := range f.Sections() {
		name := sec.Name()
		if strings.EqualFold(name, ini.DefaultSection) {
			for _, key := range sec.KeyStrings() {
				errs = append(errs, errors.Errorf(ErrUnknownKey, "%s is set outside of any section", key))
			}

			continue
		}

		keys, found := known[name]
		if !found {
			errs = append(errs, errors.Errorf(ErrUnknownSection, "[%s] is not a recognized section", name))
			continue
		}

		if name == SectionQueueMapping {
			continue
		}

		for _, key := range sec.KeyStrings() {
			if !contains(keys, key) {
				errs = append(errs, errors.Errorf(ErrUnknownKey, "[%s] %s is not a recognized key", name, key))
			}
		}
	}

	return errs
}

func contains(list []string, item string) bool {
	for _, s := range list {
		if s == item {
			return true
		}
	}

	return false
}

// errorCode picks the code to carry when wrapping an error: the code of a single error, or ErrMalformed for an
// aggregate of several.
func errorCode(err error) errors.ErrorCode {
	if agg, ok := err.(utilerrors.Aggregate); ok && len(agg.Errors()) == 1 {
		err = agg.Errors()[0]
	}

	if code, ok := errors.GetErrorCode(err); ok {
		return code
	}

	return ErrMalformed
}

// Problems flattens an error returned by Parse, Load or Validate into the individual problems it carries.
func Problems(err error) []error {
	if err == nil {
		return nil
	}

	if agg, ok := err.(utilerrors.Aggregate); ok {
		return agg.Errors()
	}

	switch e := err.(type) {
	case interface{ Cause() error }:
		if cause := e.Cause(); cause != nil {
			if _, isAgg := cause.(utilerrors.Aggregate); isAgg {
				return Problems(cause)
			}
		}
	case interface{ Unwrap() error }:
		if cause := e.Unwrap(); cause != nil {
			if _, isAgg := cause.(utilerrors.Aggregate); isAgg {
				return Problems(cause)
			}
		}
	}

	return []error{err}
}
