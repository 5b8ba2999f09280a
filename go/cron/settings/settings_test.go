package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flyteorg/flytestdlib/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/usgs-eros/espa-cron/go/cron/queues"
)

func errorCodes(t *testing.T, err error) []errors.ErrorCode {
	t.Helper()
	require.Error(t, err)

	agg, ok := err.(utilerrors.Aggregate)
	require.True(t, ok, "expected an aggregate, got %T", err)

	codes := make([]errors.ErrorCode, 0, len(agg.Errors()))
	for _, e := range agg.Errors() {
		code, ok := errors.GetErrorCode(e)
		require.True(t, ok, "error without code: %v", e)
		codes = append(codes, code)
	}

	return codes
}

func readTestdata(t *testing.T, name string) []byte {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return raw
}

func TestParse(t *testing.T) {
	ctx := context.TODO()

	t.Run("deployment file", func(t *testing.T) {
		s, err := Parse(ctx, readTestdata(t, "cron.conf"))
		require.NoError(t, err)

		assert.Equal(t, Logging{
			DispositionLogFilename: "/var/log/espa/espa-disposition.log",
			LogFilename:            "/var/log/espa/espa-cron.log",
			PlotLogFilename:        "/var/log/espa/espa-plot.log",
		}, s.Logging)
		assert.Equal(t, 150, s.Hadoop.MaxJobs)
		assert.Equal(t, 48*time.Hour, s.Hadoop.Timeout)
		assert.Equal(t, int64(172800000), s.Hadoop.TimeoutMillis())

		q, err := s.QueueMapping.Resolve("high")
		assert.NoError(t, err)
		assert.Equal(t, "ondemand-high", q)
		assert.Equal(t, []string{"all", "high", "low", "normal"}, s.QueueMapping.Priorities())
	})

	t.Run("names are case insensitive", func(t *testing.T) {
		s, err := Parse(ctx, []byte(`
[LOGGING]
Disposition_Log_Filename = /a.log
LOG_FILENAME = /b.log
plot_log_filename = /c.log
[Hadoop]
MAX_JOBS = 2
timeout = 1000
[Hadoop_Queue_Mapping]
HIGH = q-high
`))
		require.NoError(t, err)
		assert.Equal(t, "/a.log", s.Logging.DispositionLogFilename)
		assert.Equal(t, 2, s.Hadoop.MaxJobs)
		assert.Equal(t, time.Second, s.Hadoop.Timeout)

		q, found := s.QueueMapping.Lookup("high")
		assert.True(t, found)
		assert.Equal(t, "q-high", q)
	})

	t.Run("hash inside value is kept", func(t *testing.T) {
		s, err := Parse(ctx, []byte(`
; semicolon comment
[logging]
disposition_log_filename = /logs/#1/d.log
log_filename = /logs/c.log
plot_log_filename = /logs/p.log
[hadoop]
max_jobs = 1
timeout = 1
[hadoop_queue_mapping]
all = queue#1
`))
		require.NoError(t, err)
		assert.Equal(t, "/logs/#1/d.log", s.Logging.DispositionLogFilename)

		q, err := s.QueueMapping.Resolve("")
		assert.NoError(t, err)
		assert.Equal(t, "queue#1", q)
	})

	t.Run("every problem is reported", func(t *testing.T) {
		_, err := Parse(ctx, readTestdata(t, "broken.conf"))
		assert.ElementsMatch(t, []errors.ErrorCode{
			ErrMissingKey,
			ErrDuplicateLogPath,
			ErrInvalidInteger,
			ErrNonPositiveValue,
			ErrEmptyQueueMapping,
		}, errorCodes(t, err))
	})

	t.Run("missing sections", func(t *testing.T) {
		_, err := Parse(ctx, []byte("# nothing but a comment\n"))
		assert.Equal(t, []errors.ErrorCode{ErrMissingSection, ErrMissingSection, ErrMissingSection},
			errorCodes(t, err))
	})

	t.Run("empty integers are missing", func(t *testing.T) {
		_, err := Parse(ctx, []byte(`
[logging]
disposition_log_filename = /d.log
log_filename = /c.log
plot_log_filename = /p.log
[hadoop]
max_jobs =
[hadoop_queue_mapping]
all = ondemand
low =
`))
		assert.ElementsMatch(t, []errors.ErrorCode{ErrMissingKey, ErrMissingKey, ErrEmptyQueueName},
			errorCodes(t, err))
	})

	t.Run("hadoop ranges", func(t *testing.T) {
		tests := []struct {
			name    string
			maxJobs string
			timeout string
			codes   []errors.ErrorCode
			want    time.Duration
		}{
			{"largest timeout", "1", "9223372036854", nil, time.Duration(9223372036854) * time.Millisecond},
			{"timeout overflows duration", "1", "9223372036855", []errors.ErrorCode{ErrValueOutOfRange}, 0},
			{"timeout at int64 max", "1", "9223372036854775807", []errors.ErrorCode{ErrValueOutOfRange}, 0},
			{"timeout wraps to zero millis", "1", "18446744073709552", []errors.ErrorCode{ErrValueOutOfRange}, 0},
			{"timeout past int64", "1", "9223372036854775808", []errors.ErrorCode{ErrInvalidInteger}, 0},
			{"negative timeout", "1", "-5", []errors.ErrorCode{ErrNonPositiveValue}, 0},
			{"max jobs past int64", "99999999999999999999", "10", []errors.ErrorCode{ErrInvalidInteger}, 0},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				s, err := Parse(ctx, []byte(`
[logging]
disposition_log_filename = /d.log
log_filename = /c.log
plot_log_filename = /p.log
[hadoop]
max_jobs = `+tt.maxJobs+`
timeout = `+tt.timeout+`
[hadoop_queue_mapping]
all = ondemand
`))
				if len(tt.codes) > 0 {
					assert.Equal(t, tt.codes, errorCodes(t, err))
					return
				}

				require.NoError(t, err)
				assert.Equal(t, tt.want, s.Hadoop.Timeout)
				assert.Equal(t, tt.timeout, fmt.Sprint(s.Hadoop.TimeoutMillis()))
				assert.NoError(t, s.Validate())
			})
		}
	})

	t.Run("quotes are kept", func(t *testing.T) {
		s, err := Parse(ctx, []byte(`
[logging]
disposition_log_filename = "/a.log"
log_filename = /c.log
plot_log_filename = '/p.log'
[hadoop]
max_jobs = 1
timeout = 1
[hadoop_queue_mapping]
all = "ondemand"
`))
		require.NoError(t, err)
		assert.Equal(t, `"/a.log"`, s.Logging.DispositionLogFilename)
		assert.Equal(t, `'/p.log'`, s.Logging.PlotLogFilename)

		q, err := s.QueueMapping.Resolve("all")
		assert.NoError(t, err)
		assert.Equal(t, `"ondemand"`, q)

		buf := &bytes.Buffer{}
		_, err = s.WriteTo(buf)
		require.NoError(t, err)
		reparsed, err := Parse(ctx, buf.Bytes())
		require.NoError(t, err)
		assert.Equal(t, s, reparsed)
	})

	t.Run("malformed text", func(t *testing.T) {
		_, err := Parse(ctx, []byte("[logging]\nthis line has no delimiter\n"))
		assert.Error(t, err)
		assert.True(t, errors.IsCausedBy(err, ErrMalformed))
	})
}

func TestLoader_Strict(t *testing.T) {
	ctx := context.TODO()
	raw := readTestdata(t, "relative.conf")

	t.Run("lenient", func(t *testing.T) {
		s, err := Loader{}.Parse(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, "espa-disposition.log", s.Logging.DispositionLogFilename)
	})

	t.Run("strict", func(t *testing.T) {
		_, err := Loader{Strict: true}.Parse(ctx, raw)
		assert.ElementsMatch(t, []errors.ErrorCode{
			ErrUnknownKey,
			ErrUnknownKey,
			ErrUnknownSection,
			ErrRelativeLogPath,
		}, errorCodes(t, err))
	})

	t.Run("strict accepts deployment file", func(t *testing.T) {
		_, err := Loader{Strict: true}.Parse(ctx, readTestdata(t, "cron.conf"))
		assert.NoError(t, err)
	})
}

func TestLoad(t *testing.T) {
	ctx := context.TODO()

	t.Run("ok", func(t *testing.T) {
		s, err := Load(ctx, filepath.Join("testdata", "cron.conf"))
		require.NoError(t, err)
		assert.Equal(t, 150, s.Hadoop.MaxJobs)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join("testdata", "does-not-exist.conf"))
		assert.Error(t, err)
		assert.True(t, errors.IsCausedBy(err, ErrReadFailed))
	})

	t.Run("single problem keeps its code", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "cron.conf")
		require.NoError(t, os.WriteFile(path, []byte(`
[logging]
disposition_log_filename = /d.log
log_filename = /c.log
plot_log_filename = /p.log
[hadoop]
max_jobs = 0
timeout = 10
[hadoop_queue_mapping]
all = ondemand
`), 0600))

		_, err := Load(ctx, path)
		assert.True(t, errors.IsCausedBy(err, ErrNonPositiveValue))
		assert.Contains(t, err.Error(), path)
	})

	t.Run("several problems", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join("testdata", "broken.conf"))
		assert.True(t, errors.IsCausedBy(err, ErrMalformed))
	})
}

func TestSettings_Validate(t *testing.T) {
	assert.NoError(t, Default().Validate())

	empty := &Settings{}
	assert.ElementsMatch(t, []errors.ErrorCode{
		ErrMissingKey, ErrMissingKey, ErrMissingKey,
		ErrNonPositiveValue, ErrNonPositiveValue,
		ErrEmptyQueueMapping,
	}, errorCodes(t, empty.Validate()))

	s := Default()
	s.Logging.PlotLogFilename = "/tmp/../tmp/espa-cron.log"
	s.QueueMapping = queues.New(map[string]string{"high": ""})
	assert.ElementsMatch(t, []errors.ErrorCode{ErrDuplicateLogPath, ErrEmptyQueueName}, errorCodes(t, s.Validate()))

	relative := Default()
	relative.Logging.LogFilename = "cron.log"
	assert.NoError(t, relative.Validate())
	assert.Equal(t, []errors.ErrorCode{ErrRelativeLogPath}, errorCodes(t, relative.validate(true)))
}

func TestSettings_WriteTo(t *testing.T) {
	ctx := context.TODO()
	expected := Default()

	buf := &bytes.Buffer{}
	n, err := expected.WriteTo(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(buf.Len()), n)

	out := buf.String()
	assert.Contains(t, out, "[logging]")
	assert.Contains(t, out, "[hadoop]")
	assert.Contains(t, out, "[hadoop_queue_mapping]")
	assert.Contains(t, out, "172800000")
	assert.True(t, bytes.Index(buf.Bytes(), []byte("[hadoop]")) < bytes.Index(buf.Bytes(), []byte("[hadoop_queue_mapping]")))

	actual, err := Loader{Strict: true}.Parse(ctx, buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, expected, actual)
}

func TestSettings_JSON(t *testing.T) {
	raw, err := json.Marshal(Default())
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"logging": {
			"disposition_log_filename": "/tmp/espa-cron-disposition.log",
			"log_filename": "/tmp/espa-cron.log",
			"plot_log_filename": "/tmp/espa-cron-plot.log"
		},
		"hadoop": {"max_jobs": 150, "timeout": 172800000},
		"hadoop_queue_mapping": {"all": "ondemand", "low": "ondemand-low", "normal": "ondemand", "high": "ondemand-high"}
	}`, string(raw))

	actual := &Settings{}
	require.NoError(t, json.Unmarshal(raw, actual))
	assert.Equal(t, Default(), actual)

	h := Hadoop{}
	err = json.Unmarshal([]byte(`{"max_jobs": 1, "timeout": 9223372036854775807}`), &h)
	assert.True(t, errors.IsCausedBy(err, ErrValueOutOfRange))
	assert.Equal(t, time.Duration(0), h.Timeout)
}

func TestProblems(t *testing.T) {
	ctx := context.TODO()
	assert.Nil(t, Problems(nil))

	_, err := Load(ctx, filepath.Join("testdata", "broken.conf"))
	assert.Len(t, Problems(err), 5)

	_, err = Parse(ctx, readTestdata(t, "broken.conf"))
	assert.Len(t, Problems(err), 5)

	single := errors.Errorf(ErrMissingKey, "one problem")
	assert.Equal(t, []error{single}, Problems(single))
}
