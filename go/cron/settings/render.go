package settings

import (
	"io"
	"strconv"

	"gopkg.in/ini.v1"
)

// WriteTo renders the settings as INI: sections in file order logging, hadoop, hadoop_queue_mapping, priorities
// sorted.
func (s *Settings) WriteTo(w io.Writer) (int64, error) {
	f, err := s.toINI()
	if err != nil {
		return 0, err
	}

	return f.WriteTo(w)
}

func (s *Settings) toINI() (*ini.File, error) {
	f := ini.Empty(loadOptions)

	logging, err := f.NewSection(SectionLogging)
	if err != nil {
		return nil, err
	}

	for _, key := range loggingKeys {
		if _, err := logging.NewKey(key, s.Logging.Get(key)); err != nil {
			return nil, err
		}
	}

	hadoop, err := f.NewSection(SectionHadoop)
	if err != nil {
		return nil, err
	}

	if _, err := hadoop.NewKey(KeyMaxJobs, strconv.Itoa(s.Hadoop.MaxJobs)); err != nil {
		return nil, err
	}

	if _, err := hadoop.NewKey(KeyTimeout, strconv.FormatInt(s.Hadoop.TimeoutMillis(), 10)); err != nil {
		return nil, err
	}

	mapping, err := f.NewSection(SectionQueueMapping)
	if err != nil {
		return nil, err
	}

	entries := s.QueueMapping.Entries()
	for _, label := range s.QueueMapping.Priorities() {
		if _, err := mapping.NewKey(label, entries[label]); err != nil {
			return nil, err
		}
	}

	return f, nil
}
