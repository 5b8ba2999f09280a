package queues

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/flyteorg/flytestdlib/errors"
)

const (
	// DefaultPriority is the label used when a caller does not name a priority.
	DefaultPriority = "all"

	ErrUnknownPriority errors.ErrorCode = "UNKNOWN_PRIORITY"
)

// QueueMapping maps order priority labels onto Hadoop queue names. Labels are stored lower-cased. The zero value is an
// empty mapping and is safe to use.
type QueueMapping struct {
	entries map[string]string
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

// New builds a mapping from the given label -> queue pairs. If two labels only differ by case, the last one in map
// iteration order wins, so callers should not rely on it.
func New(entries map[string]string) QueueMapping {
	m := QueueMapping{entries: make(map[string]string, len(entries))}
	for label, queue := range entries {
		m.entries[normalizeLabel(label)] = strings.TrimSpace(queue)
	}

	return m
}

// Lookup returns the queue mapped to the exact label.
func (m QueueMapping) Lookup(priority string) (queue string, found bool) {
	queue, found = m.entries[normalizeLabel(priority)]
	return queue, found
}

// Resolve returns the queue for a priority label. An empty label resolves through the DefaultPriority entry.
func (m QueueMapping) Resolve(priority string) (string, error) {
	label := normalizeLabel(priority)
	if len(label) == 0 {
		label = DefaultPriority
	}

	queue, found := m.entries[label]
	if !found {
		return "", errors.Errorf(ErrUnknownPriority, "No queue mapped for priority [%s], known priorities [%s]",
			label, strings.Join(m.Priorities(), ", "))
	}

	return queue, nil
}

func (m QueueMapping) Len() int {
	return len(m.entries)
}

// Priorities returns every mapped label, sorted.
func (m QueueMapping) Priorities() []string {
	labels := make([]string, 0, len(m.entries))
	for label := range m.entries {
		labels = append(labels, label)
	}

	sort.Strings(labels)
	return labels
}

// Queues returns the distinct queue names, sorted. Several priorities commonly share a queue.
func (m QueueMapping) Queues() []string {
	seen := make(map[string]struct{}, len(m.entries))
	queues := make([]string, 0, len(m.entries))
	for _, queue := range m.entries {
		if _, ok := seen[queue]; ok {
			continue
		}

		seen[queue] = struct{}{}
		queues = append(queues, queue)
	}

	sort.Strings(queues)
	return queues
}

// Entries returns a copy of the underlying mapping.
func (m QueueMapping) Entries() map[string]string {
	res := make(map[string]string, len(m.entries))
	for label, queue := range m.entries {
		res[label] = queue
	}

	return res
}

func (m QueueMapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Entries())
}

func (m *QueueMapping) UnmarshalJSON(raw []byte) error {
	entries := map[string]string{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return err
	}

	*m = New(entries)
	return nil
}
