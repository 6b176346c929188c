package acquisition

import (
	"slices"
	"sync"
	"time"

	"github.com/mklimuk/arinc429"
)

type Key struct {
	Channel int
	Label   uint8
}

type Entry struct {
	Key
	Word      arinc429.Word
	Timestamp int64
	Elapsed   time.Duration
}

// Table keeps the most recent word seen per channel and label. Only the
// poller writes to it while monitoring.
type Table struct {
	mx      sync.RWMutex
	entries map[Key]Entry
}

func NewTable() *Table {
	return &Table{entries: make(map[Key]Entry)}
}

func (t *Table) Update(a Acquired) {
	k := Key{Channel: a.Channel, Label: a.Label}
	t.mx.Lock()
	t.entries[k] = Entry{Key: k, Word: a.Word, Timestamp: a.Timestamp, Elapsed: a.Elapsed}
	t.mx.Unlock()
}

func (t *Table) Get(channel int, label uint8) (Entry, bool) {
	t.mx.RLock()
	defer t.mx.RUnlock()
	e, ok := t.entries[Key{Channel: channel, Label: label}]
	return e, ok
}

// Snapshot returns every entry sorted by channel and label.
func (t *Table) Snapshot() []Entry {
	t.mx.RLock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mx.RUnlock()
	sortEntries(out)
	return out
}

// Stale returns the entries not refreshed within threshold of now, where now
// is a monotonic offset as reported by Clock.Elapsed.
func (t *Table) Stale(now, threshold time.Duration) []Entry {
	t.mx.RLock()
	var out []Entry
	for _, e := range t.entries {
		if now-e.Elapsed > threshold {
			out = append(out, e)
		}
	}
	t.mx.RUnlock()
	sortEntries(out)
	return out
}

func (t *Table) Len() int {
	t.mx.RLock()
	defer t.mx.RUnlock()
	return len(t.entries)
}

func (t *Table) Reset() {
	t.mx.Lock()
	clear(t.entries)
	t.mx.Unlock()
}

func sortEntries(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		if a.Channel != b.Channel {
			return a.Channel - b.Channel
		}
		return int(a.Label) - int(b.Label)
	})
}
