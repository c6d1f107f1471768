package repo

import (
	"slices"
	"strings"
	"sync"
)

// List is an ordered set of records keyed by url. The first record added for
// a url wins and later additions with the same url are rejected.
type List struct {
	mu      sync.RWMutex
	records []*Record
	byURL   map[string]*Record
}

// NewList returns an empty list
func NewList() *List {
	return &List{byURL: make(map[string]*Record)}
}

// Add starts a record for url built from d. It returns the record and true,
// or the already registered record and false.
func (l *List) Add(url string, d Defaults) (*Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.byURL[url]; ok {
		return existing, false
	}
	r := newRecord(url, d)
	l.records = append(l.records, r)
	l.byURL[url] = r
	return r, true
}

// Merge appends records whose url is not yet present and returns how many
// were added.
func (l *List) Merge(records []*Record) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	added := 0
	for _, r := range records {
		if _, ok := l.byURL[r.URL]; ok {
			continue
		}
		l.records = append(l.records, r)
		l.byURL[r.URL] = r
		added++
	}
	return added
}

// Len returns the number of records
func (l *List) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Get returns the record registered for url
func (l *List) Get(url string) (*Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	r, ok := l.byURL[url]
	return r, ok
}

// Records returns the records in registration order
func (l *List) Records() []*Record {
	return l.Since(0)
}

// Since returns the records registered at or after position idx
func (l *List) Since(idx int) []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if idx < 0 {
		idx = 0
	}
	if idx >= len(l.records) {
		return nil
	}
	return slices.Clone(l.records[idx:])
}

// Sorted returns the records ordered by url
func (l *List) Sorted() []*Record {
	records := l.Records()
	slices.SortFunc(records, func(a, b *Record) int {
		return strings.Compare(a.URL, b.URL)
	})
	return records
}
