package lintcache

import (
	"sync"

	"github.com/Sumatoshi-tech/treelint/pkg/diag"
)

// DefaultMemoryEntries is the default in-memory LRU capacity. Result sets are
// small (a handful of findings per file), so a per-entry bound suffices.
const DefaultMemoryEntries = 1024

// lruStore is the in-memory front: a map plus doubly-linked list bounding the
// number of resident result sets.
type lruStore struct {
	mu       sync.Mutex
	entries  map[Key]*lruEntry
	head     *lruEntry // Most recently used.
	tail     *lruEntry // Least recently used.
	capacity int
}

// lruEntry is a doubly-linked list node for LRU tracking.
type lruEntry struct {
	key      Key
	findings []diag.Diagnostic
	prev     *lruEntry
	next     *lruEntry
}

func newLRUStore(capacity int) *lruStore {
	if capacity <= 0 {
		capacity = DefaultMemoryEntries
	}

	return &lruStore{entries: make(map[Key]*lruEntry), capacity: capacity}
}

func (s *lruStore) get(key Key) ([]diag.Diagnostic, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}

	s.moveToFront(entry)

	return entry.findings, true
}

func (s *lruStore) put(key Key, findings []diag.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[key]; ok {
		entry.findings = findings
		s.moveToFront(entry)

		return
	}

	for len(s.entries) >= s.capacity && s.tail != nil {
		s.evictTail()
	}

	entry := &lruEntry{key: key, findings: findings}
	s.entries[key] = entry
	s.addToFront(entry)
}

func (s *lruStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *lruStore) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[Key]*lruEntry)
	s.head = nil
	s.tail = nil
}

// moveToFront moves an entry to the front of the LRU list (most recently used).
func (s *lruStore) moveToFront(entry *lruEntry) {
	if entry == s.head {
		return
	}

	s.removeFromList(entry)
	s.addToFront(entry)
}

// addToFront adds an entry to the front of the LRU list.
func (s *lruStore) addToFront(entry *lruEntry) {
	entry.prev = nil
	entry.next = s.head

	if s.head != nil {
		s.head.prev = entry
	}

	s.head = entry

	if s.tail == nil {
		s.tail = entry
	}
}

// removeFromList removes an entry from the LRU list.
func (s *lruStore) removeFromList(entry *lruEntry) {
	if entry.prev != nil {
		entry.prev.next = entry.next
	} else {
		s.head = entry.next
	}

	if entry.next != nil {
		entry.next.prev = entry.prev
	} else {
		s.tail = entry.prev
	}
}

// evictTail removes the least recently used entry.
func (s *lruStore) evictTail() {
	victim := s.tail
	if victim == nil {
		return
	}

	s.removeFromList(victim)
	delete(s.entries, victim.key)
}
