package parser

import "time"

// accumulator holds in-flight streaming entries keyed by the most stable
// identifier the backend provides (item/tool-call id, falling back to a
// per-panel key). State is owned by one parser instance; eviction happens
// on the terminal event for a key, so there is no cross-session leakage.
type accumulator struct {
	entries map[string]*NormalizedEntry
}

func newAccumulator() *accumulator {
	return &accumulator{entries: make(map[string]*NormalizedEntry)}
}

// append adds a delta to the entry for key, creating it on first sight, and
// returns a snapshot carrying the full accumulated content with Streaming set.
func (a *accumulator) append(key string, entryType EntryType, delta string) *NormalizedEntry {
	e, ok := a.entries[key]
	if !ok {
		e = &NormalizedEntry{
			ID:        key,
			Timestamp: time.Now(),
			EntryType: entryType,
		}
		a.entries[key] = e
	}
	e.Content += delta

	snapshot := *e
	snapshot.Streaming = true
	return &snapshot
}

// finalize evicts the entry for key and returns it with Streaming cleared.
// Returns nil if no deltas were ever accumulated for the key.
func (a *accumulator) finalize(key string) *NormalizedEntry {
	e, ok := a.entries[key]
	if !ok {
		return nil
	}
	delete(a.entries, key)
	e.Streaming = false
	return e
}

// pending reports whether a key has accumulated state
func (a *accumulator) pending(key string) bool {
	_, ok := a.entries[key]
	return ok
}
