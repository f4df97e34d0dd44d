package pickup

// timedEntry is one tracked key.
type timedEntry[K comparable] struct {
	key     K
	timeout float64
	value   float64
}

// TimedList is a small fixed-capacity set of keys that expire at a given
// time. When full, a new key displaces the least valuable entry unless it
// is worth less than every entry.
type TimedList[K comparable] struct {
	max     int
	entries []timedEntry[K]
}

// NewTimedList creates a list holding at most n keys.
func NewTimedList[K comparable](n int) *TimedList[K] {
	n = max(n, 0)
	return &TimedList[K]{max: n, entries: make([]timedEntry[K], 0, n)}
}

// Cap is the capacity.
func (l *TimedList[K]) Cap() int { return l.max }

// Len is the number of tracked keys.
func (l *TimedList[K]) Len() int { return len(l.entries) }

// Reset forgets every key.
func (l *TimedList[K]) Reset() { l.entries = l.entries[:0] }

// SetCap changes the capacity, dropping the least valuable entries when
// the list shrinks.
func (l *TimedList[K]) SetCap(n int) {
	l.max = max(n, 0)
	for len(l.entries) > l.max {
		l.remove(l.minValue())
	}
}

// Index returns the position of key, -1 when absent.
func (l *TimedList[K]) Index(key K) int {
	for i := range l.entries {
		if l.entries[i].key == key {
			return i
		}
	}
	return -1
}

// Key returns the key at position i.
func (l *TimedList[K]) Key(i int) K { return l.entries[i].key }

// Timeout returns when key expires.
func (l *TimedList[K]) Timeout(key K) (float64, bool) {
	i := l.Index(key)
	if i < 0 {
		return 0, false
	}
	return l.entries[i].timeout, true
}

// Keys returns the tracked keys in insertion order.
func (l *TimedList[K]) Keys() []K {
	keys := make([]K, len(l.entries))
	for i, e := range l.entries {
		keys[i] = e.key
	}
	return keys
}

// Add tracks key until timeout, or refreshes it when already tracked. It
// returns the key's position, -1 when the key was not added.
func (l *TimedList[K]) Add(key K, timeout, value float64) int {
	if l.max <= 0 {
		return -1
	}
	if i := l.Index(key); i >= 0 {
		l.entries[i].timeout = timeout
		l.entries[i].value = value
		return i
	}
	full := len(l.entries) >= l.max
	if full && value < l.entries[l.minValue()].value {
		return -1
	}
	e := timedEntry[K]{key: key, timeout: timeout, value: value}
	if full {
		i := l.minValue()
		l.entries[i] = e
		return i
	}
	l.entries = append(l.entries, e)
	return len(l.entries) - 1
}

// Expire drops every key whose timeout is before now and returns the
// dropped keys.
func (l *TimedList[K]) Expire(now float64) []K {
	var dropped []K
	kept := l.entries[:0]
	for _, e := range l.entries {
		if e.timeout < now {
			dropped = append(dropped, e.key)
			continue
		}
		kept = append(kept, e)
	}
	l.entries = kept
	return dropped
}

// minValue returns the position of the least valuable entry, the earliest
// one on ties. The list must not be empty.
func (l *TimedList[K]) minValue() int {
	best := 0
	for i := 1; i < len(l.entries); i++ {
		if l.entries[i].value < l.entries[best].value {
			best = i
		}
	}
	return best
}

func (l *TimedList[K]) remove(i int) {
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
}
