// Copyright (C) 2024 the rhub contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package reslock

import (
	"sync"
	"time"

	"github.com/jshub/rhub/graph"
)

// HistoryEntry is one record in the lock-history log: attempt, acquire,
// release, upgrade, or fail.
type HistoryEntry struct {
	Action    string
	Key       graph.Key
	Owner     Owner
	Mode      Mode
	Timestamp time.Time
}

// History is a bounded ring buffer of lock-history entries with monotonic
// timestamps. It is disabled by default (per spec, the log is optional)
// and is only written to when a Locker is constructed WithHistory.
type History struct {
	mu      sync.Mutex
	entries []HistoryEntry
	cap     int
	next    int
	full    bool
}

// NewHistory returns a ring buffer that retains at most capacity entries.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 256
	}
	return &History{entries: make([]HistoryEntry, capacity), cap: capacity}
}

func (h *History) record(e HistoryEntry) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	e.Timestamp = time.Now()
	h.entries[h.next] = e
	h.next = (h.next + 1) % h.cap
	if h.next == 0 {
		h.full = true
	}
}

// Entries returns a copy of the retained history, oldest first.
func (h *History) Entries() []HistoryEntry {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		out := make([]HistoryEntry, h.next)
		copy(out, h.entries[:h.next])
		return out
	}
	out := make([]HistoryEntry, h.cap)
	copy(out, h.entries[h.next:])
	copy(out[h.cap-h.next:], h.entries[:h.next])
	return out
}
