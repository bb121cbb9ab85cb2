package sync

import (
	"time"

	"github.com/nhle/pmnotify/internal/model"
)

// Popup is a notification currently surfaced as an ephemeral popup.
type Popup struct {
	Notification model.Notification
	AddedAt      time.Time
	Deadline     time.Time
}

// Snapshot is a consistent read-only copy of the sync state.
type Snapshot struct {
	// Notifications is the last fetched list in server order, with
	// optimistic mutations applied.
	Notifications []model.Notification

	// UnreadCount is the cached number of unread notifications.
	UnreadCount int

	// Popups is the popup queue, oldest first.
	Popups []Popup

	// Running reports whether periodic sync is active.
	Running bool

	// LastSync is when a fetch result was last applied.
	LastSync time.Time

	// Err is the most recent fetch error, cleared by the next
	// successful fetch.
	Err error
}

// mutationKind identifies an optimistic mutation in the journal.
type mutationKind int

const (
	mutMarkRead mutationKind = iota
	mutMarkAllRead
	mutDelete
)

// mutation is an optimistic change made while a fetch may be in flight.
// afterSeq is the last issued tick sequence when the change was made;
// results of ticks with seq <= afterSeq were fetched before it.
type mutation struct {
	kind     mutationKind
	id       string
	afterSeq uint64
}

// state is the client-local notification view. It is only touched with
// the Syncer mutex held.
type state struct {
	all     map[string]model.Notification
	order   []string
	unread  int
	journal []mutation
}

func newState() state {
	return state{all: make(map[string]model.Notification)}
}

// countUnread recomputes the unread count from all.
func (st *state) countUnread() int {
	n := 0
	for _, item := range st.all {
		if !item.Read {
			n++
		}
	}
	return n
}

// decrementUnread lowers the cached count, never below zero.
func (st *state) decrementUnread() {
	if st.unread > 0 {
		st.unread--
	}
}

// list returns the notifications in fetch order.
func (st *state) list() []model.Notification {
	out := make([]model.Notification, 0, len(st.order))
	for _, id := range st.order {
		if n, ok := st.all[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// removeFromOrder drops id from the order slice and returns its former
// index, or -1.
func (st *state) removeFromOrder(id string) int {
	for i, v := range st.order {
		if v == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			return i
		}
	}
	return -1
}

// insertAt puts n back at index i of the order (clamped).
func (st *state) insertAt(i int, n model.Notification) {
	if _, exists := st.all[n.ID]; exists {
		return
	}
	st.all[n.ID] = n
	if i < 0 || i > len(st.order) {
		i = len(st.order)
	}
	st.order = append(st.order, "")
	copy(st.order[i+1:], st.order[i:])
	st.order[i] = n.ID
}

// record appends a mutation to the journal.
func (st *state) record(kind mutationKind, id string, afterSeq uint64) {
	st.journal = append(st.journal, mutation{kind: kind, id: id, afterSeq: afterSeq})
}

// forget removes journal entries matching kind and id. Used when a
// mutation is rolled back.
func (st *state) forget(kind mutationKind, id string) {
	kept := st.journal[:0]
	for _, m := range st.journal {
		if m.kind == kind && m.id == id {
			continue
		}
		kept = append(kept, m)
	}
	st.journal = kept
}

// replay re-applies mutations made after tick seq was issued onto a
// freshly fetched list, in the order they were made. fetched is edited
// in place and must belong to the caller (see Syncer.dedupe).
func (st *state) replay(seq uint64, fetched []model.Notification) []model.Notification {
	for _, m := range st.journal {
		if m.afterSeq < seq {
			continue
		}
		switch m.kind {
		case mutMarkRead:
			for i := range fetched {
				if fetched[i].ID == m.id {
					fetched[i].Read = true
				}
			}
		case mutMarkAllRead:
			for i := range fetched {
				fetched[i].Read = true
			}
		case mutDelete:
			kept := fetched[:0]
			for _, n := range fetched {
				if n.ID != m.id {
					kept = append(kept, n)
				}
			}
			fetched = kept
		}
	}
	return fetched
}

// trimJournal drops mutations that no later tick can need.
func (st *state) trimJournal(appliedSeq uint64) {
	kept := st.journal[:0]
	for _, m := range st.journal {
		if m.afterSeq > appliedSeq {
			kept = append(kept, m)
		}
	}
	st.journal = kept
}
