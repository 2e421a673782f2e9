// Package registry tracks which connection is joined to which room.
//
// Room membership is not stored as an entity: a room is the set of registered
// connections carrying its id. The registry keeps an index from room id to
// connection ids so membership views cost O(room size) rather than a scan of
// every connection.
package registry

import (
	"sort"
	"sync"

	"github.com/victornm/quizroom/internal/domain"
)

type record struct {
	domain.Entry
	seq uint64
}

type indexed struct {
	id string
	record
}

// Registry is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[string]record
	rooms   map[string]map[string]struct{}
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]record),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Register inserts or overwrites the entry of a connection and returns the
// entry it replaced, if any. Re-registering into the same room keeps the
// connection's position in the membership order; moving to another room puts
// it last in the new room.
func (r *Registry) Register(id, username, roomID string) (domain.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, replaced := r.entries[id]
	if replaced && prev.RoomID == roomID {
		rec := prev
		rec.Username = username
		r.entries[id] = rec
		return prev.Entry, true
	}

	if replaced {
		r.unindex(prev.RoomID, id)
	}

	r.seq++
	r.entries[id] = record{
		Entry: domain.Entry{Username: username, RoomID: roomID},
		seq:   r.seq,
	}

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[roomID] = members
	}
	members[id] = struct{}{}

	return prev.Entry, replaced
}

// Unregister removes the connection and returns the removed entry.
func (r *Registry) Unregister(id string) (domain.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.entries[id]
	if !ok {
		return domain.Entry{}, false
	}

	delete(r.entries, id)
	r.unindex(rec.RoomID, id)

	return rec.Entry, true
}

func (r *Registry) unindex(roomID, id string) {
	members := r.rooms[roomID]
	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}
}

// MembersOf returns the room's members in registration order.
// The order is a snapshot; concurrent registrations may land on either side of it.
func (r *Registry) MembersOf(roomID string) []domain.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.rooms[roomID]
	recs := make([]indexed, 0, len(ids))
	for id := range ids {
		recs = append(recs, indexed{id: id, record: r.entries[id]})
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	members := make([]domain.Member, 0, len(recs))
	for _, m := range recs {
		members = append(members, domain.Member{ID: m.id, Username: m.Username})
	}

	return members
}

// Count returns the number of connections joined to the room.
func (r *Registry) Count(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms[roomID])
}

// Stats returns the number of non-empty rooms and registered connections.
func (r *Registry) Stats() (rooms, connections int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms), len(r.entries)
}
