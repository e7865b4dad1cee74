// Package roster tracks the community members eligible for proximity
// notifications.
package roster

import (
	"sync"

	"github.com/ursa-watch/ursa/pkg/geo"
	"github.com/ursa-watch/ursa/pkg/messages"
)

// Member is one registered community member.
type Member struct {
	ContactID string            `koanf:"contact_id" json:"contact_id"`
	Name      string            `koanf:"name" json:"name"`
	Location  messages.Position `koanf:"location" json:"location"`
}

// Roster is a concurrency-safe member registry.
type Roster struct {
	mu      sync.RWMutex
	members map[string]Member
}

// New creates a roster seeded with the given members. Duplicate contact
// IDs keep the last entry.
func New(members ...Member) *Roster {
	r := &Roster{members: make(map[string]Member, len(members))}
	for _, m := range members {
		r.members[m.ContactID] = m
	}
	return r
}

// Upsert adds or replaces a member.
func (r *Roster) Upsert(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[m.ContactID] = m
}

// Remove deletes a member, reporting whether it existed.
func (r *Roster) Remove(contactID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[contactID]
	delete(r.members, contactID)
	return ok
}

// Members returns all members in unspecified order.
func (r *Roster) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// Within returns members whose registered location lies inside
// radiusMiles of the given position.
func (r *Roster) Within(pos messages.Position, radiusMiles float64) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Member
	for _, m := range r.members {
		if geo.Distance(pos, m.Location) <= radiusMiles {
			out = append(out, m)
		}
	}
	return out
}
