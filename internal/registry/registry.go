package registry

import (
	"sort"
	"sync"

	"github.com/weiawesome/emergency-chat-relay/pkg/log"
)

// Handle is a registered connection as seen by the registry.
type Handle interface {
	// Send queues payload for delivery. A non-nil error means the handle is
	// not writable and the frame was dropped.
	Send(payload []byte) error
	Close(code int, reason string) error
}

type bucket struct {
	mu      sync.Mutex
	members map[string]Handle
	// dead is set once the bucket emptied and is being removed from the map.
	dead bool
}

// Registry maps emergencyID -> participantID -> Handle. Each emergency has
// its own lock; the map lock only guards finding, creating and dropping
// buckets. Lock order is bucket then map.
type Registry struct {
	mu      sync.RWMutex
	buckets map[string]*bucket
}

func New() *Registry {
	return &Registry{
		buckets: make(map[string]*bucket),
	}
}

func (r *Registry) lookup(emergencyID string) *bucket {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buckets[emergencyID]
}

func (r *Registry) getOrCreate(emergencyID string) *bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[emergencyID]
	if !ok {
		b = &bucket{members: make(map[string]Handle)}
		r.buckets[emergencyID] = b
	}
	return b
}

// removeBucket must be called with b.mu held.
func (r *Registry) removeBucket(emergencyID string, b *bucket) {
	b.dead = true

	r.mu.Lock()
	if r.buckets[emergencyID] == b {
		delete(r.buckets, emergencyID)
	}
	r.mu.Unlock()
}

// Register stores h for the pair and returns the handle it replaced, if any.
// The caller owns closing the replaced handle.
func (r *Registry) Register(emergencyID, participantID string, h Handle) Handle {
	for {
		b := r.getOrCreate(emergencyID)

		b.mu.Lock()
		if b.dead {
			// Lost a race with the last participant leaving; retry on a
			// fresh bucket.
			b.mu.Unlock()
			continue
		}
		prev := b.members[participantID]
		b.members[participantID] = h
		size := len(b.members)
		b.mu.Unlock()

		l := log.L()
		l.Debug().
			Str(log.FieldEmergencyID, emergencyID).
			Str(log.FieldParticipantID, participantID).
			Int("participants", size).
			Bool("replaced", prev != nil).
			Msg("participant registered")
		return prev
	}
}

// Unregister removes the pair if present.
func (r *Registry) Unregister(emergencyID, participantID string) {
	r.remove(emergencyID, participantID, nil)
}

// Release removes the pair only while it still maps to h. It reports whether
// h was removed.
func (r *Registry) Release(emergencyID, participantID string, h Handle) bool {
	if h == nil {
		return false
	}
	return r.remove(emergencyID, participantID, h)
}

func (r *Registry) remove(emergencyID, participantID string, expect Handle) bool {
	b := r.lookup(emergencyID)
	if b == nil {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.dead {
		return false
	}
	cur, ok := b.members[participantID]
	if !ok || (expect != nil && cur != expect) {
		return false
	}
	delete(b.members, participantID)
	if len(b.members) == 0 {
		r.removeBucket(emergencyID, b)
	}

	l := log.L()
	l.Debug().
		Str(log.FieldEmergencyID, emergencyID).
		Str(log.FieldParticipantID, participantID).
		Msg("participant unregistered")
	return true
}

// Broadcast sends payload to every handle of the emergency except exclude
// ("" excludes nobody) and returns how many accepted it.
func (r *Registry) Broadcast(emergencyID, exclude string, payload []byte) int {
	b := r.lookup(emergencyID)
	if b == nil {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	delivered := 0
	for participantID, h := range b.members {
		if exclude != "" && participantID == exclude {
			continue
		}
		if err := h.Send(payload); err != nil {
			continue
		}
		delivered++
	}
	return delivered
}

// Participants returns the sorted participant ids of the emergency.
func (r *Registry) Participants(emergencyID string) []string {
	b := r.lookup(emergencyID)
	if b == nil {
		return []string{}
	}

	b.mu.Lock()
	ids := make([]string, 0, len(b.members))
	for id := range b.members {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Count(emergencyID string) int {
	b := r.lookup(emergencyID)
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.members)
}

// Emergencies returns the number of emergencies with at least one
// participant.
func (r *Registry) Emergencies() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets)
}

// CloseAll closes every registered handle. Entries are left for the
// handles' own Release on their way out.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.RLock()
	buckets := make([]*bucket, 0, len(r.buckets))
	for _, b := range r.buckets {
		buckets = append(buckets, b)
	}
	r.mu.RUnlock()

	var handles []Handle
	for _, b := range buckets {
		b.mu.Lock()
		for _, h := range b.members {
			handles = append(handles, h)
		}
		b.mu.Unlock()
	}

	for _, h := range handles {
		_ = h.Close(code, reason)
	}

	l := log.L()
	l.Info().Int("connections", len(handles)).Msg("closed all connections")
}
