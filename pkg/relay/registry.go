package relay

import (
	"sync"

	"github.com/ProCodeJH/antigravity-remote-control/pkg/relay/proto"
)

// ConnectionRegistry maps (sessionID, role) to the live peer channel
// currently bound to that slot. Registering replaces any prior entry
// and hands it back to the caller; unregistering removes the entry only
// if it still points at the given channel, so a late close handler can
// never evict a connection that has since replaced it.
type ConnectionRegistry struct {
	mu      sync.RWMutex
	agents  map[string]*PeerChannel
	mobiles map[string]*PeerChannel
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		agents:  make(map[string]*PeerChannel),
		mobiles: make(map[string]*PeerChannel),
	}
}

func (r *ConnectionRegistry) slot(role proto.Role) map[string]*PeerChannel {
	if role == proto.RoleAgent {
		return r.agents
	}
	return r.mobiles
}

// Register binds the channel to the (sessionID, role) slot and returns
// the displaced channel, if any, so the caller can notify it.
func (r *ConnectionRegistry) Register(sessionID string, role proto.Role, pc *PeerChannel) *PeerChannel {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.slot(role)
	displaced := slot[sessionID]
	slot[sessionID] = pc

	if displaced == pc {
		return nil
	}
	return displaced
}

// Unregister removes the slot entry only when it still matches the
// given channel. Reports whether an entry was removed.
func (r *ConnectionRegistry) Unregister(sessionID string, role proto.Role, pc *PeerChannel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := r.slot(role)
	if slot[sessionID] != pc {
		return false
	}
	delete(slot, sessionID)
	return true
}

// Lookup returns the channel bound to (sessionID, role), or nil.
func (r *ConnectionRegistry) Lookup(sessionID string, role proto.Role) *PeerChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.slot(role)[sessionID]
}

// LookupPeer returns the live channel of the *other* role for the same
// session: an agent asks for the mobile and vice versa.
func (r *ConnectionRegistry) LookupPeer(sessionID string, role proto.Role) *PeerChannel {
	return r.Lookup(sessionID, role.Counterpart())
}

// CountActive reports the number of live channels bound for the role.
func (r *ConnectionRegistry) CountActive(role proto.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.slot(role))
}

// Channels returns a snapshot of every registered channel. The sweeper
// iterates the snapshot so it never holds the registry lock while
// touching individual connections.
func (r *ConnectionRegistry) Channels() []*PeerChannel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[*PeerChannel]bool, len(r.agents)+len(r.mobiles))
	channels := make([]*PeerChannel, 0, len(r.agents)+len(r.mobiles))
	for _, pc := range r.agents {
		if !seen[pc] {
			seen[pc] = true
			channels = append(channels, pc)
		}
	}
	for _, pc := range r.mobiles {
		if !seen[pc] {
			seen[pc] = true
			channels = append(channels, pc)
		}
	}
	return channels
}
