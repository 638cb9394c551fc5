package core

import "sync"

// UnknownUser is the identity of a connection that has not registered yet.
const UnknownUser = "unknown"

// Member is one registered connection's identity within a channel.
type Member struct {
	UserID      string
	DisplayName string
}

type entry struct {
	userID      string
	displayName string
	channelID   string
}

// connMember pairs a channel member with its live connection for fanout.
type connMember struct {
	conn   *Conn
	member Member
}

// Registry is the process-local source of truth for which sockets exist,
// who they are, and what channel they are in. Every operation is a single
// critical section; nothing in here does I/O or blocks, which is what keeps
// Join and OnClose for the same connection from interleaving half-applied.
type Registry struct {
	mu      sync.Mutex
	entries map[*Conn]*entry
}

// NewRegistry constructs an empty registry. One per process, owned by the
// app and injected into the coordinator and fanout.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[*Conn]*entry)}
}

// OnOpen inserts a fresh entry for a just-accepted socket.
func (r *Registry) OnOpen(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[c] = &entry{userID: UnknownUser}
}

// Register sets the connection's identity. Overwriting an earlier register
// is allowed (idempotent), but not once the connection sits in a channel:
// the store's membership would stay keyed to the old user id.
func (r *Registry) Register(c *Conn, userID, displayName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[c]
	if !ok {
		return ErrUnknownConn
	}
	if e.channelID != "" && e.userID != userID {
		return ErrInChannel
	}
	e.userID = userID
	e.displayName = displayName
	return nil
}

// Join puts the connection into a channel and returns its user id plus the
// channel it was in before, if any, so the caller can run leave side effects
// for the implicit channel switch. Refused while unregistered.
func (r *Registry) Join(c *Conn, channelID string) (userID, prev string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[c]
	if !ok {
		return "", "", ErrUnknownConn
	}
	if e.userID == UnknownUser {
		return "", "", ErrNotRegistered
	}
	prev = e.channelID
	e.channelID = channelID
	return e.userID, prev, nil
}

// Leave clears the connection's channel and reports what it left. A
// connection that is not in a channel leaves nothing; that is not an error.
func (r *Registry) Leave(c *Conn) (userID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[c]
	if !ok || e.channelID == "" {
		return "", ""
	}
	channelID = e.channelID
	e.channelID = ""
	return e.userID, channelID
}

// OnClose removes the entry entirely, reporting the last-known identity and
// channel so the caller can run the same cleanup as an explicit leave.
func (r *Registry) OnClose(c *Conn) (userID, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[c]
	if !ok {
		return "", ""
	}
	delete(r.entries, c)
	if e.userID == UnknownUser {
		return "", ""
	}
	return e.userID, e.channelID
}

// MembersOf snapshots the identities currently in a channel. Recomputed on
// every call, order unspecified.
func (r *Registry) MembersOf(channelID string) []Member {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Member
	for _, e := range r.entries {
		if e.channelID == channelID {
			out = append(out, Member{UserID: e.userID, DisplayName: e.displayName})
		}
	}
	return out
}

// channelSnapshot returns members together with their connections, taken
// under one lock so the fanout payload and recipient list agree.
func (r *Registry) channelSnapshot(channelID string) []connMember {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []connMember
	for c, e := range r.entries {
		if e.channelID == channelID {
			out = append(out, connMember{
				conn:   c,
				member: Member{UserID: e.userID, DisplayName: e.displayName},
			})
		}
	}
	return out
}
