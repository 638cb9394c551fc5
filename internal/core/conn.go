package core

// Conn is the core's view of one open socket: an id for logging plus a
// buffered outbound queue drained by the transport's write loop. The core
// only ever pushes into Out; it never writes to the socket itself.
type Conn struct {
	ID  string
	Out chan []byte
}

// NewConn constructs a connection handle with an initialized outbound queue.
func NewConn(id string) *Conn {
	return &Conn{
		ID:  id,
		Out: make(chan []byte, 16),
	}
}
