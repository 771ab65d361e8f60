package core

// Frame is a raw outbound payload, already encoded for the wire.
type Frame []byte

// Conn abstracts one client's persistent connection. Owned by the adapter;
// the adapter must Close() it. TrySend never blocks: a full send buffer is
// reported as an error and the frame is dropped.
type Conn interface {
	ID() string
	TrySend(Frame) error
	Close()
}
