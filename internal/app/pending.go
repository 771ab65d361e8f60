package app

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAckTimeout reports that the counterparty never answered a correlated
// exchange within its bounded wait.
var ErrAckTimeout = errors.New("acknowledgment timed out")

// Exchange kinds. The kind is part of the table key so concurrent
// exchanges of different kinds for the same member never replace each
// other.
const (
	ExchangeTimestamp = "timestamp"
	ExchangePeerAck   = "peer-ack"
)

type pendingEntry struct {
	ch      chan []byte
	expires time.Time
	reaper  *time.Timer
}

// Pending is the table of open request/response exchanges layered on the
// push transport: a "request" relayed to one connection is answered by a
// separate, later message from that connection. Entries are keyed by
// kind+channel+correlation id and expire, so an answer that never arrives
// leaves nothing dangling and a late answer is dropped.
type Pending struct {
	mu      sync.Mutex
	entries map[string]*pendingEntry
}

func NewPending() *Pending {
	return &Pending{entries: make(map[string]*pendingEntry)}
}

func pendingKey(kind, channel, id string) string {
	return kind + "/" + channel + "/" + id
}

// Register opens an exchange and returns the channel its answer will
// arrive on. A re-register replaces the previous entry (last request wins,
// as with a client re-issuing). An entry nobody answers is reaped at its
// ttl, so fire-and-forget registrations cannot accumulate.
func (p *Pending) Register(kind, channel, id string, ttl time.Duration) <-chan []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey(kind, channel, id)
	if old, ok := p.entries[key]; ok {
		old.reaper.Stop()
	}
	entry := &pendingEntry{
		ch:      make(chan []byte, 1),
		expires: time.Now().Add(ttl),
	}
	entry.reaper = time.AfterFunc(ttl, func() { p.reap(key, entry) })
	p.entries[key] = entry
	return entry.ch
}

// reap drops the entry at expiry unless it was already resolved, forgotten
// or replaced by a newer registration.
func (p *Pending) reap(key string, entry *pendingEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if current, ok := p.entries[key]; ok && current == entry {
		delete(p.entries, key)
	}
}

// Resolve completes the exchange. False means no exchange is open (never
// requested, already answered, or expired) and the answer must be dropped.
func (p *Pending) Resolve(kind, channel, id string, payload []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey(kind, channel, id)
	entry, ok := p.entries[key]
	if !ok {
		return false
	}
	entry.reaper.Stop()
	delete(p.entries, key)
	if time.Now().After(entry.expires) {
		return false
	}
	entry.ch <- payload
	return true
}

// Await blocks on a previously registered exchange until it resolves, the
// ttl elapses, or the context is done.
func (p *Pending) Await(ctx context.Context, ch <-chan []byte, kind, channel, id string, ttl time.Duration) ([]byte, error) {
	timer := time.NewTimer(ttl)
	defer timer.Stop()

	select {
	case payload := <-ch:
		return payload, nil
	case <-timer.C:
		p.Forget(kind, channel, id)
		return nil, ErrAckTimeout
	case <-ctx.Done():
		p.Forget(kind, channel, id)
		return nil, ctx.Err()
	}
}

func (p *Pending) Forget(kind, channel, id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pendingKey(kind, channel, id)
	if entry, ok := p.entries[key]; ok {
		entry.reaper.Stop()
		delete(p.entries, key)
	}
}

// open reports how many exchanges are currently registered.
func (p *Pending) open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}
