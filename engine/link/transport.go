package link

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// High-water marks of the two ports, matching the transport queue depths of
// the original installation protocol.
const (
	// MessageHWM bounds the message port; the newest message is dropped on
	// the sender when the queue is full, reported back as an error.
	MessageHWM = 1000
	// BufferHWM bounds the buffer port; the sender then blocks up to
	// BufferSendTimeout before giving up.
	BufferHWM = 8
	// BufferSendTimeout is the backpressure deadline of a buffer send.
	BufferSendTimeout = 100 * time.Millisecond
)

var (
	// ErrLinkOverflow is returned when a buffer send exceeded its deadline
	// under high-water-mark backpressure. The caller typically drops the
	// frame; the next update reserializes.
	ErrLinkOverflow = errors.New("link: buffer send deadline exceeded")
	// ErrMessageDropped is returned when the message port is saturated.
	ErrMessageDropped = errors.New("link: message high-water mark reached")
	// ErrUnknownPeer is returned when sending to a peer never connected to.
	ErrUnknownPeer = errors.New("link: unknown peer")
	// ErrTransportMismatch is returned when a peer is reachable through a
	// different transport than the one requested.
	ErrTransportMismatch = errors.New("link: transport mismatch for peer")
)

// Transport moves framed bytes toward one peer. Implementations exist for
// the in-process registry and for unix-socket IPC.
type Transport interface {
	// SendMessage queues a message frame; fails fast at the high-water mark.
	SendMessage(frame []byte) error

	// SendBuffer queues a buffer frame, blocking up to the deadline under
	// backpressure.
	SendBuffer(frame []byte, deadline time.Duration) error

	// Close releases the connection to the peer.
	Close() error
}

// endpoint is the receiving side of the in-process transport: two bounded
// channels drained by the owning Link's input loops.
type endpoint struct {
	msgCh chan []byte
	bufCh chan []byte
}

// inprocRegistry maps peer names to their endpoints, process-wide. The
// in-process transport is pointer-passed and zero-copy.
var inprocRegistry = struct {
	sync.Mutex
	peers map[string]*endpoint
}{peers: make(map[string]*endpoint)}

func registerInproc(name string) (*endpoint, error) {
	inprocRegistry.Lock()
	defer inprocRegistry.Unlock()
	if _, exists := inprocRegistry.peers[name]; exists {
		return nil, fmt.Errorf("link: inproc name %q already bound", name)
	}
	ep := &endpoint{
		msgCh: make(chan []byte, MessageHWM),
		bufCh: make(chan []byte, BufferHWM),
	}
	inprocRegistry.peers[name] = ep
	return ep, nil
}

func unregisterInproc(name string) {
	inprocRegistry.Lock()
	delete(inprocRegistry.peers, name)
	inprocRegistry.Unlock()
}

// inprocTransport sends into a peer endpoint living in the same process.
type inprocTransport struct {
	peer string
}

func dialInproc(peer string) (*inprocTransport, error) {
	inprocRegistry.Lock()
	_, ok := inprocRegistry.peers[peer]
	inprocRegistry.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	return &inprocTransport{peer: peer}, nil
}

func (t *inprocTransport) target() *endpoint {
	inprocRegistry.Lock()
	defer inprocRegistry.Unlock()
	return inprocRegistry.peers[t.peer]
}

func (t *inprocTransport) SendMessage(frame []byte) error {
	ep := t.target()
	if ep == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, t.peer)
	}
	select {
	case ep.msgCh <- frame:
		return nil
	default:
		return ErrMessageDropped
	}
}

func (t *inprocTransport) SendBuffer(frame []byte, deadline time.Duration) error {
	ep := t.target()
	if ep == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, t.peer)
	}
	select {
	case ep.bufCh <- frame:
		return nil
	case <-time.After(deadline):
		return ErrLinkOverflow
	}
}

func (t *inprocTransport) Close() error { return nil }

// ParseURI splits a transport URI into scheme and address. Supported
// schemes are "inproc" (peer name) and "ipc" (socket path).
func ParseURI(uri string) (scheme, addr string, err error) {
	scheme, addr, found := strings.Cut(uri, "://")
	if !found || addr == "" {
		return "", "", fmt.Errorf("link: invalid transport uri %q", uri)
	}
	switch scheme {
	case "inproc", "ipc":
		return scheme, addr, nil
	default:
		return "", "", fmt.Errorf("link: unsupported transport scheme %q", scheme)
	}
}
