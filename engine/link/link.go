// Package link implements the duplex endpoint streaming attribute messages
// and large serialized buffers between World and Scenes. Two ports exist
// per peer: a message port (small payloads, high-water mark 1000, dropping
// newest when full) and a buffer port (serialized objects, high-water mark
// 8, sender backpressure with a 100 ms deadline).
package link

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/splashmapping/splash/common"
	"github.com/splashmapping/splash/engine/graph"
)

// MessageHandler receives decoded attribute-set messages.
type MessageHandler func(dest, attr string, args common.Values)

// BufferHandler receives decoded serialized buffers.
type BufferHandler func(s *graph.Serialized)

// Link is one endpoint of the inter-process transport. It owns the local
// receiving channels, the per-peer outgoing transports and the two input
// loops dispatching into the owning root object.
type Link struct {
	name string
	log  zerolog.Logger

	onMessage MessageHandler
	onBuffer  BufferHandler

	ep  *endpoint
	ipc *ipcListener

	mu     sync.Mutex
	peers  map[string]Transport
	scheme map[string]string

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewLink binds the endpoint under the given peer name on the in-process
// registry and starts the two input loops. Handlers dispatch into the
// owning root's Set and SetFromSerializedObject.
func NewLink(name string, onMessage MessageHandler, onBuffer BufferHandler, log zerolog.Logger) (*Link, error) {
	ep, err := registerInproc(name)
	if err != nil {
		return nil, err
	}
	l := &Link{
		name:      name,
		log:       log.With().Str("component", "link").Str("peer", name).Logger(),
		onMessage: onMessage,
		onBuffer:  onBuffer,
		ep:        ep,
		peers:     make(map[string]Transport),
		scheme:    make(map[string]string),
		stop:      make(chan struct{}),
	}
	l.wg.Add(2)
	go l.messageLoop()
	go l.bufferLoop()
	return l, nil
}

// ListenIPC additionally binds the local-machine IPC sockets at the given
// base path, so peers in other processes can reach this endpoint.
func (l *Link) ListenIPC(basePath string) error {
	ln, err := listenIPC(basePath, l.ep, l.log)
	if err != nil {
		return err
	}
	l.ipc = ln
	return nil
}

// ConnectTo establishes the outgoing transport toward a peer, addressed by
// URI: inproc://<peer> or ipc://<path>-<peer>. A connect failure is fatal
// to that peer only.
func (l *Link) ConnectTo(peer, uri string) error {
	scheme, addr, err := ParseURI(uri)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if prev, ok := l.scheme[peer]; ok && prev != scheme {
		return fmt.Errorf("%w: %s is %s, requested %s", ErrTransportMismatch, peer, prev, scheme)
	}
	if _, ok := l.peers[peer]; ok {
		return nil
	}

	var t Transport
	switch scheme {
	case "inproc":
		t, err = dialInproc(addr)
	case "ipc":
		t, err = dialIPC(addr, l.log)
	}
	if err != nil {
		l.log.Error().Err(err).Str("remote", peer).Msg("connect failed")
		return err
	}
	l.peers[peer] = t
	l.scheme[peer] = scheme
	l.log.Debug().Str("remote", peer).Str("uri", uri).Msg("connected")
	return nil
}

// DisconnectFrom drops the outgoing transport toward a peer.
func (l *Link) DisconnectFrom(peer string) {
	l.mu.Lock()
	t, ok := l.peers[peer]
	delete(l.peers, peer)
	delete(l.scheme, peer)
	l.mu.Unlock()
	if ok {
		t.Close()
	}
}

// Peers returns the names of all connected peers.
func (l *Link) Peers() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.peers))
	for p := range l.peers {
		out = append(out, p)
	}
	return out
}

// SendMessage pushes an attribute-set message to the peer. A saturated
// message port drops the newest message and reports the error back.
func (l *Link) SendMessage(peer, dest, attr string, args common.Values) error {
	t := l.transport(peer)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	if err := t.SendMessage(EncodeMessage(dest, attr, args)); err != nil {
		l.log.Warn().Err(err).Str("remote", peer).Str("attribute", attr).Msg("message send failed")
		return err
	}
	return nil
}

// SendBuffer pushes a serialized object to the peer, blocking up to 100 ms
// under high-water-mark backpressure. An empty buffer is a no-op.
func (l *Link) SendBuffer(peer string, s *graph.Serialized) error {
	if s == nil || s.Data == nil || s.Data.Size() == 0 {
		return nil
	}
	t := l.transport(peer)
	if t == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}
	return t.SendBuffer(EncodeBuffer(s), BufferSendTimeout)
}

func (l *Link) transport(peer string) Transport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peers[peer]
}

// messageLoop drains the message port and dispatches into the root.
func (l *Link) messageLoop() {
	defer l.wg.Done()
	for {
		select {
		case frame := <-l.ep.msgCh:
			dest, attr, args, err := DecodeMessage(frame)
			if err != nil {
				l.log.Warn().Err(err).Msg("dropping corrupted message frame")
				continue
			}
			if l.onMessage != nil {
				l.onMessage(dest, attr, args)
			}
		case <-l.stop:
			return
		}
	}
}

// bufferLoop drains the buffer port and dispatches into the root.
func (l *Link) bufferLoop() {
	defer l.wg.Done()
	for {
		select {
		case frame := <-l.ep.bufCh:
			s, err := DecodeBuffer(frame)
			if err != nil {
				l.log.Warn().Err(err).Msg("dropping corrupted buffer frame")
				continue
			}
			if l.onBuffer != nil {
				l.onBuffer(s)
			}
		case <-l.stop:
			return
		}
	}
}

// Close tears down the endpoint: input loops, listeners, all peers.
func (l *Link) Close() {
	l.once.Do(func() {
		close(l.stop)
		if l.ipc != nil {
			l.ipc.close()
		}
		l.mu.Lock()
		for _, t := range l.peers {
			t.Close()
		}
		l.peers = make(map[string]Transport)
		l.mu.Unlock()
		unregisterInproc(l.name)
		l.wg.Wait()
	})
}
