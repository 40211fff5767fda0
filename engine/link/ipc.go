package link

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxFrameSize bounds a single IPC frame; larger declared lengths are
// treated as corruption.
const maxFrameSize = 1 << 30

// ipcListener binds the two receiving unix sockets of a peer and feeds
// decoded frames into the same channels the in-process transport uses.
type ipcListener struct {
	msgLn net.Listener
	bufLn net.Listener
	ep    *endpoint
	log   zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// listenIPC binds <path>.msg and <path>.buf unix sockets.
func listenIPC(path string, ep *endpoint, log zerolog.Logger) (*ipcListener, error) {
	_ = os.Remove(path + ".msg")
	_ = os.Remove(path + ".buf")

	msgLn, err := net.Listen("unix", path+".msg")
	if err != nil {
		return nil, fmt.Errorf("link: cannot bind message socket: %w", err)
	}
	bufLn, err := net.Listen("unix", path+".buf")
	if err != nil {
		msgLn.Close()
		return nil, fmt.Errorf("link: cannot bind buffer socket: %w", err)
	}

	l := &ipcListener{
		msgLn: msgLn,
		bufLn: bufLn,
		ep:    ep,
		log:   log,
		stop:  make(chan struct{}),
	}
	l.wg.Add(2)
	go l.acceptLoop(msgLn, ep.msgCh)
	go l.acceptLoop(bufLn, ep.bufCh)
	return l, nil
}

func (l *ipcListener) acceptLoop(ln net.Listener, out chan []byte) {
	defer l.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-l.stop:
				return
			default:
				l.log.Warn().Err(err).Msg("ipc accept failed")
				continue
			}
		}
		l.wg.Add(1)
		go l.readLoop(conn, out)
	}
}

// readLoop reads length-prefixed frames. A corrupted length prefix or a
// truncated frame closes the connection; the stream is never scanned for
// resynchronization. The sending ipcTransport does not redial: its writer
// stops at the next failed write.
func (l *ipcListener) readLoop(conn net.Conn, out chan []byte) {
	defer l.wg.Done()
	defer conn.Close()
	var header [4]byte
	for {
		if _, err := io.ReadFull(conn, header[:]); err != nil {
			if err != io.EOF {
				l.log.Warn().Err(err).Msg("ipc read failed, closing connection")
			}
			return
		}
		size := binary.LittleEndian.Uint32(header[:])
		if size == 0 || size > maxFrameSize {
			l.log.Warn().Uint32("size", size).Msg("corrupted ipc frame, closing connection")
			return
		}
		frame := make([]byte, size)
		if _, err := io.ReadFull(conn, frame); err != nil {
			l.log.Warn().Err(err).Msg("truncated ipc frame, closing connection")
			return
		}
		select {
		case out <- frame:
		case <-l.stop:
			return
		}
	}
}

func (l *ipcListener) close() {
	close(l.stop)
	l.msgLn.Close()
	l.bufLn.Close()
}

// ipcTransport sends frames to a peer's unix sockets, emulating the
// high-water marks with bounded outgoing queues drained by one writer
// goroutine per port.
type ipcTransport struct {
	msgConn net.Conn
	bufConn net.Conn

	msgQ chan []byte
	bufQ chan []byte

	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	log  zerolog.Logger
}

func dialIPC(path string, log zerolog.Logger) (*ipcTransport, error) {
	msgConn, err := net.DialTimeout("unix", path+".msg", time.Second)
	if err != nil {
		return nil, fmt.Errorf("link: cannot reach peer message socket: %w", err)
	}
	bufConn, err := net.DialTimeout("unix", path+".buf", time.Second)
	if err != nil {
		msgConn.Close()
		return nil, fmt.Errorf("link: cannot reach peer buffer socket: %w", err)
	}

	t := &ipcTransport{
		msgConn: msgConn,
		bufConn: bufConn,
		msgQ:    make(chan []byte, MessageHWM),
		bufQ:    make(chan []byte, BufferHWM),
		stop:    make(chan struct{}),
		log:     log,
	}
	t.wg.Add(2)
	go t.writeLoop(msgConn, t.msgQ)
	go t.writeLoop(bufConn, t.bufQ)
	return t, nil
}

func (t *ipcTransport) writeLoop(conn net.Conn, in chan []byte) {
	defer t.wg.Done()
	var header [4]byte
	for {
		select {
		case frame := <-in:
			binary.LittleEndian.PutUint32(header[:], uint32(len(frame)))
			if _, err := conn.Write(header[:]); err != nil {
				t.log.Warn().Err(err).Msg("ipc write failed")
				return
			}
			if _, err := conn.Write(frame); err != nil {
				t.log.Warn().Err(err).Msg("ipc write failed")
				return
			}
		case <-t.stop:
			return
		}
	}
}

func (t *ipcTransport) SendMessage(frame []byte) error {
	select {
	case t.msgQ <- frame:
		return nil
	default:
		return ErrMessageDropped
	}
}

func (t *ipcTransport) SendBuffer(frame []byte, deadline time.Duration) error {
	select {
	case t.bufQ <- frame:
		return nil
	case <-time.After(deadline):
		return ErrLinkOverflow
	}
}

func (t *ipcTransport) Close() error {
	t.once.Do(func() {
		close(t.stop)
		t.msgConn.Close()
		t.bufConn.Close()
	})
	return nil
}
