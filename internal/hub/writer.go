package hub

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline = 5 * time.Second
	closeDeadline = time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second

	// DefaultQueueSize is the number of payloads a connection may have pending before it is
	// considered unresponsive.
	DefaultQueueSize = 16
)

var (
	ErrSinkFull   = errors.New("send queue full")
	ErrSinkClosed = errors.New("connection closed")
)

// ConnWriter is the Sink for one websocket connection. A single goroutine owns every data
// write to the connection; Send only enqueues.
type ConnWriter struct {
	connection *websocket.Conn
	clock      clockwork.Clock
	queue      chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	wg         sync.WaitGroup
}

// NewConnWriter starts the write loop and arms the read deadline, which every pong extends.
// The caller keeps reading from the connection; control frames are only handled while it does.
func NewConnWriter(connection *websocket.Conn, clock clockwork.Clock, queueSize int) *ConnWriter {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	cw := &ConnWriter{
		connection: connection,
		clock:      clock,
		queue:      make(chan []byte, queueSize),
		done:       make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// Send queues the payload without blocking.
func (cw *ConnWriter) Send(payload []byte) error {
	select {
	case <-cw.done:
		return ErrSinkClosed
	default:
	}

	select {
	case cw.queue <- payload:
		return nil
	default:
		return ErrSinkFull
	}
}

// Close stops the write loop and closes the connection. A non-empty reason is sent to the
// peer as a normal-closure close frame first. Pending payloads are dropped.
func (cw *ConnWriter) Close(reason string) {
	cw.closeOnce.Do(func() {
		close(cw.done)
		if reason != "" {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
			_ = cw.connection.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeDeadline))
		}
		_ = cw.connection.Close()
	})
}

// Wait blocks until the write loop has exited.
func (cw *ConnWriter) Wait() {
	cw.wg.Wait()
}

func (cw *ConnWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.queue:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.Close("")
				return
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				cw.Close("")
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *ConnWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

// Socket deadlines are compared against the OS clock, so they never come from the injected clock.
func (cw *ConnWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(time.Now().Add(writeDeadline))
}

func (cw *ConnWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(time.Now().Add(pongDeadline))
}
