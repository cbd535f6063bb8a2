package gossip

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// sendQueueDepth bounds how many outbound messages can be buffered for a
// slow peer; once the buffer is full, Send fails with ErrPeerSendFailed
// instead of blocking. Matches the write-then-evict-on-failure
// shape of the source system's broadcast loop, adapted to gorilla's
// single-writer-goroutine requirement (a websocket.Conn may not be
// written to from more than one goroutine at a time).
const sendQueueDepth = 64

// Peer is one gossip connection, inbound or outbound. Every write goes
// through outbox so exactly one goroutine ever calls conn.WriteMessage.
type Peer struct {
	URI  string
	conn *websocket.Conn

	outbox chan []byte
	closed chan struct{}
	once   sync.Once

	logger *zap.Logger
}

func newPeer(uri string, conn *websocket.Conn, logger *zap.Logger) *Peer {
	return &Peer{
		URI:    uri,
		conn:   conn,
		outbox: make(chan []byte, sendQueueDepth),
		closed: make(chan struct{}),
		logger: logger,
	}
}

// Send enqueues message for delivery. Returns ErrPeerSendFailed if the
// peer's outbox is full or already closed, mirroring the source system's
// treatment of a failed send as grounds for peer removal.
func (p *Peer) Send(message []byte) error {
	select {
	case <-p.closed:
		return newErr(ErrPeerSendFailed, "peer "+p.URI+" is closed")
	default:
	}
	select {
	case p.outbox <- message:
		return nil
	default:
		return newErr(ErrPeerSendFailed, "outbox full for peer "+p.URI)
	}
}

// Close stops the write pump and closes the underlying connection. Safe
// to call more than once.
func (p *Peer) Close() {
	p.once.Do(func() {
		close(p.closed)
		_ = p.conn.Close()
	})
}

// writePump drains outbox onto the wire until the peer is closed. Must
// run in its own goroutine, started once per Peer.
func (p *Peer) writePump() {
	for {
		select {
		case <-p.closed:
			return
		case msg := <-p.outbox:
			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				p.logger.Warn("write failed, closing peer", zap.String("uri", p.URI), zap.Error(err))
				p.Close()
				return
			}
		}
	}
}

// readPump delivers every text frame from the peer to handle until the
// connection closes or errors, then calls onClose exactly once.
func (p *Peer) readPump(handle func([]byte), onClose func()) {
	defer onClose()
	defer p.Close()
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			return
		}
		handle(data)
	}
}
