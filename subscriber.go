package server

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Conn is the part of *websocket.Conn the hub writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type subscriber struct {
	conn           Conn
	mu             sync.Mutex
	lastCommandSeq atomic.Uint64
	closeOnce      sync.Once
}

func newSubscriber(conn Conn) *subscriber {
	return &subscriber{conn: conn}
}

// WriteMessage serialises writes; gorilla connections allow one writer.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *subscriber) WriteText(data []byte) error {
	return s.WriteMessage(websocket.TextMessage, data)
}

// LastCommandSeq is the highest acknowledged client command sequence.
func (s *subscriber) LastCommandSeq() uint64 {
	return s.lastCommandSeq.Load()
}

func (s *subscriber) StoreLastCommandSeq(seq uint64) {
	for {
		current := s.lastCommandSeq.Load()
		if seq <= current || s.lastCommandSeq.CompareAndSwap(current, seq) {
			return
		}
	}
}

func (s *subscriber) Close() {
	s.closeOnce.Do(func() {
		s.conn.Close()
	})
}
