package broadcast

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// Subscriber is one websocket connection and the channels it listens on.
// channels and closed are guarded by the hub mutex.
type Subscriber struct {
	ID       string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	addr     string
	channels map[string]struct{}
	closed   bool
}

func newSubscriber(conn *websocket.Conn, hub *Hub, addr string) *Subscriber {
	if conn != nil {
		conn.SetReadLimit(hub.maxMessageSize)
	}
	return &Subscriber{
		ID:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		hub:      hub,
		addr:     addr,
		channels: make(map[string]struct{}),
	}
}

// Channels returns the subscribed channel names, sorted.
func (s *Subscriber) Channels() []string {
	s.hub.mutex.RLock()
	defer s.hub.mutex.RUnlock()

	out := make([]string, 0, len(s.channels))
	for ch := range s.channels {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}

func (s *Subscriber) enqueue(env Envelope) bool {
	raw, err := json.Marshal(env)
	if err != nil {
		log.Printf("[ws] encode %s frame for %s: %v", env.Type, s.addr, err)
		return false
	}
	return s.hub.safeSend(s, raw)
}

func (s *Subscriber) readPump() {
	defer func() {
		s.hub.leave(s)
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("[ws] error closing connection in readPump: %v", err)
		}
	}()

	if err := s.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Printf("[ws] error setting initial read deadline for %s: %v", s.addr, err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}
		s.handleFrame(raw)
	}
}

func (s *Subscriber) handleFrame(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[ws] invalid frame from %s: %v", s.addr, err)
		s.enqueue(Envelope{Type: TypeError, Error: "invalid frame"})
		return
	}
	channel := strings.TrimSpace(env.Channel)

	switch strings.ToLower(strings.TrimSpace(env.Type)) {
	case TypeSubscribe:
		if channel == "" {
			s.enqueue(Envelope{Type: TypeError, Error: "channel is required"})
			return
		}
		s.hub.subscribe(s, channel)
		s.enqueue(control(TypeSubscribed, channel))
	case TypeUnsubscribe:
		if channel == "" {
			s.enqueue(Envelope{Type: TypeError, Error: "channel is required"})
			return
		}
		s.hub.unsubscribe(s, channel)
		s.enqueue(control(TypeUnsubscribed, channel))
	default:
		s.enqueue(Envelope{Type: TypeError, Error: "unsupported frame type"})
	}
}

func (s *Subscriber) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("[ws] frame from %s exceeded maximum size of %d bytes", s.addr, s.hub.maxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		log.Printf("[ws] subscriber %s disconnected", s.addr)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		log.Printf("[ws] subscriber %s connection closed", s.addr)
	default:
		log.Printf("[ws] read error from %s: %v", s.addr, err)
	}
}

func (s *Subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("[ws] error closing connection in writePump: %v", err)
		}
	}()

	for {
		select {
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("[ws] error writing to %s: %v", s.addr, err)
				}
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[ws] error writing ping to %s: %v", s.addr, err)
				return
			}
		}
	}
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return strings.Contains(err.Error(), "use of closed network connection")
}
