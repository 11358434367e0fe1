package client

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"chatboard/pkg/broadcast"

	"github.com/gorilla/websocket"
)

const subscriberWriteWait = 10 * time.Second

// ErrSubscriberClosed is returned by Subscribe after Close.
var ErrSubscriberClosed = errors.New("subscriber closed")

// Handler receives the data of one event.
type Handler func(data json.RawMessage)

// Subscriber delivers fan-out events to handlers.
type Subscriber interface {
	Subscribe(ctx context.Context, channel, event string, handler Handler) error
	Close() error
}

// TicketSource returns a subscription ticket for each new connection.
type TicketSource func(ctx context.Context) (string, error)

type SubscriberOption func(*WSSubscriber)

// WithTicketSource makes the subscriber pass ?token= on connect.
func WithTicketSource(fn TicketSource) SubscriberOption {
	return func(s *WSSubscriber) { s.tickets = fn }
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) SubscriberOption {
	return func(s *WSSubscriber) { s.dialer = d }
}

// WSSubscriber is a Subscriber over one websocket connection to /ws. The
// connection is opened by the first Subscribe call.
type WSSubscriber struct {
	url     string
	dialer  *websocket.Dialer
	tickets TicketSource

	mu       sync.Mutex
	writeMu  sync.Mutex
	conn     *websocket.Conn
	handlers map[string]map[string][]Handler
	acks     map[string]chan struct{}
	done     chan struct{}
	closed   bool
}

// NewWSSubscriber returns a subscriber for wsURL, e.g.
// "ws://localhost:5000/ws".
func NewWSSubscriber(wsURL string, opts ...SubscriberOption) *WSSubscriber {
	s := &WSSubscriber{
		url:      wsURL,
		dialer:   websocket.DefaultDialer,
		handlers: map[string]map[string][]Handler{},
		acks:     map[string]chan struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers handler for event on channel and returns once the
// server has acknowledged the subscription.
func (s *WSSubscriber) Subscribe(ctx context.Context, channel, event string, handler Handler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSubscriberClosed
	}
	if s.conn == nil {
		if err := s.connectLocked(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	if s.handlers[channel] == nil {
		s.handlers[channel] = map[string][]Handler{}
	}
	s.handlers[channel][event] = append(s.handlers[channel][event], handler)
	ack, pending := s.acks[channel]
	if !pending {
		ack = make(chan struct{})
		s.acks[channel] = ack
	}
	conn, done := s.conn, s.done
	s.mu.Unlock()

	if !pending {
		if err := s.write(conn, broadcast.Envelope{Type: broadcast.TypeSubscribe, Channel: channel}); err != nil {
			return &TransportError{Op: "subscribe " + channel, Err: err}
		}
	}

	select {
	case <-ack:
		return nil
	case <-done:
		return &TransportError{Op: "subscribe " + channel, Err: errors.New("connection lost")}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unsubscribe drops every handler for channel.
func (s *WSSubscriber) Unsubscribe(channel string) error {
	s.mu.Lock()
	delete(s.handlers, channel)
	delete(s.acks, channel)
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return s.write(conn, broadcast.Envelope{Type: broadcast.TypeUnsubscribe, Channel: channel})
}

// Done is closed when the connection ends.
func (s *WSSubscriber) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *WSSubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(subscriberWriteWait))
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return conn.Close()
}

func (s *WSSubscriber) connectLocked(ctx context.Context) error {
	target := s.url
	if s.tickets != nil {
		token, err := s.tickets(ctx)
		if err != nil {
			return err
		}
		u, err := url.Parse(s.url)
		if err != nil {
			return err
		}
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	conn, _, err := s.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return &TransportError{Op: "dial " + s.url, Err: err}
	}
	s.conn = conn
	s.done = make(chan struct{})
	go s.readLoop(conn, s.done)
	return nil
}

func (s *WSSubscriber) write(conn *websocket.Conn, env broadcast.Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(subscriberWriteWait))
	return conn.WriteJSON(env)
}

func (s *WSSubscriber) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		var env broadcast.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[client] subscriber connection lost: %v", err)
			}
			return
		}
		s.dispatch(env)
	}
}

func (s *WSSubscriber) dispatch(env broadcast.Envelope) {
	switch env.Type {
	case broadcast.TypeSubscribed:
		s.mu.Lock()
		if ack, ok := s.acks[env.Channel]; ok {
			select {
			case <-ack:
			default:
				close(ack)
			}
		}
		s.mu.Unlock()
	case broadcast.TypeEvent:
		s.mu.Lock()
		handlers := append([]Handler(nil), s.handlers[env.Channel][env.Event]...)
		s.mu.Unlock()
		for _, h := range handlers {
			h(env.Data)
		}
	case broadcast.TypeError:
		log.Printf("[client] server error frame: %s", env.Error)
	}
}
