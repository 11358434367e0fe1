// Package broadcast fans published events out to websocket subscribers of
// named channels. Delivery is best-effort while a subscriber is connected:
// events are not persisted or retried and a subscriber whose send buffer is
// full is dropped.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var ErrHubClosed = errors.New("broadcast hub closed")

// Publisher is the publishing half of the fan-out.
type Publisher interface {
	Publish(channel, event string, payload any) error
}

type delivery struct {
	channel string
	payload []byte
}

// Hub tracks subscriber connections and delivers published events to every
// subscriber of the event's channel, the publisher's own connection
// included.
type Hub struct {
	subscribers    map[*Subscriber]struct{}
	broadcast      chan delivery
	register       chan *Subscriber
	unregister     chan *Subscriber
	mutex          sync.RWMutex
	wg             sync.WaitGroup
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	maxMessageSize int64
}

const (
	defaultMaxMessageSize = 4096
	sendBufferSize        = 256
)

// NewHub creates a hub. maxMessageSize bounds inbound subscriber frames;
// values <= 0 use the default. Call Run in its own goroutine.
func NewHub(maxMessageSize int64) *Hub {
	if maxMessageSize <= 0 {
		maxMessageSize = defaultMaxMessageSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		subscribers:    make(map[*Subscriber]struct{}),
		broadcast:      make(chan delivery),
		register:       make(chan *Subscriber),
		unregister:     make(chan *Subscriber),
		ctx:            ctx,
		cancel:         cancel,
		done:           make(chan struct{}),
		maxMessageSize: maxMessageSize,
	}
}

// Run is the hub's event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownSubscribers()
			return

		case s := <-h.register:
			h.mutex.Lock()
			h.subscribers[s] = struct{}{}
			count := len(h.subscribers)
			h.mutex.Unlock()
			log.Printf("[hub] subscriber %s registered from %s. Total subscribers: %d", s.ID, s.addr, count)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				s.writePump()
			}()
			go func() {
				defer h.wg.Done()
				s.readPump()
			}()
			for _, ch := range s.Channels() {
				s.enqueue(control(TypeSubscribed, ch))
			}

		case s := <-h.unregister:
			if h.remove(s) {
				log.Printf("[hub] subscriber %s from %s unregistered. Total subscribers: %d", s.ID, s.addr, h.SubscriberCount(""))
			}

		case d := <-h.broadcast:
			h.handleBroadcast(d)
		}
	}
}

// Attach registers an upgraded connection, subscribed to channels up front.
// The hub owns conn afterwards.
func (h *Hub) Attach(conn *websocket.Conn, addr string, channels []string) (*Subscriber, error) {
	s := newSubscriber(conn, h, addr)
	for _, ch := range channels {
		if ch != "" {
			s.channels[ch] = struct{}{}
		}
	}
	select {
	case h.register <- s:
		return s, nil
	case <-h.ctx.Done():
		_ = conn.Close()
		return nil, ErrHubClosed
	}
}

// Publish encodes payload as the event data and queues it for delivery to
// the channel's current subscribers. It does not wait for delivery.
func (h *Hub) Publish(channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", event, err)
	}
	raw, err := json.Marshal(Envelope{Type: TypeEvent, Channel: channel, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event, err)
	}
	select {
	case h.broadcast <- delivery{channel: channel, payload: raw}:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

// SubscriberCount returns the number of subscribers of channel, or of all
// connections when channel is empty.
func (h *Hub) SubscriberCount(channel string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if channel == "" {
		return len(h.subscribers)
	}
	n := 0
	for s := range h.subscribers {
		if _, ok := s.channels[channel]; ok {
			n++
		}
	}
	return n
}

func (h *Hub) handleBroadcast(d delivery) {
	targets := h.channelSnapshot(d.channel)
	log.Printf("[hub] broadcasting on %s to %d subscribers", d.channel, len(targets))

	var failed []*Subscriber
	for _, s := range targets {
		if !h.safeSend(s, d.payload) {
			failed = append(failed, s)
		}
	}
	for _, s := range failed {
		if h.remove(s) {
			log.Printf("[hub] subscriber %s from %s removed due to full send buffer", s.ID, s.addr)
		}
	}
}

func (h *Hub) channelSnapshot(channel string) []*Subscriber {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	out := make([]*Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		if _, ok := s.channels[channel]; ok {
			out = append(out, s)
		}
	}
	return out
}

// safeSend queues message without blocking. The read lock is held across
// the send so remove cannot close the channel underneath it.
func (h *Hub) safeSend(s *Subscriber, message []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, ok := h.subscribers[s]; !ok || s.closed {
		return false
	}
	select {
	case s.send <- message:
		return true
	default:
		return false
	}
}

func (h *Hub) remove(s *Subscriber) bool {
	h.mutex.Lock()
	if _, ok := h.subscribers[s]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.subscribers, s)
	s.closed = true
	h.mutex.Unlock()
	close(s.send)
	return true
}

func (h *Hub) subscribe(s *Subscriber, channel string) {
	h.mutex.Lock()
	s.channels[channel] = struct{}{}
	h.mutex.Unlock()
}

func (h *Hub) unsubscribe(s *Subscriber, channel string) {
	h.mutex.Lock()
	delete(s.channels, channel)
	h.mutex.Unlock()
}

// leave hands s back to the event loop, or gives up once the hub is gone.
func (h *Hub) leave(s *Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.ctx.Done():
	}
}

func (h *Hub) shutdownSubscribers() {
	h.mutex.Lock()
	subs := make([]*Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		subs = append(subs, s)
		delete(h.subscribers, s)
		s.closed = true
	}
	h.mutex.Unlock()

	// write pumps send a close frame and drop the connection
	for _, s := range subs {
		close(s.send)
	}
	log.Printf("[hub] closed %d subscriber connections", len(subs))
}

// Shutdown stops the event loop and waits for subscriber pumps to finish,
// up to timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("[hub] initiating shutdown...")
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("[hub] shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("[hub] shutdown timeout reached, some subscribers may still be running")
		return context.DeadlineExceeded
	}
}
