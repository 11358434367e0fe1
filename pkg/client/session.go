package client

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chatboard/models"
	"chatboard/pkg/broadcast"

	"github.com/samber/lo"
)

// User-facing error strings.
const (
	ErrTextLoad         = "Failed to load messages. Please check your connection."
	ErrTextSend         = "Failed to send message. Please try again."
	ErrTextValidation   = "Validation failed. Please check your input."
	ErrTextNameRequired = "Name is required to send messages."
)

const defaultErrorTTL = 5 * time.Second

// ErrNameRequired is returned by Send when no display name is set.
var ErrNameRequired = errors.New("name is required")

type State int

const (
	StateLoading State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "loading"
}

// MessageAPI is the part of the message API a Session needs.
type MessageAPI interface {
	ListMessages(ctx context.Context) ([]models.Message, error)
	CreateMessage(ctx context.Context, name *string, message string) (models.Message, error)
}

type SessionOption func(*Session)

// WithErrorTTL sets how long a user-facing error stays visible.
func WithErrorTTL(d time.Duration) SessionOption {
	return func(s *Session) { s.errorTTL = d }
}

// WithOnAppend is called, outside the session lock, for every message
// added to the list.
func WithOnAppend(fn func(models.Message)) SessionOption {
	return func(s *Session) { s.onAppend = fn }
}

// Session is one client's view of the board: the ordered message list,
// the remembered display name and the pending input.
type Session struct {
	api      MessageAPI
	sub      Subscriber
	names    NameStore
	errorTTL time.Duration
	onAppend func(models.Message)

	mu       sync.Mutex
	state    State
	messages []models.Message
	name     string
	ip       string
	input    string
	sending  bool
	errText  string
	errGen   uint64
	errTimer *time.Timer
}

func NewSession(api MessageAPI, sub Subscriber, names NameStore, opts ...SessionOption) *Session {
	if names == nil {
		names = &MemoryNameStore{}
	}
	s := &Session{
		api:      api,
		sub:      sub,
		names:    names,
		errorTTL: defaultErrorTTL,
		messages: []models.Message{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start restores the remembered name, loads history and subscribes to
// live updates. A failed load still subscribes; the load error is
// returned after the subscription attempt.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateLoading
	s.mu.Unlock()

	if saved, err := s.names.Load(); err != nil {
		log.Printf("[client] load saved name: %v", err)
	} else if saved != "" {
		s.mu.Lock()
		s.name = saved
		s.mu.Unlock()
	}

	msgs, loadErr := s.api.ListMessages(ctx)

	s.mu.Lock()
	if loadErr != nil {
		s.setErrorLocked(ErrTextLoad)
	} else {
		s.messages = lo.UniqBy(msgs, func(m models.Message) uint64 { return m.ID })
		s.syncNameLocked()
	}
	s.state = StateReady
	s.mu.Unlock()

	var subErr error
	if s.sub != nil {
		subErr = s.sub.Subscribe(ctx, broadcast.ChannelChat, broadcast.EventMessageSent, s.handleEvent)
	}
	return errors.Join(loadErr, subErr)
}

func (s *Session) handleEvent(data json.RawMessage) {
	var ev struct {
		Message *models.Message `json:"message"`
	}
	if err := json.Unmarshal(data, &ev); err != nil || ev.Message == nil {
		log.Printf("[client] ignoring malformed %s event", broadcast.EventMessageSent)
		return
	}
	s.Receive(*ev.Message)
}

// Receive appends m unless a message with the same id is already present.
// It reports whether m was added.
func (s *Session) Receive(m models.Message) bool {
	s.mu.Lock()
	if lo.ContainsBy(s.messages, func(x models.Message) bool { return x.ID == m.ID }) {
		s.mu.Unlock()
		return false
	}
	s.messages = append(s.messages, m)
	if s.ip != "" && m.IPAddress != nil && *m.IPAddress == s.ip && m.Name != nil && *m.Name != "" {
		s.adoptNameLocked(*m.Name)
	}
	onAppend := s.onAppend
	s.mu.Unlock()

	if onAppend != nil {
		onAppend(m)
	}
	return true
}

// syncNameLocked adopts the name of the newest named message sent from this
// session's IP. The IP is learned from the newest message carrying the
// remembered name when it is not yet known.
func (s *Session) syncNameLocked() {
	if len(s.messages) == 0 {
		return
	}
	if s.ip == "" && s.name != "" {
		withName := lo.Filter(s.messages, func(m models.Message, _ int) bool {
			return m.Name != nil && *m.Name == s.name && m.IPAddress != nil
		})
		if len(withName) > 0 {
			s.ip = *newest(withName).IPAddress
		}
	}
	if s.ip == "" {
		return
	}
	fromIP := lo.Filter(s.messages, func(m models.Message, _ int) bool {
		return m.IPAddress != nil && *m.IPAddress == s.ip && m.Name != nil && *m.Name != ""
	})
	if len(fromIP) > 0 {
		s.adoptNameLocked(*newest(fromIP).Name)
	}
}

func newest(msgs []models.Message) models.Message {
	return lo.MaxBy(msgs, func(a, b models.Message) bool {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID > b.ID
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func (s *Session) adoptNameLocked(name string) {
	if s.name == name {
		return
	}
	s.name = name
	if err := s.names.Save(name); err != nil {
		log.Printf("[client] save name: %v", err)
	}
}

// SetName changes the display name used for subsequent sends.
func (s *Session) SetName(name string) {
	name = strings.TrimSpace(name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	if name != "" {
		if err := s.names.Save(name); err != nil {
			log.Printf("[client] save name: %v", err)
		}
	}
}

// SetInput replaces the pending input, truncated to the message limit.
func (s *Session) SetInput(text string) {
	if utf8.RuneCountInString(text) > models.MaxMessageLength {
		text = string([]rune(text)[:models.MaxMessageLength])
	}
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

// Send submits the pending input under the current name. Blank input and
// sends while another is in flight are ignored. The input is cleared while
// sending and restored on failure.
func (s *Session) Send(ctx context.Context) error {
	s.mu.Lock()
	text := strings.TrimSpace(s.input)
	if text == "" || s.sending {
		s.mu.Unlock()
		return nil
	}
	name := strings.TrimSpace(s.name)
	if name == "" {
		s.setErrorLocked(ErrTextNameRequired)
		s.mu.Unlock()
		return ErrNameRequired
	}
	s.input = ""
	s.sending = true
	s.clearErrorLocked()
	s.mu.Unlock()

	m, err := s.api.CreateMessage(ctx, &name, text)

	s.mu.Lock()
	s.sending = false
	if err != nil {
		s.input = text
		s.setErrorLocked(sendErrorText(err))
		s.mu.Unlock()
		return err
	}
	if s.ip == "" && m.IPAddress != nil {
		s.ip = *m.IPAddress
	}
	s.adoptNameLocked(name)
	s.mu.Unlock()

	s.Receive(m)
	return nil
}

func sendErrorText(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.IsValidation() {
		return ErrTextSend
	}
	if names := apiErr.Errors["name"]; len(names) > 0 && names[0] != "" {
		return names[0]
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return ErrTextValidation
}

func (s *Session) setErrorLocked(text string) {
	s.errGen++
	gen := s.errGen
	s.errText = text
	if s.errTimer != nil {
		s.errTimer.Stop()
	}
	s.errTimer = time.AfterFunc(s.errorTTL, func() {
		s.mu.Lock()
		if s.errGen == gen {
			s.errText = ""
		}
		s.mu.Unlock()
	})
}

func (s *Session) clearErrorLocked() {
	s.errGen++
	s.errText = ""
	if s.errTimer != nil {
		s.errTimer.Stop()
		s.errTimer = nil
	}
}

// IsOwnMessage reports whether m carries this session's display name.
func (s *Session) IsOwnMessage(m models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name != "" && m.Name != nil && *m.Name == s.name
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the message list in display order.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

func (s *Session) Input() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.input
}

// Error is the current user-facing error, or "" once it has expired.
func (s *Session) Error() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errText
}

func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Close stops the error timer, leaves the chat channel when the subscriber
// supports it and closes the subscriber.
func (s *Session) Close() error {
	s.mu.Lock()
	s.clearErrorLocked()
	s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	if u, ok := s.sub.(interface{ Unsubscribe(channel string) error }); ok {
		if err := u.Unsubscribe(broadcast.ChannelChat); err != nil {
			log.Printf("[client] unsubscribe %s: %v", broadcast.ChannelChat, err)
		}
	}
	return s.sub.Close()
}
