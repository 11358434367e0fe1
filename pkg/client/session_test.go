package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chatboard/models"
	"chatboard/pkg/broadcast"

	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	mu        sync.Mutex
	history   []models.Message
	listErr   error
	createErr error
	creates   []string
	nextID    uint64
	ip        string
}

func (f *fakeAPI) ListMessages(context.Context) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]models.Message(nil), f.history...), nil
}

func (f *fakeAPI) CreateMessage(_ context.Context, name *string, message string) (models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, message)
	if f.createErr != nil {
		return models.Message{}, f.createErr
	}
	f.nextID++
	now := time.Now().UTC()
	return models.Message{ID: f.nextID, Name: name, Message: message, IPAddress: strPtr(f.ip), CreatedAt: now, UpdatedAt: now}, nil
}

type fakeSubscriber struct {
	mu       sync.Mutex
	channel  string
	event    string
	handler  Handler
	closed   bool
	left     []string
	failWith error
}

func (f *fakeSubscriber) Subscribe(_ context.Context, channel, event string, h Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.channel, f.event, f.handler = channel, event, h
	return nil
}

func (f *fakeSubscriber) Unsubscribe(channel string) error {
	f.mu.Lock()
	f.left = append(f.left, channel)
	f.mu.Unlock()
	return nil
}

func (f *fakeSubscriber) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSubscriber) emit(t *testing.T, m models.Message) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"message": m})
	require.NoError(t, err)
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	require.NotNil(t, h, "not subscribed")
	h(raw)
}

func at(minutes int) time.Time {
	return time.Date(2024, 1, 1, 12, minutes, 0, 0, time.UTC)
}

func TestStartLoadsHistoryThenSubscribes(t *testing.T) {
	api := &fakeAPI{history: []models.Message{
		{ID: 1, Message: "one", CreatedAt: at(1)},
		{ID: 2, Message: "two", CreatedAt: at(2)},
	}}
	sub := &fakeSubscriber{}
	s := NewSession(api, sub, nil)
	require.Equal(t, StateLoading, s.State())

	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, StateReady, s.State())
	require.Len(t, s.Messages(), 2)
	require.Equal(t, broadcast.ChannelChat, sub.channel)
	require.Equal(t, broadcast.EventMessageSent, sub.event)
}

func TestStartLoadFailureStillSubscribes(t *testing.T) {
	api := &fakeAPI{listErr: &TransportError{Op: "GET /api/messages", Err: errors.New("connection refused")}}
	sub := &fakeSubscriber{}
	s := NewSession(api, sub, nil)

	err := s.Start(context.Background())
	require.True(t, IsTransport(err))
	require.Equal(t, StateReady, s.State())
	require.Equal(t, ErrTextLoad, s.Error())
	require.NotNil(t, sub.handler)
	require.Empty(t, s.Messages())
}

func TestLiveEventsAreDedupedByID(t *testing.T) {
	api := &fakeAPI{history: []models.Message{{ID: 1, Message: "one", CreatedAt: at(1)}}}
	sub := &fakeSubscriber{}
	var appended []uint64
	s := NewSession(api, sub, nil, WithOnAppend(func(m models.Message) { appended = append(appended, m.ID) }))
	require.NoError(t, s.Start(context.Background()))

	sub.emit(t, models.Message{ID: 1, Message: "one", CreatedAt: at(1)})
	sub.emit(t, models.Message{ID: 2, Message: "two", CreatedAt: at(2)})
	sub.emit(t, models.Message{ID: 2, Message: "two", CreatedAt: at(2)})

	require.Len(t, s.Messages(), 2)
	require.Equal(t, []uint64{2}, appended)
}

func TestMalformedEventIgnored(t *testing.T) {
	sub := &fakeSubscriber{}
	s := NewSession(&fakeAPI{}, sub, nil)
	require.NoError(t, s.Start(context.Background()))

	sub.handler(json.RawMessage(`{"nope":true}`))
	sub.handler(json.RawMessage(`not json`))
	require.Empty(t, s.Messages())
}

func TestSendAppendsOnceDespiteEcho(t *testing.T) {
	api := &fakeAPI{ip: "10.0.0.7"}
	sub := &fakeSubscriber{}
	names := &MemoryNameStore{}
	s := NewSession(api, sub, names)
	require.NoError(t, s.Start(context.Background()))

	s.SetName("  Alice ")
	s.SetInput("  hello there \n")
	require.NoError(t, s.Send(context.Background()))

	require.Empty(t, s.Input())
	require.Equal(t, []string{"hello there"}, api.creates)
	msgs := s.Messages()
	require.Len(t, msgs, 1)
	require.True(t, s.IsOwnMessage(msgs[0]))

	// the server echoes our own message back over the channel
	sub.emit(t, msgs[0])
	require.Len(t, s.Messages(), 1)

	saved, err := names.Load()
	require.NoError(t, err)
	require.Equal(t, "Alice", saved)
}

func TestSendIgnoresBlankInput(t *testing.T) {
	api := &fakeAPI{}
	s := NewSession(api, nil, nil)
	s.SetName("Alice")
	s.SetInput(" \n\t ")
	require.NoError(t, s.Send(context.Background()))
	require.Empty(t, api.creates)
}

func TestSendRequiresName(t *testing.T) {
	api := &fakeAPI{}
	s := NewSession(api, nil, nil)
	s.SetInput("hello")
	require.ErrorIs(t, s.Send(context.Background()), ErrNameRequired)
	require.Equal(t, ErrTextNameRequired, s.Error())
	require.Equal(t, "hello", s.Input())
	require.Empty(t, api.creates)
}

func TestSendFailureRestoresInputAndErrorExpires(t *testing.T) {
	api := &fakeAPI{createErr: &TransportError{Op: "POST /api/messages", Err: errors.New("timeout")}}
	s := NewSession(api, nil, nil, WithErrorTTL(30*time.Millisecond))
	s.SetName("Alice")
	s.SetInput("hello")

	err := s.Send(context.Background())
	require.True(t, IsTransport(err))
	require.Equal(t, "hello", s.Input())
	require.Equal(t, ErrTextSend, s.Error())
	require.False(t, s.Sending())

	require.Eventually(t, func() bool { return s.Error() == "" }, time.Second, 5*time.Millisecond)
}

func TestSendValidationErrorText(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "name error wins",
			err: &APIError{StatusCode: http.StatusUnprocessableEntity, Message: "The name field must not be greater than 255 characters.",
				Errors: map[string][]string{"name": {"The name field must not be greater than 255 characters."}}},
			want: "The name field must not be greater than 255 characters.",
		},
		{
			name: "server message",
			err:  &APIError{StatusCode: http.StatusUnprocessableEntity, Message: "The message field is required."},
			want: "The message field is required.",
		},
		{
			name: "bare 422",
			err:  &APIError{StatusCode: http.StatusUnprocessableEntity},
			want: ErrTextValidation,
		},
		{
			name: "server error",
			err:  &APIError{StatusCode: http.StatusInternalServerError, Message: "Server Error"},
			want: ErrTextSend,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewSession(&fakeAPI{createErr: tc.err}, nil, nil)
			s.SetName("Alice")
			s.SetInput("hello")
			require.Error(t, s.Send(context.Background()))
			require.Equal(t, tc.want, s.Error())
			require.Equal(t, "hello", s.Input())
			require.NoError(t, s.Close())
		})
	}
}

func TestSetInputTruncates(t *testing.T) {
	s := NewSession(&fakeAPI{}, nil, nil)
	s.SetInput(strings.Repeat("é", models.MaxMessageLength+1))
	require.Equal(t, models.MaxMessageLength, len([]rune(s.Input())))
}

func TestNameSyncsFromNewestMessageOfSameIP(t *testing.T) {
	names := &MemoryNameStore{}
	require.NoError(t, names.Save("Alice"))
	api := &fakeAPI{history: []models.Message{
		{ID: 1, Name: strPtr("Alice"), IPAddress: strPtr("1.1.1.1"), CreatedAt: at(1)},
		{ID: 2, Name: strPtr("Bob"), IPAddress: strPtr("2.2.2.2"), CreatedAt: at(2)},
		{ID: 3, Name: strPtr("Alicia"), IPAddress: strPtr("1.1.1.1"), CreatedAt: at(3)},
		{ID: 4, IPAddress: strPtr("1.1.1.1"), CreatedAt: at(4)},
	}}
	sub := &fakeSubscriber{}
	s := NewSession(api, sub, names)
	require.NoError(t, s.Start(context.Background()))
	require.Equal(t, "Alicia", s.Name())

	// a rename in another tab from the same IP follows through
	sub.emit(t, models.Message{ID: 5, Name: strPtr("Al"), IPAddress: strPtr("1.1.1.1"), CreatedAt: at(5)})
	require.Equal(t, "Al", s.Name())
	saved, _ := names.Load()
	require.Equal(t, "Al", saved)

	// other IPs do not
	sub.emit(t, models.Message{ID: 6, Name: strPtr("Mallory"), IPAddress: strPtr("2.2.2.2"), CreatedAt: at(6)})
	require.Equal(t, "Al", s.Name())
}

func TestIsOwnMessage(t *testing.T) {
	s := NewSession(&fakeAPI{}, nil, nil)
	require.False(t, s.IsOwnMessage(models.Message{Name: strPtr("Alice")}))
	s.SetName("Alice")
	require.True(t, s.IsOwnMessage(models.Message{Name: strPtr("Alice")}))
	require.False(t, s.IsOwnMessage(models.Message{}))
}

func TestFileNameStore(t *testing.T) {
	store := FileNameStore{Path: filepath.Join(t.TempDir(), "nested", "name")}
	name, err := store.Load()
	require.NoError(t, err)
	require.Empty(t, name)

	require.NoError(t, store.Save("Zoë"))
	name, err = store.Load()
	require.NoError(t, err)
	require.Equal(t, "Zoë", name)
}

func TestCloseClosesSubscriber(t *testing.T) {
	sub := &fakeSubscriber{}
	s := NewSession(&fakeAPI{}, sub, nil)
	require.NoError(t, s.Close())
	require.True(t, sub.closed)
	require.Equal(t, []string{broadcast.ChannelChat}, sub.left)
}
