package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatboard/pkg/broadcast"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*broadcast.Hub, string) {
	t.Helper()
	hub := broadcast.NewHub(0)
	go hub.Run()

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _ = hub.Attach(conn, r.RemoteAddr, nil)
	}))
	t.Cleanup(func() {
		srv.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func TestWSSubscriberReceivesUntilUnsubscribed(t *testing.T) {
	hub, url := startHub(t)
	sub := NewWSSubscriber(url)
	defer sub.Close()

	got := make(chan json.RawMessage, 4)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sub.Subscribe(ctx, broadcast.ChannelChat, broadcast.EventMessageSent, func(data json.RawMessage) {
		got <- data
	}))
	require.Equal(t, 1, hub.SubscriberCount(broadcast.ChannelChat))

	require.NoError(t, hub.Publish(broadcast.ChannelChat, broadcast.EventMessageSent, map[string]string{"n": "1"}))
	select {
	case data := <-got:
		require.JSONEq(t, `{"n":"1"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	require.NoError(t, sub.Unsubscribe(broadcast.ChannelChat))
	require.Eventually(t, func() bool {
		return hub.SubscriberCount(broadcast.ChannelChat) == 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Publish(broadcast.ChannelChat, broadcast.EventMessageSent, map[string]string{"n": "2"}))
	select {
	case data := <-got:
		t.Fatalf("event after unsubscribe: %s", data)
	case <-time.After(200 * time.Millisecond):
	}

	// the same connection can subscribe again
	require.NoError(t, sub.Subscribe(ctx, broadcast.ChannelChat, broadcast.EventMessageSent, func(data json.RawMessage) {
		got <- data
	}))
	require.Equal(t, 1, hub.SubscriberCount(broadcast.ChannelChat))
}

func TestWSSubscriberAfterClose(t *testing.T) {
	_, url := startHub(t)
	sub := NewWSSubscriber(url)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Unsubscribe(broadcast.ChannelChat))
	require.ErrorIs(t, sub.Subscribe(context.Background(), broadcast.ChannelChat, broadcast.EventMessageSent, func(json.RawMessage) {}), ErrSubscriberClosed)
}
