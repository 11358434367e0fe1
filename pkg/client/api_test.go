package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAPIRequests(t *testing.T) {
	var (
		gotBody        map[string]any
		gotContentType string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/messages":
			_, _ = w.Write([]byte(`[{"id":1,"name":null,"message":"hi","ip_address":"127.0.0.1","created_at":"2024-01-01T12:00:00Z","updated_at":"2024-01-01T12:00:00Z"}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/api/messages":
			gotContentType = r.Header.Get("Content-Type")
			gotBody = nil
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":2,"name":"Alice","message":"yo","ip_address":"127.0.0.1"}`))
		case r.Method == http.MethodDelete && r.URL.Path == "/api/messages/2":
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/api/messages/9":
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/api/messages/2":
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"message":"The message field is required.","errors":{"message":["The message field is required."]}}`))
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer srv.Close()

	api := NewAPI(srv.URL+"/", nil)
	ctx := context.Background()

	msgs, err := api.ListMessages(ctx)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Nil(t, msgs[0].Name)
	require.Equal(t, "hi", msgs[0].Message)

	name := "Alice"
	m, err := api.CreateMessage(ctx, &name, "yo")
	require.NoError(t, err)
	require.Equal(t, uint64(2), m.ID)
	require.Equal(t, map[string]any{"name": "Alice", "message": "yo"}, gotBody)
	require.Equal(t, "application/json", gotContentType)

	_, err = api.CreateMessage(ctx, nil, "anon")
	require.NoError(t, err)
	require.NotContains(t, gotBody, "name")

	require.NoError(t, api.DeleteMessage(ctx, 2))

	_, err = api.GetMessage(ctx, 9)
	require.True(t, IsNotFound(err))

	_, err = api.UpdateMessage(ctx, 2, nil, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.True(t, apiErr.IsValidation())
	require.Equal(t, "The message field is required.", apiErr.Message)
	require.Equal(t, []string{"The message field is required."}, apiErr.Errors["message"])
}

func TestAPITransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewAPI(url, nil).ListMessages(context.Background())
	require.True(t, IsTransport(err))
	require.False(t, IsNotFound(err))
}
