package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatboard/models"
)

const defaultTimeout = 15 * time.Second

// API is a JSON client for the /api/messages resource.
type API struct {
	baseURL string
	http    *http.Client
}

// NewAPI returns a client for the server at baseURL (e.g.
// "http://localhost:5000"). A nil httpClient uses one with a 15s timeout.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &API{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

type messageRequest struct {
	Name    *string `json:"name,omitempty"`
	Message string  `json:"message"`
}

func (a *API) ListMessages(ctx context.Context) ([]models.Message, error) {
	var out []models.Message
	if err := a.do(ctx, http.MethodGet, "/api/messages", nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []models.Message{}
	}
	return out, nil
}

func (a *API) GetMessage(ctx context.Context, id uint64) (models.Message, error) {
	var out models.Message
	err := a.do(ctx, http.MethodGet, messagePath(id), nil, &out)
	return out, err
}

func (a *API) CreateMessage(ctx context.Context, name *string, message string) (models.Message, error) {
	var out models.Message
	err := a.do(ctx, http.MethodPost, "/api/messages", messageRequest{Name: name, Message: message}, &out)
	return out, err
}

func (a *API) UpdateMessage(ctx context.Context, id uint64, name *string, message string) (models.Message, error) {
	var out models.Message
	err := a.do(ctx, http.MethodPut, messagePath(id), messageRequest{Name: name, Message: message}, &out)
	return out, err
}

func (a *API) DeleteMessage(ctx context.Context, id uint64) error {
	return a.do(ctx, http.MethodDelete, messagePath(id), nil, nil)
}

// Ticket asks the server for a websocket subscription ticket.
func (a *API) Ticket(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := a.do(ctx, http.MethodPost, "/broadcasting/auth", nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func messagePath(id uint64) string {
	return "/api/messages/" + strconv.FormatUint(id, 10)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	op := method + " " + path

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Message string              `json:"message"`
			Errors  map[string][]string `json:"errors"`
		}
		if len(raw) > 0 && json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Message
			apiErr.Errors = payload.Errors
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}
