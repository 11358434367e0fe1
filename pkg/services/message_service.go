//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_publisher.go -package=mocks chatboard/pkg/broadcast Publisher
package services

import (
	"context"
	"log"
	"strings"

	"chatboard/models"
	"chatboard/pkg/broadcast"
	"chatboard/pkg/store"
	"chatboard/pkg/validation"
)

// MessageSent is the payload published on the chat channel after every
// create and update.
type MessageSent struct {
	Message models.Message `json:"message"`
}

// MessageService runs message operations against the store and fans
// successful writes out to subscribers.
type MessageService struct {
	store     store.Store
	publisher broadcast.Publisher
}

func NewMessageService(s store.Store, p broadcast.Publisher) *MessageService {
	return &MessageService{store: s, publisher: p}
}

func (s *MessageService) List(ctx context.Context) ([]models.Message, error) {
	return s.store.List(ctx)
}

func (s *MessageService) Get(ctx context.Context, id uint64) (models.Message, error) {
	return s.store.Get(ctx, id)
}

// Create validates body, stores the message stamped with remoteIP and
// publishes it. Whatever ip_address the body carries is ignored.
func (s *MessageService) Create(ctx context.Context, body map[string]any, remoteIP string) (models.Message, error) {
	in, err := validation.MessageBody(body)
	if err != nil {
		return models.Message{}, err
	}
	in.IPAddress = ipOrNil(remoteIP)

	m, err := s.store.Create(ctx, in)
	if err != nil {
		return models.Message{}, err
	}
	s.publish(m)
	return m, nil
}

// Update replaces name and message of an existing row. An unknown id is
// reported before the body is validated. Concurrent updates of one id are
// last-write-wins.
func (s *MessageService) Update(ctx context.Context, id uint64, body map[string]any, remoteIP string) (models.Message, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return models.Message{}, err
	}
	in, err := validation.MessageBody(body)
	if err != nil {
		return models.Message{}, err
	}
	in.IPAddress = ipOrNil(remoteIP)

	m, err := s.store.Update(ctx, id, in)
	if err != nil {
		return models.Message{}, err
	}
	s.publish(m)
	return m, nil
}

func (s *MessageService) Delete(ctx context.Context, id uint64) error {
	return s.store.Delete(ctx, id)
}

// publish is best-effort; the write already succeeded.
func (s *MessageService) publish(m models.Message) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(broadcast.ChannelChat, broadcast.EventMessageSent, MessageSent{Message: m}); err != nil {
		log.Printf("[messages] broadcast of message %d failed: %v", m.ID, err)
	}
}

func ipOrNil(ip string) *string {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil
	}
	return &ip
}
