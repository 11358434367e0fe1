package models

import (
	"time"
)

const (
	MaxNameLength    = 255
	MaxMessageLength = 10000
)

// Message is a single post on the board. Name and IPAddress are nullable and
// serialize as JSON null when absent.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      *string   `gorm:"size:255" json:"name"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	IPAddress *string   `gorm:"column:ip_address;size:45" json:"ip_address"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// MessageInput carries the writable fields of a Message.
type MessageInput struct {
	Name      *string
	Message   string
	IPAddress *string
}
