package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Conversation is the stored shape of a chat. Members hold user ids only;
// profile data is joined in by the service layer after a read.
type Conversation struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Members         []string           `bson:"members" json:"members"`
	IsGroup         bool               `bson:"is_group" json:"is_group"`
	Name            string             `bson:"name,omitempty" json:"name,omitempty"`
	DirectKey       string             `bson:"direct_key,omitempty" json:"-"`
	LatestMessageID primitive.ObjectID `bson:"latest_message_id,omitempty" json:"-"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

type Message struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ChatID    primitive.ObjectID `bson:"chat_id" json:"chat_id"`
	SenderID  string             `bson:"sender_id" json:"sender_id"`
	Content   string             `bson:"content" json:"content"`
	ReadBy    []string           `bson:"read_by" json:"read_by"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}

// User as stored; Password never leaves the repository layer.
type User struct {
	ID       string `bson:"_id,omitempty" json:"id"`
	Username string `bson:"username" json:"username"`
	Role     string `bson:"role" json:"role"`
	Password string `bson:"password" json:"-"`
}

// PublicUser is the projection handed to clients.
type PublicUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Username: u.Username, Role: u.Role}
}

// MessageView is a message with its sender joined in.
type MessageView struct {
	ID        string     `json:"id"`
	ChatID    string     `json:"chat_id"`
	Sender    PublicUser `json:"sender"`
	Content   string     `json:"content"`
	ReadBy    []string   `json:"read_by"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ConversationView is a conversation with members and the latest message
// joined in. LatestMessage is null for a conversation nothing was sent to.
type ConversationView struct {
	ID            string       `json:"id"`
	Members       []PublicUser `json:"members"`
	IsGroup       bool         `json:"is_group"`
	Name          string       `json:"name,omitempty"`
	LatestMessage *MessageView `json:"latest_message"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}
