// Package domain defines the persistence models for users, chat histories and
// user projects. The schema itself is owned by the versioned migrations in
// package store; GORM tags here only describe column mapping.
package domain

import (
	"encoding/json"
	"time"
)

// User is the minimal identity record. Users are created on first sight and
// never deleted.
type User struct {
	ID        string    `json:"id"         gorm:"column:id;primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Message is a single chat entry. Only ID, Role and Content are interpreted;
// Annotations is carried through untouched.
type Message struct {
	ID          string          `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	CreatedAt   *time.Time      `json:"created_at,omitempty"`
	Annotations json.RawMessage `json:"annotations,omitempty"`
}

// Chat is a persisted chat history item.
//
// Fields:
//   - ID: decimal string primary key allocated as max(existing)+1.
//   - URLID: public slug, unique across all chats.
//   - UserID: owning user; nil means the chat is visible to every caller.
//   - Messages: ordered message list, stored as a JSON column.
//   - Timestamp: ISO-8601 time of the last save.
//   - UpdatedAt: set on every write; nil for rows written before the column existed.
type Chat struct {
	ID          string     `json:"id"                    gorm:"column:id;primaryKey"`
	URLID       string     `json:"url_id"                gorm:"column:url_id"`
	UserID      *string    `json:"user_id,omitempty"     gorm:"column:user_id"`
	Description *string    `json:"description,omitempty" gorm:"column:description"`
	Messages    []Message  `json:"messages"              gorm:"column:messages;serializer:json"`
	Timestamp   string     `json:"timestamp"             gorm:"column:timestamp"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"  gorm:"column:updated_at"`
}

// TableName returns the database table name for Chat.
func (Chat) TableName() string { return "chats" }

// VisibleTo reports whether caller may see the chat: ownerless chats are
// visible to everyone, owned chats only to their owner.
func (c *Chat) VisibleTo(caller string) bool {
	if c.UserID == nil {
		return true
	}
	return caller != "" && *c.UserID == caller
}

// DescriptionOr returns the description, or def when it is unset or empty.
func (c *Chat) DescriptionOr(def string) string {
	if c.Description == nil || *c.Description == "" {
		return def
	}
	return *c.Description
}

// CloneMessages returns a deep copy of msgs so that a derived chat never
// aliases the source chat's slices.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return []Message{}
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.CreatedAt != nil {
			t := *m.CreatedAt
			out[i].CreatedAt = &t
		}
		if m.Annotations != nil {
			out[i].Annotations = append(json.RawMessage(nil), m.Annotations...)
		}
	}
	return out
}

// UserProject groups chats of one user. ProjectID is globally unique and the
// primary key is always ProjectKey(UserID, ProjectID).
type UserProject struct {
	ID        string    `json:"id"         gorm:"column:id;primaryKey"`
	UserID    string    `json:"user_id"    gorm:"column:user_id"`
	ProjectID string    `json:"project_id" gorm:"column:project_id"`
	Name      string    `json:"name"       gorm:"column:name"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

// TableName returns the database table name for UserProject.
func (UserProject) TableName() string { return "user_projects" }

// ProjectKey builds the composite primary key of a UserProject.
func ProjectKey(userID, projectID string) string {
	return userID + "_" + projectID
}
