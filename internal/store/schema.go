package store

import "github.com/tbourn/go-chat-history/internal/domain"

// Index names shared by the tables below.
const (
	IndexURLID     = "urlId"
	IndexUserID    = "userId"
	IndexProjectID = "projectId"
)

// Users holds one row per known caller identity.
var Users = Table[domain.User]{
	Name: "users",
	Key:  "id",
}

// Chats holds chat history items.
var Chats = Table[domain.Chat]{
	Name: "chats",
	Key:  "id",
	Indexes: map[string]Index{
		IndexURLID:  {Column: "url_id", Unique: true},
		IndexUserID: {Column: "user_id"},
	},
}

// UserProjects holds project records keyed by "{userId}_{projectId}".
var UserProjects = Table[domain.UserProject]{
	Name: "user_projects",
	Key:  "id",
	Indexes: map[string]Index{
		IndexUserID:    {Column: "user_id"},
		IndexProjectID: {Column: "project_id", Unique: true},
	},
}

// Idempotency holds replay records for fork and duplicate requests.
var Idempotency = Table[domain.Idempotency]{
	Name: "idempotency",
	Key:  "id",
}
