package repo

import (
	"sort"

	"github.com/tbourn/go-chat-history/internal/domain"
	"github.com/tbourn/go-chat-history/internal/store"
)

// AddProject inserts a new project. A duplicate composite id or project id
// fails with store.ErrConstraint and leaves the existing row untouched.
func AddProject(tx *store.Tx, p *domain.UserProject) error {
	return store.UserProjects.Add(tx, p)
}

// PutProject inserts or fully replaces a project.
func PutProject(tx *store.Tx, p *domain.UserProject) error {
	return store.UserProjects.Put(tx, p)
}

// GetProject fetches the project (userID, projectID).
func GetProject(tx *store.Tx, userID, projectID string) (*domain.UserProject, error) {
	return store.UserProjects.Get(tx, domain.ProjectKey(userID, projectID))
}

// ListProjectsByUser returns the user's projects, newest first.
func ListProjectsByUser(tx *store.Tx, userID string) ([]domain.UserProject, error) {
	out, err := store.UserProjects.GetAllByIndex(tx, store.IndexUserID, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteProject removes the project (userID, projectID).
func DeleteProject(tx *store.Tx, userID, projectID string) error {
	return store.UserProjects.Delete(tx, domain.ProjectKey(userID, projectID))
}
