package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-chat-history/internal/domain"
	"github.com/tbourn/go-chat-history/internal/repo"
	"github.com/tbourn/go-chat-history/internal/store"
)

// ProjectService manages projects owned by a single user. A project's
// primary key is always domain.ProjectKey(userID, projectID) and its
// projectID is unique across all users.
type ProjectService struct {
	Store *store.Store
	Now   func() time.Time
}

// NewProjectService constructs a ProjectService over st. st may be nil.
func NewProjectService(st *store.Store) *ProjectService {
	return &ProjectService{Store: st, Now: time.Now}
}

func (s *ProjectService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create inserts a new project for userID. An empty projectID is replaced by
// a random UUID. The owner must exist. Creating a project whose composite id
// or project id is taken fails with ErrProjectExists and leaves the stored
// project untouched.
func (s *ProjectService) Create(ctx context.Context, userID, projectID, name string) (*domain.UserProject, error) {
	userID = strings.TrimSpace(userID)
	name = strings.TrimSpace(name)
	projectID = strings.TrimSpace(projectID)
	if userID == "" {
		return nil, ErrMissingUser
	}
	if name == "" {
		return nil, ErrEmptyName
	}
	if projectID == "" {
		projectID = uuid.NewString()
	}
	if !s.Store.Available() {
		return nil, ErrStorageUnavailable
	}

	now := s.now()
	p := &domain.UserProject{
		ID:        domain.ProjectKey(userID, projectID),
		UserID:    userID,
		ProjectID: projectID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.Store.Update(ctx, func(tx *store.Tx) error {
		if _, err := repo.GetUser(tx, userID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := repo.AddProject(tx, p); err != nil {
			if errors.Is(err, store.ErrConstraint) {
				return ErrProjectExists
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListByUser returns the projects of userID, newest first.
func (s *ProjectService) ListByUser(ctx context.Context, userID string) ([]domain.UserProject, error) {
	if !s.Store.Available() {
		return []domain.UserProject{}, nil
	}
	var out []domain.UserProject
	err := s.Store.View(ctx, func(tx *store.Tx) error {
		var err error
		out, err = repo.ListProjectsByUser(tx, userID)
		return err
	})
	return out, err
}

// Get returns the project (userID, projectID) or ErrProjectNotFound.
func (s *ProjectService) Get(ctx context.Context, userID, projectID string) (*domain.UserProject, error) {
	if !s.Store.Available() {
		return nil, ErrProjectNotFound
	}
	var p *domain.UserProject
	err := s.Store.View(ctx, func(tx *store.Tx) error {
		var err error
		p, err = repo.GetProject(tx, userID, projectID)
		return err
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrProjectNotFound
	}
	return p, err
}

// VerifyAccess reports whether projectID belongs to userID.
func (s *ProjectService) VerifyAccess(ctx context.Context, userID, projectID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrMissingUser
	}
	_, err := s.Get(ctx, userID, projectID)
	return err
}

// Update stamps UpdatedAt and stores p, replacing the record with the same
// composite id.
func (s *ProjectService) Update(ctx context.Context, p *domain.UserProject) error {
	if p == nil || strings.TrimSpace(p.UserID) == "" {
		return ErrMissingUser
	}
	if !s.Store.Available() {
		return ErrStorageUnavailable
	}
	p.ID = domain.ProjectKey(p.UserID, p.ProjectID)
	p.UpdatedAt = s.now()
	return s.Store.Update(ctx, func(tx *store.Tx) error {
		err := repo.PutProject(tx, p)
		if errors.Is(err, store.ErrConstraint) {
			return ErrProjectExists
		}
		return err
	})
}

// Rename changes the name of an existing project.
func (s *ProjectService) Rename(ctx context.Context, userID, projectID, name string) (*domain.UserProject, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	if !s.Store.Available() {
		return nil, ErrStorageUnavailable
	}
	var out *domain.UserProject
	err := s.Store.Update(ctx, func(tx *store.Tx) error {
		p, err := repo.GetProject(tx, userID, projectID)
		if errors.Is(err, repo.ErrNotFound) {
			return ErrProjectNotFound
		}
		if err != nil {
			return err
		}
		p.Name = name
		p.UpdatedAt = s.now()
		if err := repo.PutProject(tx, p); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

// Remove deletes the project (userID, projectID). Missing projects are not
// an error.
func (s *ProjectService) Remove(ctx context.Context, userID, projectID string) error {
	if !s.Store.Available() {
		return ErrStorageUnavailable
	}
	return s.Store.Update(ctx, func(tx *store.Tx) error {
		return repo.DeleteProject(tx, userID, projectID)
	})
}
