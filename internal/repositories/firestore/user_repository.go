package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/vietcart/api/internal/domain"
	pfirestore "github.com/vietcart/api/internal/platform/firestore"
	"github.com/vietcart/api/internal/repositories"
)

const usersCollection = "users"

// UserRepository persists user profiles keyed by Firebase UID.
type UserRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{
		provider: provider,
		base:     pfirestore.NewBaseRepository[userDocument](provider, usersCollection, nil, nil),
	}, nil
}

// FindByID loads the user profile by UID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.UserProfile{}, errors.New("user id is required")
	}
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// UpdateProfile upserts the profile document.
func (r *UserRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	uid := strings.TrimSpace(profile.ID)
	if uid == "" {
		return domain.UserProfile{}, errors.New("profile id is required")
	}

	now := time.Now().UTC()
	doc := newUserDocument(profile)
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if _, err := r.base.Set(ctx, uid, doc); err != nil {
		return domain.UserProfile{}, err
	}
	return doc.toDomain(uid), nil
}

// List returns user profiles with offset pagination, optionally filtered to a
// single role.
func (r *UserRepository) List(ctx context.Context, filter repositories.UserListFilter) (domain.PagedResult[domain.UserProfile], error) {
	if r == nil || r.provider == nil {
		return domain.PagedResult[domain.UserProfile]{}, errors.New("user repository not initialised")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.PagedResult[domain.UserProfile]{}, err
	}

	query := client.Collection(usersCollection).Query
	if role := strings.TrimSpace(filter.Role); role != "" {
		query = query.Where("roles", "array-contains", role)
	}

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.PagedResult[domain.UserProfile]{}, pfirestore.WrapError("users.count", err)
	}

	page, limit := normalizePage(filter.Page)
	iter := query.OrderBy("createdAt", firestore.Desc).Offset((page - 1) * limit).Limit(limit).Documents(ctx)
	defer iter.Stop()

	var items []domain.UserProfile
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.PagedResult[domain.UserProfile]{}, pfirestore.WrapError("users.list", err)
		}
		var doc userDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.PagedResult[domain.UserProfile]{}, fmt.Errorf("decode user %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID))
	}

	return newPagedResult(items, total, page, limit), nil
}

type userDocument struct {
	Email     string    `firestore:"email"`
	FullName  string    `firestore:"fullName"`
	Phone     string    `firestore:"phone,omitempty"`
	Language  string    `firestore:"language,omitempty"`
	Roles     []string  `firestore:"roles"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func newUserDocument(profile domain.UserProfile) userDocument {
	roles := make([]string, 0, len(profile.Roles))
	for _, role := range profile.Roles {
		trimmed := strings.TrimSpace(role)
		if trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	return userDocument{
		Email:     strings.TrimSpace(profile.Email),
		FullName:  strings.TrimSpace(profile.FullName),
		Phone:     strings.TrimSpace(profile.Phone),
		Language:  strings.TrimSpace(profile.Language),
		Roles:     roles,
		CreatedAt: profile.CreatedAt.UTC(),
		UpdatedAt: profile.UpdatedAt.UTC(),
	}
}

func (d userDocument) toDomain(id string) domain.UserProfile {
	return domain.UserProfile{
		ID:        id,
		Email:     d.Email,
		FullName:  d.FullName,
		Phone:     d.Phone,
		Language:  d.Language,
		Roles:     d.Roles,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
