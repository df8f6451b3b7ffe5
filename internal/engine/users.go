package engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"crmline/internal/domain"
	"crmline/internal/engine/auth"
	"crmline/internal/kinds"
	"crmline/internal/lifecycle"
	"crmline/internal/store"
)

// ErrInvalidCredentials is returned for an unknown email, a wrong password
// or a disabled user alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

const minPasswordLength = 8

func (e Engine) Users() Records[domain.User, *domain.User] {
	return records(e, kinds.User)
}

// CreateUser registers an operator. Only admins may add users once the
// first one exists.
func (e Engine) CreateUser(ctx context.Context, actor auth.Actor, u *domain.User, password string) (*domain.User, error) {
	count, err := e.Users().coll().Count(ctx, store.Query{}, nil)
	if err != nil {
		return nil, err
	}
	if count > 0 && !actor.IsAdmin() {
		return nil, auth.ForbiddenError{Reason: "admin role required"}
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if _, ok := e.Config.RBAC.Roles[u.Role]; !ok {
		return nil, lifecycle.Invalid(domain.KindUser, "role", "unknown role "+u.Role)
	}
	if len(password) < minPasswordLength {
		return nil, lifecycle.Invalid(domain.KindUser, "password", "must be at least 8 characters")
	}
	if _, err := e.UserByEmail(ctx, u.Email); err == nil {
		return nil, lifecycle.Invalid(domain.KindUser, "email", "user already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = string(hash)
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	// users own their record
	u.OwnerID = u.ID
	return e.Users().Create(ctx, actor, u)
}

// SetPassword replaces the stored hash. Users may change their own.
func (e Engine) SetPassword(ctx context.Context, actor auth.Actor, id, password string) error {
	if len(password) < minPasswordLength {
		return lifecycle.Invalid(domain.KindUser, "password", "must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = e.Users().Update(ctx, actor, id, func(u *domain.User) error {
		u.PasswordHash = string(hash)
		return nil
	})
	return err
}

func (e Engine) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	users, err := e.Users().List(ctx, store.Query{Limit: 1}, func(u *domain.User) bool { return u.Email == email })
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, notFound(domain.KindUser, email)
	}
	return users[0], nil
}

// Authenticate checks an email and password and returns the caller.
func (e Engine) Authenticate(ctx context.Context, email, password string) (auth.Actor, error) {
	u, err := e.UserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return auth.Actor{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Actor{}, err
	}
	if u.Disabled {
		return auth.Actor{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return auth.Actor{}, ErrInvalidCredentials
	}
	return e.ActorFor(u), nil
}

// ActorFor resolves a user's role into permissions.
func (e Engine) ActorFor(u *domain.User) auth.Actor {
	return e.Auth.ActorForUser(u.ID, u.Email, u.Role)
}

// ActorByID loads an enabled user as an actor.
func (e Engine) ActorByID(ctx context.Context, id string) (auth.Actor, error) {
	u, err := e.Users().Get(ctx, id)
	if err != nil {
		return auth.Actor{}, err
	}
	if u.Disabled {
		return auth.Actor{}, ErrInvalidCredentials
	}
	return e.ActorFor(u), nil
}

func (e Engine) ListUsers(ctx context.Context, actor auth.Actor) ([]*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, auth.ForbiddenError{Reason: "admin role required"}
	}
	return e.Users().List(ctx, store.Query{}, nil)
}

func (e Engine) TransitionUser(ctx context.Context, actor auth.Actor, id string, action lifecycle.Action) (*domain.User, error) {
	return e.Users().Do(ctx, actor, id, lifecycle.Request{Action: action})
}

// CreateAPIKey mints a key for userID and returns the raw value once.
func (e Engine) CreateAPIKey(ctx context.Context, actor auth.Actor, userID, name string) (string, domain.APIKey, error) {
	if err := actor.Check(auth.Owner, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	if _, err := e.Users().Get(ctx, userID); err != nil {
		return "", domain.APIKey{}, err
	}
	raw, err := store.GenerateAPIKey()
	if err != nil {
		return "", domain.APIKey{}, err
	}
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      strings.TrimSpace(name),
		KeyHash:   store.HashAPIKey(raw),
		CreatedAt: e.now().Format(time.RFC3339),
	}
	if err := e.Store.InsertAPIKey(ctx, key); err != nil {
		return "", domain.APIKey{}, err
	}
	return raw, key, nil
}

// ResolveAPIKey maps a raw key to its user.
func (e Engine) ResolveAPIKey(ctx context.Context, raw string) (auth.Actor, error) {
	if strings.TrimSpace(raw) == "" {
		return auth.Actor{}, ErrInvalidCredentials
	}
	key, err := e.Store.APIKeyByHash(ctx, store.HashAPIKey(raw))
	if errors.Is(err, store.ErrNotFound) {
		return auth.Actor{}, ErrInvalidCredentials
	}
	if err != nil {
		return auth.Actor{}, err
	}
	return e.ActorByID(ctx, key.UserID)
}

func (e Engine) ListAPIKeys(ctx context.Context, actor auth.Actor, userID string) ([]domain.APIKey, error) {
	if userID == "" && !actor.IsAdmin() {
		userID = actor.ID
	}
	if err := actor.Check(auth.Owner, userID); userID != "" && err != nil {
		return nil, err
	}
	return e.Store.ListAPIKeys(ctx, userID)
}

// RevokeAPIKey deletes a key. Non-admins may only revoke their own.
func (e Engine) RevokeAPIKey(ctx context.Context, actor auth.Actor, id string) error {
	if !actor.IsAdmin() {
		keys, err := e.Store.ListAPIKeys(ctx, actor.ID)
		if err != nil {
			return err
		}
		owned := false
		for _, k := range keys {
			owned = owned || k.ID == id
		}
		if !owned {
			return auth.ForbiddenError{Reason: "only the owner or an admin may do this"}
		}
	}
	return e.Store.DeleteAPIKey(ctx, id)
}
