package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/crypto/bcrypt"

	"github.com/truthtally/truthtally/internal/model"
	"github.com/truthtally/truthtally/internal/policy"
	"github.com/truthtally/truthtally/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidRole        = errors.New("invalid role")
)

// Store is the slice of store.Store that auth needs.
type Store interface {
	store.UserStore
	store.AuthStore
}

type Service struct {
	store      Store
	tokenTTL   time.Duration
	bcryptCost int
	// identities caches token -> Identity; nil when disabled.
	identities *cache.Cache
	cacheTTL   time.Duration
}

type Options struct {
	TokenTTL   time.Duration
	BcryptCost int
	// IdentityCacheTTL bounds how long a resolved token is reused. Zero
	// disables caching.
	IdentityCacheTTL time.Duration
}

// Identity is what a verified bearer token resolves to.
type Identity struct {
	UserID string     `json:"userId"`
	Email  string     `json:"email"`
	Role   model.Role `json:"role"`
}

func (i Identity) Actor() policy.Actor {
	return policy.Actor{ID: i.UserID, Role: i.Role}
}

func NewService(store Store, opts Options) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	s := &Service{
		store:      store,
		tokenTTL:   opts.TokenTTL,
		bcryptCost: opts.BcryptCost,
	}
	if opts.IdentityCacheTTL > 0 {
		s.identities = cache.New(opts.IdentityCacheTTL, 2*opts.IdentityCacheTTL)
		s.cacheTTL = opts.IdentityCacheTTL
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a user with the default role.
func (s *Service) Register(ctx context.Context, email, password string) (model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return model.User{}, fmt.Errorf("hash password: %w", err)
	}
	user := model.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		PasswordHash: string(hash),
		Role:         model.RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return model.User{}, err
	}
	return user, nil
}

// Login checks the password and issues a new bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (model.Token, model.User, error) {
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.Token{}, model.User{}, ErrInvalidCredentials
		}
		return model.Token{}, model.User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return model.Token{}, model.User{}, ErrInvalidCredentials
	}

	tokenValue, err := randomToken(32)
	if err != nil {
		return model.Token{}, model.User{}, err
	}
	token := model.Token{
		Token:     tokenValue,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(s.tokenTTL),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return model.Token{}, model.User{}, err
	}
	return token, user, nil
}

// Authenticate resolves a bearer token. The role comes from the user record,
// so a promotion takes effect without a new login once any cached identity
// has expired.
func (s *Service) Authenticate(ctx context.Context, bearer string) (Identity, error) {
	if s.identities != nil {
		if v, ok := s.identities.Get(bearer); ok {
			return v.(Identity), nil
		}
	}
	token, err := s.store.GetToken(ctx, bearer)
	if err != nil {
		return Identity{}, err
	}
	if time.Now().After(token.ExpiresAt) {
		_ = s.store.DeleteToken(ctx, bearer)
		return Identity{}, ErrTokenExpired
	}
	user, err := s.store.GetUser(ctx, token.UserID)
	if err != nil {
		return Identity{}, err
	}
	ident := Identity{UserID: user.ID, Email: user.Email, Role: user.Role}
	if s.identities != nil {
		ttl := time.Until(token.ExpiresAt)
		if ttl > 0 {
			s.identities.Set(bearer, ident, min(ttl, s.cacheTTL))
		}
	}
	return ident, nil
}

func (s *Service) Logout(ctx context.Context, bearer string) error {
	if s.identities != nil {
		s.identities.Delete(bearer)
	}
	return s.store.DeleteToken(ctx, bearer)
}

// SetRole is the administrative role change. It is not reachable over HTTP.
// It flushes this process's identity cache only; another process serving the
// same database sees the new role once its cached entry expires.
func (s *Service) SetRole(ctx context.Context, email string, role model.Role) (model.User, error) {
	if !role.Valid() {
		return model.User{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	user, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return model.User{}, err
	}
	if err := s.store.SetUserRole(ctx, user.ID, role); err != nil {
		return model.User{}, err
	}
	if s.identities != nil {
		s.identities.Flush()
	}
	user.Role = role
	return user, nil
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
