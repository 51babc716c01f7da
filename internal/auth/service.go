// Package auth signs users in and serves their cached profile.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-rbac/internal/credential"
	"github.com/odyssey-erp/odyssey-rbac/internal/directory"
	"github.com/odyssey-erp/odyssey-rbac/internal/permcache"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	store    rbac.DirectoryPort
	resolver *rbac.Resolver
	codes    *permcache.Keyspace[[]string]
	profiles *permcache.Keyspace[rbac.Profile]
	issuer   *credential.Issuer
	logger   *slog.Logger
}

// NewService constructs a new Service. Profiles take their permission codes from the codes
// keyspace so both views of a user share one cached computation.
func NewService(store rbac.DirectoryPort, codes *permcache.Keyspace[[]string], profiles *permcache.Keyspace[rbac.Profile], issuer *credential.Issuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, codes: codes, profiles: profiles, issuer: issuer, logger: logger}
	s.resolver = rbac.NewResolver(store, rbac.WithCodeSource(s.Codes))
	return s
}

// Resolver returns the resolver used for profiles.
func (s *Service) Resolver() *rbac.Resolver { return s.resolver }

// Login checks the password and issues a credential carrying the user's current codes.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return LoginResult{}, shared.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, shared.ErrInvalidCredentials
	}
	if !user.Enabled() {
		return LoginResult{}, shared.ErrUserDisabled
	}
	return s.issue(ctx, user)
}

// Refresh re-issues a credential from the user's current codes. It lets a client holding a
// still-valid credential pick up permission changes without re-entering the password.
func (s *Service) Refresh(ctx context.Context, username string) (LoginResult, error) {
	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return LoginResult{}, fmt.Errorf("%w: unknown user", shared.ErrUnauthorized)
		}
		return LoginResult{}, err
	}
	if !user.Enabled() {
		return LoginResult{}, shared.ErrUserDisabled
	}
	return s.issue(ctx, user)
}

// Profile returns the cached profile of username.
func (s *Service) Profile(ctx context.Context, username string) (rbac.Profile, error) {
	return s.profiles.GetOrCompute(ctx, username, func(ctx context.Context) (rbac.Profile, error) {
		return s.resolver.ResolveProfile(ctx, username)
	})
}

// Codes returns the cached permission codes of a user.
func (s *Service) Codes(ctx context.Context, userID int64) ([]string, error) {
	return s.codes.GetOrCompute(ctx, permcache.UserKey(userID), func(ctx context.Context) ([]string, error) {
		return s.resolver.ResolvePermissionCodes(ctx, userID)
	})
}

func (s *Service) issue(ctx context.Context, user directory.User) (LoginResult, error) {
	codes, err := s.Codes(ctx, user.ID)
	if err != nil {
		return LoginResult{}, err
	}
	token, err := s.issuer.Issue(user.Username, codes)
	if err != nil {
		return LoginResult{}, err
	}
	s.logger.Info("credential issued", slog.String("username", user.Username), slog.Int("permissions", len(codes)))
	return LoginResult{
		Token:     token,
		TokenType: TokenType,
		ExpiresIn: int64(s.issuer.TTL().Seconds()),
		Username:  user.Username,
		Nickname:  user.Nickname,
	}, nil
}
