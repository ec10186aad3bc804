package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"worksite/cmd/identity"
	"worksite/cmd/identity/ids"
)

// maxTokenLen bounds presented tokens before any parsing.
const maxTokenLen = 4096

// CredentialVerifier checks an email/password pair. identity.CredentialVerifier
// implements it; failures it classifies as bad credentials are
// identity.ErrInvalidCredentials.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (identity.User, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Codec     Codec
	Store     Store
	Verifier  CredentialVerifier
	Users     identity.UserLookup
	UserTypes identity.UserTypeLookup
}

// Service orchestrates login, refresh and logout.
type Service struct {
	cfg   Config
	deps  Deps
	clock func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.clock = now
		}
	}
}

// NewService wires a Service. Every dependency is required.
func NewService(cfg Config, deps Deps, opts ...Option) (*Service, error) {
	switch {
	case deps.Codec == nil:
		return nil, errors.New("session: nil codec")
	case deps.Store == nil:
		return nil, errors.New("session: nil store")
	case deps.Verifier == nil:
		return nil, errors.New("session: nil credential verifier")
	case deps.Users == nil:
		return nil, errors.New("session: nil user lookup")
	case deps.UserTypes == nil:
		return nil, errors.New("session: nil user type lookup")
	}

	s := &Service{cfg: cfg, deps: deps, clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Issued is the result of a successful login.
type Issued struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time

	User   identity.User
	Claims Claims
}

// Refreshed is the result of a successful refresh. RefreshToken is set only
// when rotation is enabled.
type Refreshed struct {
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time

	Claims Claims
}

// Login verifies credentials, issues an access and refresh token, and
// records the refresh token.
func (s *Service) Login(ctx context.Context, email, password string) (Issued, error) {
	const op = "session.Login"

	u, err := s.deps.Verifier.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return Issued{}, AuthenticationError{Op: op, Reason: ReasonBadCredentials}
		}
		return Issued{}, fmt.Errorf("%s: verify: %w", op, err)
	}

	claims, err := s.claimsFor(ctx, u)
	if err != nil {
		return Issued{}, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock()
	access, accessExp, err := s.deps.Codec.IssueAccessToken(claims, now)
	if err != nil {
		return Issued{}, fmt.Errorf("%s: issue access: %w", op, err)
	}
	refresh, rec, err := s.newRefresh(u.ID, now)
	if err != nil {
		return Issued{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.deps.Store.Create(ctx, rec); err != nil {
		return Issued{}, fmt.Errorf("%s: persist refresh: %w", op, err)
	}

	return Issued{
		AccessToken:  access,
		AccessExp:    accessExp,
		RefreshToken: refresh,
		RefreshExp:   rec.ExpiresAt,
		User:         u,
		Claims:       claims,
	}, nil
}

// Refresh validates refreshToken against the codec and the store, re-derives
// claims from current storage and issues a new access token.
//
// Every rejection is an AuthenticationError; its Reason tells them apart.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Refreshed, error) {
	const op = "session.Refresh"

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > maxTokenLen {
		return Refreshed{}, AuthenticationError{Op: op, Reason: ReasonTokenInvalid}
	}

	now := s.clock()
	sub, err := s.deps.Codec.VerifyRefreshToken(refreshToken, now)
	if err != nil {
		reason := ReasonTokenInvalid
		if errors.Is(err, ErrTokenExpired) {
			reason = ReasonTokenExpired
		}
		return Refreshed{}, AuthenticationError{Op: op, Reason: reason, Err: err}
	}

	rec, err := s.deps.Store.FindActiveByToken(ctx, refreshToken, now)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Refreshed{}, AuthenticationError{Op: op, Reason: ReasonSessionNotActive}
		}
		return Refreshed{}, fmt.Errorf("%s: find: %w", op, err)
	}
	if rec.UserID != sub {
		return Refreshed{}, AuthenticationError{Op: op, Reason: ReasonSubjectMismatch}
	}

	u, err := s.deps.Users.FindByID(ctx, sub)
	if err != nil {
		if identity.IsNotFound(err) {
			return Refreshed{}, AuthenticationError{Op: op, Reason: ReasonUserMissing}
		}
		return Refreshed{}, fmt.Errorf("%s: load user: %w", op, err)
	}

	claims, err := s.claimsFor(ctx, u)
	if err != nil {
		return Refreshed{}, fmt.Errorf("%s: %w", op, err)
	}
	access, accessExp, err := s.deps.Codec.IssueAccessToken(claims, now)
	if err != nil {
		return Refreshed{}, fmt.Errorf("%s: issue access: %w", op, err)
	}

	out := Refreshed{AccessToken: access, AccessExp: accessExp, Claims: claims}
	if !s.cfg.RotateRefreshTokens {
		return out, nil
	}

	next, rec, err := s.newRefresh(u.ID, now)
	if err != nil {
		return Refreshed{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.deps.Store.Rotate(ctx, refreshToken, rec, now); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return Refreshed{}, AuthenticationError{Op: op, Reason: ReasonSessionNotActive}
		}
		return Refreshed{}, fmt.Errorf("%s: rotate: %w", op, err)
	}
	out.RefreshToken = next
	out.RefreshExp = rec.ExpiresAt
	return out, nil
}

// Logout revokes refreshToken. Empty, unknown and already revoked tokens
// succeed; only storage failures are returned.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" || len(refreshToken) > maxTokenLen {
		return nil
	}
	if err := s.deps.Store.Revoke(ctx, refreshToken, s.clock()); err != nil {
		return fmt.Errorf("session.Logout: %w", err)
	}
	return nil
}

// LogoutAll revokes every active refresh token of userID.
func (s *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.deps.Store.RevokeAllForUser(ctx, userID, s.clock())
	if err != nil {
		return 0, fmt.Errorf("session.LogoutAll: %w", err)
	}
	return n, nil
}

// PurgeExpired deletes expired refresh records.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.deps.Store.PurgeExpired(ctx, s.clock())
	if err != nil {
		return 0, fmt.Errorf("session.PurgeExpired: %w", err)
	}
	return n, nil
}

func (s *Service) claimsFor(ctx context.Context, u identity.User) (Claims, error) {
	ut, err := s.deps.UserTypes.FindByID(ctx, u.UserTypeID)
	if err != nil {
		if identity.IsNotFound(err) {
			return Claims{}, fmt.Errorf("%w: user %s references missing user type %d",
				ErrInvariantViolation, u.ID, u.UserTypeID)
		}
		return Claims{}, fmt.Errorf("load user type: %w", err)
	}
	return Claims{
		UserID:       u.ID,
		Email:        u.Email,
		UserType:     ut.ID,
		UserTypeName: ut.Name,
		Permissions:  Permissions{ApproveMeasurement: ut.ApproveMeasurement},
	}, nil
}

func (s *Service) newRefresh(userID string, now time.Time) (string, Record, error) {
	tok, exp, err := s.deps.Codec.IssueRefreshToken(userID, now)
	if err != nil {
		return "", Record{}, fmt.Errorf("issue refresh: %w", err)
	}
	id, err := ids.NewULID(now)
	if err != nil {
		return "", Record{}, fmt.Errorf("record id: %w", err)
	}
	return tok, Record{
		ID:        id,
		UserID:    userID,
		Token:     tok,
		ExpiresAt: exp,
		CreatedAt: now,
	}, nil
}
