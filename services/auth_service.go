package services

import (
	"chatto/auth"
	"chatto/domain"
	"chatto/errors"
	"chatto/repositories"
	"chatto/session"
	"context"
	"log/slog"
	"time"
)

type IAuthService interface {
	Register(ctx context.Context, email, password string) (domain.PublicUser, error)
	Login(ctx context.Context, email, password string) (Token, domain.PublicUser, error)
	Authenticate(ctx context.Context, token string) (auth.Identity, error)
	Logout(ctx context.Context, sessionID string) error
	ChangePassword(ctx context.Context, user domain.UserID, current, next string) error
}

type Token string

func (t Token) String() string {
	return string(t)
}

type AuthService struct {
	log            *slog.Logger
	userRepository repositories.IUserRepository
	sessions       session.Store
	issuer         *auth.TokenIssuer
	params         auth.PasswordParams
	tokenDuration  time.Duration
	now            func() time.Time
}

func NewAuthService(
	log *slog.Logger,
	userRepository repositories.IUserRepository,
	sessions session.Store,
	issuer *auth.TokenIssuer,
	params auth.PasswordParams,
	tokenDuration time.Duration,
) *AuthService {
	return &AuthService{
		log:            log,
		userRepository: userRepository,
		sessions:       sessions,
		issuer:         issuer,
		params:         params,
		tokenDuration:  tokenDuration,
		now:            time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, email, password string) (domain.PublicUser, error) {
	email = domain.NormalizeEmail(email)

	// Checked before any expensive hashing.
	if err := auth.ValidateCredentials(auth.Credentials{Email: email, Password: password}); err != nil {
		return domain.PublicUser{}, err
	}

	hashedPassword, err := auth.HashPassword(password, s.params)
	if err != nil {
		return domain.PublicUser{}, errors.Server("hash password", err)
	}

	user, err := s.userRepository.CreateUser(email, hashedPassword)
	if err != nil {
		return domain.PublicUser{}, errors.Server("create user", err)
	}
	s.log.Info("User registered", "user_id", user.ID)
	return user.Public(), nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (Token, domain.PublicUser, error) {
	user, err := s.userRepository.GetUserByEmail(domain.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			// Same answer as a wrong password, no account enumeration.
			return "", domain.PublicUser{}, errors.ErrInvalidCredentials
		}
		return "", domain.PublicUser{}, errors.Server("get user", err)
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", domain.PublicUser{}, errors.ErrInvalidCredentials
	}

	sess := domain.NewSession(user.ID, s.now(), s.tokenDuration)
	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", domain.PublicUser{}, errors.Server("create session", err)
	}

	token, err := s.issuer.GenerateToken(sess)
	if err != nil {
		return "", domain.PublicUser{}, errors.Server("generate token", err)
	}
	s.log.Info("User logged in", "user_id", user.ID, "session_id", sess.ID)
	return Token(token), user.Public(), nil
}

// Authenticate resolves a token to the identity it was issued for. The
// signature is not enough: the session must still be in the store.
func (s *AuthService) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	claims, err := s.issuer.ValidateToken(token)
	if err != nil {
		return auth.Identity{}, err
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return auth.Identity{}, errors.ErrSessionExpired
		}
		return auth.Identity{}, errors.Server("get session", err)
	}
	if sess.UserID != claims.UserID {
		return auth.Identity{}, errors.ErrInvalidToken
	}
	if !sess.ValidAt(s.now()) {
		return auth.Identity{}, errors.ErrSessionExpired
	}

	user, err := s.userRepository.GetUser(claims.UserID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return auth.Identity{}, errors.ErrInvalidToken
		}
		return auth.Identity{}, errors.Server("get user", err)
	}
	return auth.Identity{User: user.Public(), SessionID: claims.SessionID()}, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return errors.Server("delete session", err)
	}
	s.log.Info("Session revoked", "session_id", sessionID)
	return nil
}

// ChangePassword is the only mutation of a user. Existing sessions stay valid.
func (s *AuthService) ChangePassword(ctx context.Context, id domain.UserID, current, next string) error {
	user, err := s.userRepository.GetUser(id)
	if err != nil {
		return errors.Server("get user", err)
	}

	match, err := auth.ComparePassword(current, user.PasswordHash)
	if err != nil || !match {
		return errors.ErrInvalidCredentials
	}
	if err := auth.ValidateCredentials(auth.Credentials{Email: user.Email, Password: next}); err != nil {
		return err
	}

	hashedPassword, err := auth.HashPassword(next, s.params)
	if err != nil {
		return errors.Server("hash password", err)
	}
	if err := s.userRepository.UpdatePassword(id, hashedPassword); err != nil {
		return errors.Server("update password", err)
	}
	s.log.Info("Password changed", "user_id", id)
	return nil
}
