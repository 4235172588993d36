package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-gradebook-api/internal/authz"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
	"github.com/noah-isme/sma-gradebook-api/pkg/validation"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	CreateSession(ctx context.Context, session *models.Session) error
	FindSession(ctx context.Context, tokenHash string) (*models.Session, error)
	RevokeSession(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeAllSessions(ctx context.Context, userID string) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type passwordChangeNotifier interface {
	PasswordChanged(ctx context.Context, user *models.User)
}

// AuthConfig controls token lifetimes and signing.
type AuthConfig struct {
	AccessTokenSecret  string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
	Audience           []string
	// SingleSession signs out other devices on every login.
	SingleSession bool
}

const clockSkew = 30 * time.Second

// dummyHash is compared against when the email is unknown so both failure
// paths cost one bcrypt comparison.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

var errInvalidLogin = appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")

// AuthService issues and rotates tokens.
type AuthService struct {
	repo      authUserRepository
	notifier  passwordChangeNotifier
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
	parser    *jwt.Parser
	now       func() time.Time
}

// NewAuthService constructs an AuthService. notifier may be nil.
func NewAuthService(repo authUserRepository, notifier passwordChangeNotifier, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	return &AuthService{
		repo:      repo,
		notifier:  notifier,
		validator: validate,
		logger:    logger,
		config:    config,
		parser:    jwt.NewParser(opts...),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Login checks credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, creds models.Credentials, meta RequestMeta) (*models.LoginResult, error) {
	if err := s.validator.Struct(creds); err != nil {
		return nil, appErrors.Validation(err, "invalid login payload")
	}

	user, err := s.repo.FindByEmail(ctx, creds.Email)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Password))
		return nil, errInvalidLogin
	case err != nil:
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(creds.Password)) != nil {
		return nil, errInvalidLogin
	}
	// Pending registrations stay inactive until approved.
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	if s.config.SingleSession {
		if err := s.repo.RevokeAllSessions(ctx, user.ID); err != nil {
			s.logger.Warn("failed to close previous sessions", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	pair, err := s.openSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateLastLogin(ctx, user.ID, pair.IssuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.audit(ctx, user.ID, models.AuditActionLogin, `{"via":"password"}`, meta)

	return &models.LoginResult{TokenPair: *pair, User: user.Info(), HomePath: authz.HomePath(user.Role)}, nil
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated away signs the owner out of every device.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest, meta RequestMeta) (*models.TokenPair, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Validation(err, "invalid refresh payload")
	}
	current, err := s.lookupSession(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	if current.Revoked() {
		s.handleReuse(ctx, current, meta)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is no longer valid")
	}
	if current.Expired(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token expired")
	}

	user, err := s.repo.FindByID(ctx, current.UserID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	won, err := s.repo.RevokeSession(ctx, current.ID, s.now())
	if err != nil {
		return nil, appErrors.Internal(err, "failed to rotate session")
	}
	if !won {
		s.handleReuse(ctx, current, meta)
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token is no longer valid")
	}
	return s.openSession(ctx, user, meta)
}

// Logout revokes the caller's refresh token.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken string, meta RequestMeta) error {
	current, err := s.lookupSession(ctx, refreshToken)
	if err != nil {
		return err
	}
	if current.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if _, err := s.repo.RevokeSession(ctx, current.ID, s.now()); err != nil {
		return appErrors.Internal(err, "failed to revoke session")
	}
	s.audit(ctx, userID, models.AuditActionLogout, `{}`, meta)
	return nil
}

// ChangePassword replaces the caller's password, signs out every session
// and notifies the owner by mail.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.PasswordChange, meta RequestMeta) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Validation(err, "invalid change password payload")
	}
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)) != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "current password does not match")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	if err := s.repo.UpdatePassword(ctx, userID, string(hash), s.now()); err != nil {
		return appErrors.Internal(err, "failed to update password")
	}
	if err := s.repo.RevokeAllSessions(ctx, userID); err != nil {
		s.logger.Warn("failed to close sessions after password change", zap.String("user_id", userID), zap.Error(err))
	}
	s.audit(ctx, userID, models.AuditActionPasswordChange, `{}`, meta)
	if s.notifier != nil {
		s.notifier.PasswordChanged(ctx, user)
	}
	return nil
}

// Profile returns the current account of an authenticated caller.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	info := user.Info()
	return &info, nil
}

// ValidateToken verifies an access token and returns its claims.
func (s *AuthService) ValidateToken(raw string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	_, err := s.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.AccessTokenSecret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AuthService) lookupSession(ctx context.Context, token string) (*models.Session, error) {
	session, err := s.repo.FindSession(ctx, hashToken(token))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not recognised")
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load session")
	}
	return session, nil
}

func (s *AuthService) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	case err != nil:
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}

func (s *AuthService) handleReuse(ctx context.Context, session *models.Session, meta RequestMeta) {
	s.logger.Warn("revoked refresh token presented, closing all sessions",
		zap.String("user_id", session.UserID),
		zap.String("session_id", session.ID),
		zap.String("ip", meta.IP))
	if err := s.repo.RevokeAllSessions(ctx, session.UserID); err != nil {
		s.logger.Error("failed to close sessions after token reuse", zap.String("user_id", session.UserID), zap.Error(err))
	}
	s.audit(ctx, session.UserID, models.AuditActionTokenReuse, `{"session":"`+session.ID+`"}`, meta)
}

func (s *AuthService) openSession(ctx context.Context, user *models.User, meta RequestMeta) (*models.TokenPair, error) {
	issuedAt := s.now()
	access, err := s.signAccessToken(user, issuedAt)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to sign access token")
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, appErrors.Internal(err, "failed to create refresh token")
	}
	if err := s.repo.CreateSession(ctx, &models.Session{
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: issuedAt.Add(s.config.RefreshTokenExpiry),
		CreatedAt: issuedAt,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}); err != nil {
		return nil, appErrors.Internal(err, "failed to store session")
	}
	return &models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    models.TokenTypeBearer,
		ExpiresIn:    int64(s.config.AccessTokenExpiry / time.Second),
		IssuedAt:     issuedAt,
	}, nil
}

func (s *AuthService) signAccessToken(user *models.User, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			Audience:  s.config.Audience,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTokenExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.AccessTokenSecret))
}

func (s *AuthService) audit(ctx context.Context, userID, action, payload string, meta RequestMeta) {
	if err := s.repo.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		NewValues:  []byte(payload),
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}); err != nil {
		s.logger.Warn("failed to record auth audit log", zap.String("action", action), zap.Error(err))
	}
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
