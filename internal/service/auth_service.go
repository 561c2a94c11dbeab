package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/hostel-fee-api/internal/models"
	appErrors "github.com/noah-isme/hostel-fee-api/pkg/errors"
)

type adminStore interface {
	List(ctx context.Context) ([]*models.Admin, error)
	FindByID(ctx context.Context, id string) (*models.Admin, error)
	FindByField(ctx context.Context, field, value string, match func(*models.Admin) bool) (*models.Admin, error)
	Create(ctx context.Context, rec *models.Admin) (*models.Admin, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.Admin, error)
}

type sessionStore interface {
	List(ctx context.Context) ([]*models.AdminSession, error)
	FindByField(ctx context.Context, field, value string, match func(*models.AdminSession) bool) (*models.AdminSession, error)
	Create(ctx context.Context, rec *models.AdminSession) (*models.AdminSession, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// AuthConfig defines token issuance parameters.
type AuthConfig struct {
	Secret []byte
	Expiry time.Duration
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthService issues and validates bearer tokens backed by server-side
// session records so tokens can be revoked before expiry.
type AuthService struct {
	admins    adminStore
	sessions  sessionStore
	config    AuthConfig
	validator *validator.Validate
	logger    *zap.Logger
	clock     func() time.Time
}

// NewAuthService constructs the auth service.
func NewAuthService(admins adminStore, sessions sessionStore, config AuthConfig, validate *validator.Validate, logger *zap.Logger) *AuthService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Expiry <= 0 {
		config.Expiry = 24 * time.Hour
	}
	return &AuthService{
		admins:    admins,
		sessions:  sessions,
		config:    config,
		validator: validate,
		logger:    logger,
		clock:     time.Now,
	}
}

// WithClock overrides the time source.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// Login authenticates an admin and returns a bearer token. Bad username
// and bad password produce the same generic error.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	admin, err := s.admins.FindByField(ctx, "username", req.Username, func(a *models.Admin) bool {
		return a.Username == req.Username
	})
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	if !admin.IsActive {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	now := s.clock().UTC()
	expiresAt := now.Add(s.config.Expiry)

	claims := models.JWTClaims{
		AdminID:  admin.ID,
		Username: admin.Username,
		Role:     admin.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   admin.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.Secret)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	session := &models.AdminSession{
		ID:        uuid.NewString(),
		AdminID:   admin.ID,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	if _, err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	if _, err := s.admins.Update(ctx, admin.ID, map[string]any{"lastLogin": now}); err != nil {
		s.logger.Warn("failed to update last login", zap.String("admin_id", admin.ID), zap.Error(err))
	}

	return &models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Admin:     adminInfo(admin),
	}, nil
}

// Logout revokes the session behind the token. Unknown tokens are not an
// error.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.sessions.FindByField(ctx, "token", token, func(ses *models.AdminSession) bool {
		return ses.Token == token
	})
	if err != nil {
		return nil
	}
	_, err = s.sessions.Delete(ctx, session.ID)
	return err
}

// ValidateToken verifies the JWT signature and that a live session still
// backs the token.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "unexpected signing method")
		}
		return s.config.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}

	session, err := s.sessions.FindByField(ctx, "token", token, func(ses *models.AdminSession) bool {
		return ses.Token == token
	})
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session revoked")
	}
	if s.clock().UTC().After(session.ExpiresAt) {
		if _, err := s.sessions.Delete(ctx, session.ID); err != nil {
			s.logger.Warn("failed to drop expired session", zap.Error(err))
		}
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session expired")
	}

	return claims, nil
}

// Me returns the public projection of the authenticated admin.
func (s *AuthService) Me(ctx context.Context, adminID string) (*models.AdminInfo, error) {
	admin, err := s.admins.FindByID(ctx, adminID)
	if err != nil {
		return nil, err
	}
	info := adminInfo(admin)
	return &info, nil
}

// SweepExpiredSessions drops sessions past their expiry. Invoked by the
// background runner.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) int {
	sessions, err := s.sessions.List(ctx)
	if err != nil {
		s.logger.Warn("session sweep skipped", zap.Error(err))
		return 0
	}
	now := s.clock().UTC()
	swept := 0
	for _, ses := range sessions {
		if now.After(ses.ExpiresAt) {
			if _, err := s.sessions.Delete(ctx, ses.ID); err == nil {
				swept++
			}
		}
	}
	if swept > 0 {
		s.logger.Info("expired sessions swept", zap.Int("count", swept))
	}
	return swept
}

// EnsureBootstrapAdmin seeds the first operator account when no admin
// exists yet.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, username, password, email string) error {
	admins, err := s.admins.List(ctx)
	if err != nil {
		return err
	}
	if len(admins) > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash bootstrap password")
	}
	_, err = s.admins.Create(ctx, &models.Admin{
		Username:     username,
		PasswordHash: string(hash),
		Email:        email,
		Role:         models.RoleAdmin,
		IsActive:     true,
	})
	if err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", zap.String("username", username))
	return nil
}

func adminInfo(a *models.Admin) models.AdminInfo {
	return models.AdminInfo{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		Role:     a.Role,
	}
}
