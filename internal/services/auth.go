package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	errs "github.com/greenloop/recircle-backend/internal/pkg/errors"
	"github.com/greenloop/recircle-backend/internal/pkg/logger"
	"github.com/greenloop/recircle-backend/internal/platform/apierr"
	"github.com/greenloop/recircle-backend/internal/repos"
	"github.com/greenloop/recircle-backend/internal/types"
	"github.com/greenloop/recircle-backend/internal/utils"
)

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AccessClaims struct {
	UserID uuid.UUID
	Role   string
}

type AuthService interface {
	Register(ctx context.Context, email, password, deviceFingerprint string) (*types.User, *TokenPair, error)
	Login(ctx context.Context, email, password string) (*types.User, *TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	ParseAccessToken(token string) (*AccessClaims, error)
	AccessTTL() time.Duration
}

type authService struct {
	log       *logger.Logger
	db        *gorm.DB
	userRepo  repos.UserRepo
	tokenRepo repos.UserTokenRepo
	audit     AuditService

	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewAuthService(db *gorm.DB, userRepo repos.UserRepo, tokenRepo repos.UserTokenRepo, audit AuditService, baseLog *logger.Logger) (AuthService, error) {
	serviceLog := baseLog.With("service", "AuthService")
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("missing JWT_SECRET")
	}
	accessTTL := time.Duration(utils.GetEnvAsInt("JWT_ACCESS_TTL_MINUTES", 15, serviceLog)) * time.Minute
	refreshTTL := time.Duration(utils.GetEnvAsInt("JWT_REFRESH_TTL_HOURS", 720, serviceLog)) * time.Hour
	return &authService{
		log:        serviceLog,
		db:         db,
		userRepo:   userRepo,
		tokenRepo:  tokenRepo,
		audit:      audit,
		jwtSecret:  []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

func (as *authService) Register(ctx context.Context, email, password, deviceFingerprint string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, nil, apierr.New(http.StatusBadRequest, "INVALID_EMAIL", fmt.Errorf("invalid email"))
	}
	if len(password) < 8 {
		return nil, nil, apierr.New(http.StatusBadRequest, "WEAK_PASSWORD", fmt.Errorf("password must be at least 8 characters"))
	}

	exists, err := as.userRepo.EmailExists(ctx, nil, email)
	if err != nil {
		return nil, nil, err
	}
	if exists {
		return nil, nil, apierr.New(http.StatusConflict, "EMAIL_TAKEN", fmt.Errorf("email already registered: %w", errs.ErrConflict))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	user := &types.User{
		Email:             email,
		PasswordHash:      string(hash),
		TrustScore:        types.DefaultTrustScore,
		Role:              types.RoleUser,
		DeviceFingerprint: deviceFingerprint,
	}

	var pair *TokenPair
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		created, err := as.userRepo.Create(ctx, tx, []*types.User{user})
		if err != nil {
			return err
		}
		user = created[0]
		pair, err = as.issueTokens(ctx, tx, user)
		if err != nil {
			return err
		}
		as.audit.Record(ctx, tx, AuditEntry{
			ActionType: types.AuditUserRegistered,
			UserID:     &user.ID,
			EntityType: "user",
			EntityID:   &user.ID,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (as *authService) Login(ctx context.Context, email, password string) (*types.User, *TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := as.userRepo.GetByEmail(ctx, nil, email)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, apierr.New(http.StatusUnauthorized, "INVALID_CREDENTIALS", fmt.Errorf("invalid credentials: %w", errs.ErrUnauthorized))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, nil, apierr.New(http.StatusUnauthorized, "INVALID_CREDENTIALS", fmt.Errorf("invalid credentials: %w", errs.ErrUnauthorized))
	}

	var pair *TokenPair
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		pair, err = as.issueTokens(ctx, tx, user)
		if err != nil {
			return err
		}
		as.audit.Record(ctx, tx, AuditEntry{
			ActionType: types.AuditUserLogin,
			UserID:     &user.ID,
			EntityType: "user",
			EntityID:   &user.ID,
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (as *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	stored, err := as.tokenRepo.GetByHash(ctx, nil, hashToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.RevokedAt != nil || time.Now().After(stored.ExpiresAt) {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", fmt.Errorf("refresh token invalid or expired: %w", errs.ErrUnauthorized))
	}
	user, err := as.userRepo.GetByID(ctx, nil, stored.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_REFRESH_TOKEN", fmt.Errorf("user gone"))
	}

	var pair *TokenPair
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Rotation: the old token dies the moment the new pair exists.
		if err := as.tokenRepo.Revoke(ctx, tx, stored.TokenHash); err != nil {
			return err
		}
		var err error
		pair, err = as.issueTokens(ctx, tx, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

func (as *authService) Logout(ctx context.Context, refreshToken string) error {
	return as.tokenRepo.Revoke(ctx, nil, hashToken(refreshToken))
}

func (as *authService) AccessTTL() time.Duration {
	return as.accessTTL
}

func (as *authService) ParseAccessToken(tokenString string) (*AccessClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return as.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_TOKEN", fmt.Errorf("invalid access token: %w", errs.ErrUnauthorized))
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_TOKEN", fmt.Errorf("invalid claims"))
	}
	sub, _ := claims["sub"].(string)
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, apierr.New(http.StatusUnauthorized, "INVALID_TOKEN", fmt.Errorf("invalid subject"))
	}
	role, _ := claims["role"].(string)
	return &AccessClaims{UserID: userID, Role: role}, nil
}

func (as *authService) issueTokens(ctx context.Context, tx *gorm.DB, user *types.User) (*TokenPair, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"iat":  now.Unix(),
		"exp":  now.Add(as.accessTTL).Unix(),
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshRaw := make([]byte, 32)
	if _, err := rand.Read(refreshRaw); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	refresh := hex.EncodeToString(refreshRaw)

	if _, err := as.tokenRepo.Create(ctx, tx, &types.UserToken{
		UserID:    user.ID,
		TokenHash: hashToken(refresh),
		ExpiresAt: now.Add(as.refreshTTL),
	}); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
