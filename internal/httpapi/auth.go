package httpapi

import (
	"context"
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/service"
)

const tokenIssuer = "pdv-backend"

var errInvalidToken = errors.New("invalid or expired token")

// Authenticator checks credentials against the user accounts.
type Authenticator interface {
	Authenticate(ctx context.Context, username string, password string) (domain.UserAccount, error)
}

type AuthManager struct {
	secret   []byte
	tokenTTL time.Duration
	users    Authenticator
	now      func() time.Time
}

type posCustomClaims struct {
	jwtlib.RegisteredClaims
	UserID string      `json:"uid"`
	Role   domain.Role `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, users Authenticator) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}
	return &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	account, err := a.users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	expiresAt := a.now().Add(a.tokenTTL)
	token, err := a.sign(account, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Role:        account.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
		User:        account.Public(),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &posCustomClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, errInvalidToken
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" || claims.UserID == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	if !claims.Role.Valid() {
		return domain.Actor{}, errors.New("invalid token role")
	}
	return domain.Actor{ID: claims.UserID, Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(account domain.UserAccount, expiresAt time.Time) (string, error) {
	claims := posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   account.Username,
			IssuedAt:  jwtlib.NewNumericDate(a.now()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		UserID: account.ID,
		Role:   account.Role,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

var _ Authenticator = (*service.Service)(nil)
