package httpapi

import (
	"context"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdvsystem/backend/internal/domain"
	"pdvsystem/backend/internal/service"
)

type authenticatorStub struct {
	account domain.UserAccount
	err     error
}

func (s authenticatorStub) Authenticate(_ context.Context, _ string, _ string) (domain.UserAccount, error) {
	return s.account, s.err
}

var stubAccount = domain.UserAccount{ID: "usr-1", Name: "Ana", Username: "ana", Role: domain.RoleSeller, Active: true}

func TestAuthManagerLoginIssuesParsableToken(t *testing.T) {
	auth := NewAuthManager("secret-for-tests", 30*time.Minute, authenticatorStub{account: stubAccount})
	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return fixed }

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ana", Password: "x"})
	require.NoError(t, err)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, domain.RoleSeller, resp.Role)
	assert.Equal(t, fixed.Add(30*time.Minute).Format(time.RFC3339), resp.ExpiresAt)
	assert.Equal(t, "ana", resp.User.Username)

	actor, err := auth.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{ID: "usr-1", Username: "ana", Role: domain.RoleSeller}, actor)
}

func TestAuthManagerLoginPropagatesCredentialErrors(t *testing.T) {
	auth := NewAuthManager("secret-for-tests", time.Hour, authenticatorStub{err: service.ErrInvalidCredentials})

	_, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ana", Password: "x"})
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestParseTokenRejectsExpiredTokens(t *testing.T) {
	auth := NewAuthManager("secret-for-tests", time.Minute, authenticatorStub{account: stubAccount})
	issued := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	auth.now = func() time.Time { return issued }

	token, err := auth.sign(stubAccount, issued.Add(time.Minute))
	require.NoError(t, err)

	auth.now = func() time.Time { return issued.Add(2 * time.Minute) }
	_, err = auth.ParseToken(token)
	assert.ErrorIs(t, err, errInvalidToken)
}

func TestParseTokenRejectsForeignTokens(t *testing.T) {
	auth := NewAuthManager("secret-for-tests", time.Hour, authenticatorStub{account: stubAccount})
	other := NewAuthManager("another-secret", time.Hour, authenticatorStub{account: stubAccount})

	foreign, err := other.sign(stubAccount, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = auth.ParseToken(foreign)
	assert.Error(t, err)

	unsigned := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "ana",
			Issuer:    tokenIssuer,
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "usr-1",
		Role:   domain.RoleAdmin,
	})
	raw, err := unsigned.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = auth.ParseToken(raw)
	assert.Error(t, err)

	wrongIssuer := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, posCustomClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "ana",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: "usr-1",
		Role:   domain.RoleSeller,
	})
	raw, err = wrongIssuer.SignedString([]byte("secret-for-tests"))
	require.NoError(t, err)
	_, err = auth.ParseToken(raw)
	assert.Error(t, err)
}

func TestParseTokenRequiresUserAndRole(t *testing.T) {
	auth := NewAuthManager("secret-for-tests", time.Hour, authenticatorStub{})

	token, err := auth.sign(domain.UserAccount{Username: "ghost", Role: domain.RoleSeller}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = auth.ParseToken(token)
	assert.Error(t, err)

	token, err = auth.sign(domain.UserAccount{ID: "usr-1", Username: "ana", Role: "root"}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = auth.ParseToken(token)
	assert.Error(t, err)
}
