package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/skyshop/internal/domain/auth"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func validClaims() Claims {
	return Claims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			Issuer:    "skyshop",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func TestVerify(t *testing.T) {
	a := NewAuthenticator(testSecret, "skyshop")

	p, err := a.Verify(sign(t, jwt.SigningMethodHS256, testSecret, validClaims()))
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{UserID: 42, Role: auth.RoleAdmin}, p)

	legacy := validClaims()
	legacy.Subject = ""
	legacy.UserID = 9
	legacy.Role = ""
	p, err = a.Verify(sign(t, jwt.SigningMethodHS256, testSecret, legacy))
	require.NoError(t, err)
	assert.Equal(t, auth.Principal{UserID: 9, Role: auth.RoleCustomer}, p)
}

func TestVerify_Rejects(t *testing.T) {
	a := NewAuthenticator(testSecret, "skyshop")

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	noExpiry := validClaims()
	noExpiry.ExpiresAt = nil

	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "elsewhere"

	noUser := validClaims()
	noUser.Subject = ""

	badRole := validClaims()
	badRole.Role = "root"

	for name, raw := range map[string]string{
		"expired":      sign(t, jwt.SigningMethodHS256, testSecret, expired),
		"no expiry":    sign(t, jwt.SigningMethodHS256, testSecret, noExpiry),
		"wrong issuer": sign(t, jwt.SigningMethodHS256, testSecret, wrongIssuer),
		"wrong secret": sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims()),
		"wrong alg":    sign(t, jwt.SigningMethodHS512, testSecret, validClaims()),
		"no user":      sign(t, jwt.SigningMethodHS256, testSecret, noUser),
		"bad role":     sign(t, jwt.SigningMethodHS256, testSecret, badRole),
		"garbage":      "a.b.c",
	} {
		_, err := a.Verify(raw)
		assert.Error(t, err, name)
	}
}

func TestUserRateKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/orders/place", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", UserRateKey(req))

	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: 5}))
	assert.Equal(t, "user:5", UserRateKey(req))
}

func TestBearerToken(t *testing.T) {
	for header, want := range map[string]string{
		"Bearer abc":  "abc",
		"bearer  abc": "abc",
		"Basic abc":   "",
		"Bearer ":     "",
		"":            "",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", header)
		got, ok := bearerToken(req)
		assert.Equal(t, want, got, header)
		assert.Equal(t, want != "", ok, header)
	}
}
