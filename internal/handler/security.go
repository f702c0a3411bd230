package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/xenking/skyshop/internal/domain/auth"
	"github.com/xenking/skyshop/pkg/httpmiddleware"
)

// Claims is the bearer token payload. The user id is read from "sub" and,
// for tokens minted by older clients, from "user_id".
type Claims struct {
	UserID int64  `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens issued by the identity
// provider. It never issues tokens.
type Authenticator struct {
	secret []byte
	opts   []jwt.ParserOption
}

// NewAuthenticator returns an Authenticator for tokens signed with secret.
// A non-empty issuer must match the "iss" claim.
func NewAuthenticator(secret []byte, issuer string) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Authenticator{secret: secret, opts: opts}
}

// Verify parses raw and resolves the principal it names.
func (a *Authenticator) Verify(raw string) (auth.Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, a.opts...)
	if err != nil {
		return auth.Principal{}, errors.Wrap(err, "parse token")
	}

	id := claims.UserID
	if claims.Subject != "" {
		id, err = strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return auth.Principal{}, errors.Wrap(err, "parse subject")
		}
	}
	if id <= 0 {
		return auth.Principal{}, errors.New("token has no user id")
	}

	role := auth.Role(claims.Role)
	switch role {
	case "":
		role = auth.RoleCustomer
	case auth.RoleCustomer, auth.RoleAdmin:
	default:
		return auth.Principal{}, errors.Errorf("unknown role %q", claims.Role)
	}
	return auth.Principal{UserID: id, Role: role}, nil
}

// Authenticate rejects requests without a valid bearer token with 401 and
// stores the principal in the context otherwise.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		p, err := a.Verify(raw)
		if err != nil {
			zctx.From(r.Context()).Debug("Token rejected", zap.Error(err))
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := auth.WithPrincipal(r.Context(), p)
		ctx = zctx.With(ctx, zap.Int64("user_id", p.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated non-admin callers with 403. It must run
// after Authenticate.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			respondError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if !p.IsAdmin() {
			respondError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserRateKey keys rate limits by authenticated user, falling back to the
// client address.
func UserRateKey(r *http.Request) string {
	if p, ok := auth.FromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(p.UserID, 10)
	}
	return httpmiddleware.ClientIP(r)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func principal(r *http.Request) auth.Principal {
	p, _ := auth.FromContext(r.Context())
	return p
}
