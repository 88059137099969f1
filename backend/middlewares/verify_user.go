package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/ravigill3969/examly/backend/utils"
	"github.com/rs/zerolog"
)

type contextKey string

const UserContextKey contextKey = "user"

const defaultLeeway = 30 * time.Second

var ErrUnauthenticated = errors.New("not authenticated")

// AuthUser is the identity taken from a verified access token.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

func WithUser(ctx context.Context, u AuthUser) context.Context {
	return context.WithValue(ctx, UserContextKey, u)
}

func UserFromContext(ctx context.Context) (AuthUser, bool) {
	u, ok := ctx.Value(UserContextKey).(AuthUser)
	return u, ok && u.ID != ""
}

type supabaseClaims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates Supabase access tokens, either with the project's
// shared HS256 secret or against a JWKS endpoint.
type Verifier struct {
	parser  *jwt.Parser
	keyfunc jwt.Keyfunc
}

func parserOptions(methods []string, issuer, audience string) []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return opts
}

func NewHMACVerifier(secret []byte, issuer, audience string) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("jwt secret must be set")
	}
	return &Verifier{
		parser: jwt.NewParser(parserOptions([]string{jwt.SigningMethodHS256.Name}, issuer, audience)...),
		keyfunc: func(*jwt.Token) (any, error) {
			return secret, nil
		},
	}, nil
}

func NewJWKSVerifier(jwksURL, issuer, audience string) (*Verifier, error) {
	if jwksURL == "" {
		return nil, errors.New("jwks url must be set")
	}
	keyProvider, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
	}

	methods := []string{
		jwt.SigningMethodRS256.Name,
		jwt.SigningMethodES256.Name,
	}
	return &Verifier{
		parser:  jwt.NewParser(parserOptions(methods, issuer, audience)...),
		keyfunc: keyProvider.Keyfunc,
	}, nil
}

func (v *Verifier) Verify(tokenString string) (AuthUser, error) {
	claims := &supabaseClaims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keyfunc)
	if err != nil {
		return AuthUser{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !token.Valid {
		return AuthUser{}, fmt.Errorf("%w: invalid token", ErrUnauthenticated)
	}
	if claims.Subject == "" {
		return AuthUser{}, fmt.Errorf("%w: token missing sub", ErrUnauthenticated)
	}
	return AuthUser{ID: claims.Subject, Email: claims.Email}, nil
}

// Authenticator puts the verified user on the request context. With
// DevUser set, every request runs as that user and no token is read.
type Authenticator struct {
	Verifier *Verifier
	DevUser  *AuthUser
}

func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := zerolog.Ctx(r.Context())

		if a.DevUser != nil {
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), *a.DevUser)))
			return
		}

		if a.Verifier == nil {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: auth verifier not configured")
			return
		}

		token, ok := extractBearerToken(r.Header.Get("Authorization"))
		if !ok {
			logger.Debug().Str("path", r.URL.Path).Msg("auth failure: missing or malformed Authorization header")
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: Authentication token required")
			return
		}

		user, err := a.Verifier.Verify(token)
		if err != nil {
			logger.Info().Err(err).Str("path", r.URL.Path).Msg("auth failure: token invalid")
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized: invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func extractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
