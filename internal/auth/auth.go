// Package auth resolves a bearer token to the authenticated user id.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/glenn-app/glenn-backend/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned for a missing, malformed, expired or
	// otherwise rejected token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUnavailable is returned when the identity service cannot be reached.
	ErrUnavailable = errors.New("identity service unavailable")
)

// Verifier validates a bearer token and returns the caller's user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// New builds the verifier selected by cfg.Mode.
func New(cfg config.AuthConfig) (Verifier, error) {
	switch cfg.Mode {
	case config.AuthModeJWT, "":
		if cfg.JWTSecret == "" {
			return nil, errors.New("auth: jwt secret is required")
		}
		return NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience), nil
	case config.AuthModeRemote:
		if cfg.RemoteURL == "" {
			return nil, errors.New("auth: remote url is required")
		}
		return NewRemoteVerifier(cfg.RemoteURL, cfg.APIKey, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", cfg.Mode)
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// ─── JWT ────────────────────────────────────────────────────

// JWTVerifier checks HMAC-signed access tokens locally. The user id is the
// token subject.
type JWTVerifier struct {
	secret   []byte
	audience string
}

// NewJWTVerifier returns a verifier for tokens signed with secret. An empty
// audience skips the audience check.
func NewJWTVerifier(secret, audience string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), audience: audience}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// ─── Remote ─────────────────────────────────────────────────

// RemoteVerifier asks a GoTrue-compatible identity service who owns the
// token.
type RemoteVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemoteVerifier returns a verifier calling baseURL/auth/v1/user.
func NewRemoteVerifier(baseURL, apiKey string, timeout time.Duration) *RemoteVerifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RemoteVerifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type remoteUser struct {
	ID string `json:"id"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if v.apiKey != "" {
		req.Header.Set("apikey", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var u remoteUser
	if err := json.Unmarshal(body, &u); err != nil {
		return "", fmt.Errorf("%w: decode user: %v", ErrUnavailable, err)
	}
	if u.ID == "" {
		return "", ErrInvalidToken
	}
	return u.ID, nil
}
