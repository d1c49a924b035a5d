package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/louisbranch/campplanner/internal/platform/config"
	apperrors "github.com/louisbranch/campplanner/internal/platform/errors"
	"github.com/louisbranch/campplanner/internal/services/camps/domain"
)

// MinSecretLength is the shortest accepted signing secret.
const MinSecretLength = 32

type verifierEnv struct {
	Secret   string `env:"CAMPPLANNER_SESSION_SECRET"`
	Issuer   string `env:"CAMPPLANNER_SESSION_ISSUER" envDefault:"campplanner"`
	Audience string `env:"CAMPPLANNER_SESSION_AUDIENCE" envDefault:"campplanner"`
}

// Config defines how session tokens are verified.
type Config struct {
	Secret   []byte
	Issuer   string
	Audience string
	Now      func() time.Time
}

type claims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"name,omitempty"`
	Admin       bool   `json:"admin,omitempty"`
}

// LoadConfigFromEnv reads verifier configuration. A missing secret is a
// configuration error.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw verifierEnv
	if err := config.ParseEnv(&raw); err != nil {
		return Config{}, err
	}
	secret := strings.TrimSpace(raw.Secret)
	if secret == "" {
		return Config{}, config.Invalidf("CAMPPLANNER_SESSION_SECRET is required")
	}
	if len(secret) < MinSecretLength {
		return Config{}, config.Invalidf("CAMPPLANNER_SESSION_SECRET must be at least %d bytes", MinSecretLength)
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Secret:   []byte(secret),
		Issuer:   strings.TrimSpace(raw.Issuer),
		Audience: strings.TrimSpace(raw.Audience),
		Now:      now,
	}, nil
}

// Verifier validates HS256 session tokens.
type Verifier struct {
	cfg Config
}

// NewVerifier returns a verifier for cfg.
func NewVerifier(cfg Config) (*Verifier, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, errors.New("session secret is too short")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{cfg: cfg}, nil
}

// Verify checks token and returns the user it names. Every failure is a
// not-authenticated error.
func (v *Verifier) Verify(token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, apperrors.New(apperrors.CodeNotAuthenticated, "session token is required")
	}
	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.cfg.Now),
	)
	if err != nil {
		return domain.User{}, mapJWTError(err)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return domain.User{}, apperrors.New(apperrors.CodeNotAuthenticated, "session token has no subject")
	}
	return domain.User{
		ID:          parsed.Subject,
		Email:       parsed.Email,
		DisplayName: parsed.DisplayName,
		Admin:       parsed.Admin,
	}, nil
}

// Issue signs a session token for user. The identity provider normally does
// this.
func (v *Verifier) Issue(user domain.User, ttl time.Duration) (string, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", apperrors.WithMetadata(apperrors.CodeValidation, "user id is required", map[string]string{"Field": "user_id"})
	}
	now := v.cfg.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    v.cfg.Issuer,
			Audience:  jwt.ClaimStrings{v.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Admin:       user.Admin,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(v.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.CodeNotAuthenticated, "session token is expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.CodeNotAuthenticated, "session token signature is invalid", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return apperrors.Wrap(apperrors.CodeNotAuthenticated, "session token was issued for another service", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.Wrap(apperrors.CodeNotAuthenticated, "session token is malformed", err)
	}
	return apperrors.Wrap(apperrors.CodeNotAuthenticated, "session token is invalid", err)
}
