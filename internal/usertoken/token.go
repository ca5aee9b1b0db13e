package usertoken

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"consultly/pkg/domain"
)

const (
	defaultIssuer = "consultly"
	defaultLeeway = 30 * time.Second
)

// Identity is the verified (userID, role) pair that accompanies every core
// entry point. The core never authenticates credentials itself; it only
// validates the token the identity provider signed.
type Identity struct {
	UserID string
	Role   domain.UserRole
}

// Claims carries the role next to the registered JWT claims.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Config configures session-token verification.
type Config struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// Verifier validates session tokens (HS256) and extracts the identity.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier creates a token verifier.
func NewVerifier(cfg Config) (*Verifier, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("token verifier requires a secret")
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = defaultIssuer
	}
	leeway := cfg.Leeway
	if leeway <= 0 {
		leeway = defaultLeeway
	}
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: leeway}, nil
}

// Verify validates the token and returns the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	},
		jwt.WithIssuer(v.issuer),
		jwt.WithLeeway(v.leeway),
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, errors.New("invalid session token")
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Identity{}, errors.New("token subject missing")
	}
	role := domain.UserRole(strings.TrimSpace(claims.Role))
	if role != domain.RoleSeeker && role != domain.RoleExpert {
		return Identity{}, errors.New("token role missing")
	}
	return Identity{UserID: subject, Role: role}, nil
}

// Sign issues a session token for the identity. Exposed for tests and
// operational tooling; production tokens come from the identity provider.
func Sign(secret, issuer, userID string, role domain.UserRole, ttl time.Duration) (string, error) {
	if issuer == "" {
		issuer = defaultIssuer
	}
	now := time.Now().UTC()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
