package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// BootstrapConfig configures the admin/system bootstrap token issuer.
// Bootstrap tokens are never the client-facing opaque session tokens
// described in spec.md §4.1 — they authenticate operators and internal
// services for the small set of administrative operations the transport
// exposes outside the normal session lifecycle.
type BootstrapConfig struct {
	SecretKey     string
	Issuer        string
	TokenDuration time.Duration
}

// BootstrapClaims identifies the operator or service a bootstrap token was
// issued to.
type BootstrapClaims struct {
	OperatorID string `json:"operator_id"`
	jwt.RegisteredClaims
}

// BootstrapIssuer mints and verifies HS256 bootstrap tokens, grounded on the
// teacher's internal/auth/jwt.go JWTManager signing path, sized down to the
// fields an operator token actually needs.
type BootstrapIssuer struct {
	cfg BootstrapConfig
}

// NewBootstrapIssuer constructs an issuer. A zero TokenDuration defaults to
// one hour; a zero Issuer defaults to "world-realtime-core".
func NewBootstrapIssuer(cfg BootstrapConfig) *BootstrapIssuer {
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "world-realtime-core"
	}
	return &BootstrapIssuer{cfg: cfg}
}

// IssueToken mints a bootstrap token for operatorID.
func (b *BootstrapIssuer) IssueToken(operatorID string) (string, error) {
	now := time.Now()
	claims := &BootstrapClaims{
		OperatorID: operatorID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    b.cfg.Issuer,
			Subject:   operatorID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(b.cfg.TokenDuration)),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(b.cfg.SecretKey))
}

// ValidateToken parses and verifies a bootstrap token, rejecting anything
// not signed with HS256 to rule out algorithm-substitution.
func (b *BootstrapIssuer) ValidateToken(tokenString string) (*BootstrapClaims, error) {
	claims := &BootstrapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(b.cfg.SecretKey), nil
	}, jwt.WithIssuer(b.cfg.Issuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("bootstrap token invalid")
	}
	return claims, nil
}
