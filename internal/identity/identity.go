package identity

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/collinglass/blarg/pkg/log"
)

// Config holds the identity provider configuration.
type Config struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Identity is what the feed core knows about a connection's owner.
type Identity struct {
	ConnectionID string
	Name         string
}

// Provider resolves an identity for an incoming feed connection. Token
// issuance is someone else's job; this side only verifies.
type Provider interface {
	Identify(r *http.Request) Identity
}

// Claims are the token claims this service understands.
type Claims struct {
	jwt.RegisteredClaims
	Name string `json:"name"`
}

type jwtProvider struct {
	secret []byte
}

// NewProvider creates a provider that accepts an HMAC-signed token from the
// `token` query parameter or the Authorization header. Connections without a
// valid token become guests.
func NewProvider(cfg Config) Provider {
	return &jwtProvider{secret: []byte(cfg.JWTSecret)}
}

func (p *jwtProvider) Identify(r *http.Request) Identity {
	// ConnectionIDs are session-scoped, never identity-scoped: the same user
	// connecting twice holds two independent feed connections.
	id := uuid.New().String()

	raw := tokenFrom(r)
	if raw == "" || len(p.secret) == 0 {
		return guest(id)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		l := log.L()
		l.Debug().Err(err).Msg("token rejected, treating connection as guest")
		return guest(id)
	}

	name := claims.Name
	if name == "" {
		name = claims.Subject
	}
	if name == "" {
		return guest(id)
	}

	return Identity{ConnectionID: id, Name: name}
}

func tokenFrom(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func guest(id string) Identity {
	return Identity{ConnectionID: id, Name: "guest-" + id[:8]}
}
