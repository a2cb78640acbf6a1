// Package auth implements the optional HTTP Basic gate.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/l0n3m4n/exposerver/pkg/config"
)

// Realm is announced in the WWW-Authenticate challenge.
const Realm = "ExpoServer"

// Result is the outcome of a credential check.
type Result int

const (
	// Authenticated means the request may proceed.
	Authenticated Result = iota
	// Unauthenticated means well-formed credentials that do not match.
	Unauthenticated
	// Malformed means a missing or unparsable Authorization header.
	Malformed
)

func (r Result) String() string {
	switch r {
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	case Malformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// Gate checks Authorization headers against the configured credentials.
type Gate struct {
	username     string
	password     string
	passwordHash []byte
}

// NewGate creates a gate from the auth configuration. A configuration
// without a username yields a disabled gate.
func NewGate(cfg config.AuthConfig) *Gate {
	g := &Gate{username: cfg.Username, password: cfg.Password}
	if cfg.PasswordHash != "" {
		g.passwordHash = []byte(cfg.PasswordHash)
	}
	return g
}

// Enabled reports whether credentials are required.
func (g *Gate) Enabled() bool {
	return g.username != ""
}

// Check validates the raw Authorization header value. The returned user is
// the name the client presented, empty when the header was malformed.
func (g *Gate) Check(header string) (Result, string) {
	if !g.Enabled() {
		return Authenticated, ""
	}

	user, pass, ok := ParseBasic(header)
	if !ok {
		return Malformed, ""
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(g.username)) == 1
	var passOK bool
	if g.passwordHash != nil {
		passOK = bcrypt.CompareHashAndPassword(g.passwordHash, []byte(pass)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(pass), []byte(g.password)) == 1
	}

	if userOK && passOK {
		return Authenticated, user
	}
	return Unauthenticated, user
}

// ParseBasic decodes a "Basic <base64(user:pass)>" header, splitting on the
// first colon.
func ParseBasic(v string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(v, prefix) {
		return "", "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(v, prefix)))
	if err != nil {
		return "", "", false
	}
	user, pass, ok = strings.Cut(string(raw), ":")
	if !ok {
		return "", "", false
	}
	return user, pass, true
}

// Challenge writes the 401 response shared by every auth failure.
func Challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="`+Realm+`"`)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte("Unauthorized"))
}

// HashPassword returns a bcrypt hash suitable for auth.password_hash.
func HashPassword(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
