package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
)

// Principal is the authenticated caller of the gateway API, normally the
// telephony bridge holding a configured API key.
type Principal struct {
	APIKey string
}

// Fingerprint is a stable non-reversible identifier for the principal,
// safe for logs and rate-limit keys.
func (p *Principal) Fingerprint() string {
	if p == nil || p.APIKey == "" {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(p.APIKey))
	return "k_" + hex.EncodeToString(sum[:16])
}

type ctxKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(*Principal)
	return p, ok && p != nil
}

func ParseBearer(r *http.Request) (string, bool) {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if authz == "" {
		return "", false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}
