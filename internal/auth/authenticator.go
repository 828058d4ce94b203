package auth

import (
	"net/http"
	"strings"

	"github.com/vovakirdan/roomwire/internal/errs"
)

// Authenticator admits or rejects a connection from its handshake request.
type Authenticator struct {
	verifier     TokenVerifier
	cookieName   string
	cookieSecret []byte
}

// NewAuthenticator builds an Authenticator reading the named signed cookie first.
func NewAuthenticator(verifier TokenVerifier, cookieName string, cookieSecret []byte) *Authenticator {
	return &Authenticator{
		verifier:     verifier,
		cookieName:   cookieName,
		cookieSecret: cookieSecret,
	}
}

// Authenticate extracts a credential and verifies it.
//
// A present cookie is authoritative: if it fails to unsign, the request is
// rejected without looking at the Authorization header.
func (a *Authenticator) Authenticate(r *http.Request) (Principal, error) {
	token, err := a.extract(r)
	if err != nil {
		return Principal{}, err
	}

	p, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		if e, ok := errs.As(err); ok && e.Kind == errs.KindUnauthorized {
			return Principal{}, err
		}
		return Principal{}, errs.Wrap(err, errs.KindUnauthorized, errs.CodeUnauthorized, "invalid token")
	}
	return p, nil
}

func (a *Authenticator) extract(r *http.Request) (string, error) {
	if c, err := r.Cookie(a.cookieName); err == nil {
		token, unsignErr := UnsignCookieValue(c.Value, a.cookieSecret)
		if unsignErr != nil {
			return "", errs.Wrap(unsignErr, errs.KindUnauthorized, errs.CodeUnauthorized, "invalid session cookie")
		}
		return token, nil
	}

	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errs.Unauthorized("missing credentials")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", errs.Unauthorized("invalid authorization header format")
	}
	return strings.TrimSpace(token), nil
}
