package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/url"
	"strings"
)

// signedPrefix marks a signed cookie value.
const signedPrefix = "s:"

var (
	// ErrUnsignedCookie is returned for cookie values without the signed prefix.
	ErrUnsignedCookie = errors.New("cookie is not signed")
	// ErrBadCookieSignature is returned when the signature does not match.
	ErrBadCookieSignature = errors.New("cookie signature mismatch")
)

// SignCookieValue produces "s:<value>.<sig>" where sig is the unpadded
// standard base64 HMAC-SHA256 of value, compatible with Node cookie-signature.
func SignCookieValue(value string, secret []byte) string {
	return signedPrefix + value + "." + cookieMAC(value, secret)
}

// EncodeCookieValue signs value and escapes it for a Set-Cookie header.
func EncodeCookieValue(value string, secret []byte) string {
	return url.QueryEscape(SignCookieValue(value, secret))
}

// UnsignCookieValue reverses EncodeCookieValue. It accepts both escaped and raw input.
func UnsignCookieValue(raw string, secret []byte) (string, error) {
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", ErrUnsignedCookie
	}
	if !strings.HasPrefix(decoded, signedPrefix) {
		return "", ErrUnsignedCookie
	}
	signed := decoded[len(signedPrefix):]

	dot := strings.LastIndexByte(signed, '.')
	if dot <= 0 || dot == len(signed)-1 {
		return "", ErrUnsignedCookie
	}
	value, sig := signed[:dot], signed[dot+1:]

	if !hmac.Equal([]byte(sig), []byte(cookieMAC(value, secret))) {
		return "", ErrBadCookieSignature
	}
	return value, nil
}

func cookieMAC(value string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(value))
	return base64.RawStdEncoding.EncodeToString(mac.Sum(nil))
}
