package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"strings"
)

// signedPrefix marks a signed session cookie value.
const signedPrefix = "s:"

// Sign returns the cookie value for sid signed with secret:
// "s:" + sid + "." + unpadded base64 HMAC-SHA256(secret, sid).
func Sign(sid, secret string) string {
	return signedPrefix + sid + "." + signature(sid, secret)
}

func signature(value, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(value))
	return strings.TrimRight(base64.StdEncoding.EncodeToString(mac.Sum(nil)), "=")
}

// Unsign verifies a raw cookie value against each secret in turn and returns
// the session id. Cookie values arrive URL-encoded ("s%3A...").
func Unsign(raw string, secrets []string) (string, bool) {
	value, err := url.PathUnescape(raw)
	if err != nil {
		return "", false
	}
	if !strings.HasPrefix(value, signedPrefix) {
		return "", false
	}
	value = strings.TrimPrefix(value, signedPrefix)

	dot := strings.LastIndexByte(value, '.')
	if dot <= 0 || dot == len(value)-1 {
		return "", false
	}
	sid, sig := value[:dot], value[dot+1:]

	for _, secret := range secrets {
		if hmac.Equal([]byte(sig), []byte(signature(sid, secret))) {
			return sid, true
		}
	}
	return "", false
}
