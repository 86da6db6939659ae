package transport

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/url"
	"sort"
)

// SignatureHeader carries the provider's request signature
const SignatureHeader = "X-Twilio-Signature"

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Signature computes the provider signature for a webhook: HMAC-SHA1 over
// the full URL followed by each POST parameter name and value, sorted by name.
func Signature(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	mac := hmac.New(sha1.New, []byte(authToken))
	_, _ = mac.Write([]byte(fullURL))
	for _, k := range keys {
		for _, v := range params[k] {
			_, _ = mac.Write([]byte(k + v))
		}
	}
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks a webhook signature against the shared secret
func ValidateSignature(authToken, fullURL string, params url.Values, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	expected := Signature(authToken, fullURL, params)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
