package transport

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignature_MatchesProviderScheme(t *testing.T) {
	params := url.Values{
		"To":   {"+14155550000"},
		"Body": {"hi there"},
		"From": {"+14155551111"},
	}
	fullURL := "https://clientcomm.example.org/incoming/sms"

	mac := hmac.New(sha1.New, []byte("token"))
	mac.Write([]byte(fullURL + "Bodyhi there" + "From+14155551111" + "To+14155550000"))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, Signature("token", fullURL, params))
	assert.NoError(t, ValidateSignature("token", fullURL, params, expected))
}

func TestValidateSignature_Rejects(t *testing.T) {
	params := url.Values{"Body": {"hi"}}
	sig := Signature("token", "https://a.example/incoming/sms", params)

	assert.ErrorIs(t, ValidateSignature("token", "https://a.example/incoming/sms", params, ""), ErrMissingSignature)
	assert.ErrorIs(t, ValidateSignature("other", "https://a.example/incoming/sms", params, sig), ErrInvalidSignature)
	assert.ErrorIs(t, ValidateSignature("token", "https://b.example/incoming/sms", params, sig), ErrInvalidSignature)

	params.Set("Body", "tampered")
	assert.ErrorIs(t, ValidateSignature("token", "https://a.example/incoming/sms", params, sig), ErrInvalidSignature)
}

func TestSayResponse(t *testing.T) {
	doc, err := SayResponse("Text us instead & thanks")
	assert.NoError(t, err)
	s := string(doc)
	assert.True(t, strings.HasPrefix(s, "<?xml"))
	assert.Contains(t, s, `<Response><Say voice="woman">Text us instead &amp; thanks</Say></Response>`)
}
