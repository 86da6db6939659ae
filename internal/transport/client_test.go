package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		AccountSID:    "AC123",
		AuthToken:     "secret",
		APIBaseURL:    server.URL,
		LookupBaseURL: server.URL,
		Timeout:       2 * time.Second,
	}, zap.NewNop())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestSend(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+14155550001", r.PostForm.Get("To"))
		assert.Equal(t, "+14155550000", r.PostForm.Get("From"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))
		assert.Equal(t, "https://example.org/cat.jpg", r.PostForm.Get("MediaUrl"))
		assert.Equal(t, "https://example.org/incoming/sms/status", r.PostForm.Get("StatusCallback"))

		writeJSON(w, http.StatusCreated, map[string]string{"sid": "SM1", "status": "queued"})
	})

	info, err := client.Send(context.Background(), SendRequest{
		To:             "+14155550001",
		From:           "+14155550000",
		Body:           "hello",
		MediaURL:       "https://example.org/cat.jpg",
		StatusCallback: "https://example.org/incoming/sms/status",
	})
	require.NoError(t, err)
	assert.Equal(t, MessageInfo{SID: "SM1", Status: "queued"}, info)
}

func TestSend_ErrorClassification(t *testing.T) {
	cases := []struct {
		name        string
		status      int
		code        int
		transient   bool
		blacklisted bool
	}{
		{"blacklisted", http.StatusBadRequest, CodeBlacklisted, false, true},
		{"rate limited", http.StatusTooManyRequests, CodeTooManyRequests, true, false},
		{"not found yet", http.StatusNotFound, CodeNotFound, true, false},
		{"unavailable", http.StatusServiceUnavailable, 0, true, false},
		{"bad request", http.StatusBadRequest, 21211, false, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, map[string]interface{}{"code": tc.code, "message": tc.name, "status": tc.status})
			})

			_, err := client.Send(context.Background(), SendRequest{To: "+1", From: "+2", Body: "x"})
			require.Error(t, err)

			var te *Error
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tc.status, te.Status)
			assert.Equal(t, tc.transient, IsTransient(err))
			assert.Equal(t, tc.blacklisted, IsBlacklisted(err))
		})
	}
}

func TestSend_NetworkErrorIsTransient(t *testing.T) {
	client := NewClient(Config{APIBaseURL: "http://127.0.0.1:1", Timeout: time.Second}, zap.NewNop())
	_, err := client.Send(context.Background(), SendRequest{To: "+1", From: "+2", Body: "x"})
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestLookupStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/2010-04-01/Accounts/AC123/Messages/SM9.json", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]string{"sid": "SM9", "status": "delivered"})
	})

	status, err := client.LookupStatus(context.Background(), "SM9")
	require.NoError(t, err)
	assert.Equal(t, "delivered", status)
}

func TestRedact(t *testing.T) {
	var deleted int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/2010-04-01/Accounts/AC123/Messages/SM1.json":
			require.NoError(t, r.ParseForm())
			_, present := r.PostForm["Body"]
			assert.True(t, present)
			assert.Equal(t, "", r.PostForm.Get("Body"))
			writeJSON(w, http.StatusOK, map[string]string{"sid": "SM1", "status": "delivered"})
		case r.Method == http.MethodGet && r.URL.Path == "/2010-04-01/Accounts/AC123/Messages/SM1/Media.json":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"media_list": []map[string]string{{"sid": "ME1"}, {"sid": "ME2"}},
			})
		case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/2010-04-01/Accounts/AC123/Messages/SM1/Media/"):
			atomic.AddInt32(&deleted, 1)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	ok, err := client.Redact(context.Background(), "SM1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), atomic.LoadInt32(&deleted))
}

func TestRedact_NotRedactable(t *testing.T) {
	for _, code := range []int{CodeNotInTerminalState, CodeNotFound} {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": code, "message": "nope"})
		})

		ok, err := client.Redact(context.Background(), "SM1")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"code": 20003, "message": "auth"})
	})
	_, err := client.Redact(context.Background(), "SM1")
	assert.Error(t, err)
}

func TestNormalizeNumber(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "0000") {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": CodeNotFound, "message": "not found", "status": 404})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"phone_number": "+14155551234"})
	})

	number, err := client.NormalizeNumber(context.Background(), "(415) 555-1234")
	require.NoError(t, err)
	assert.Equal(t, "+14155551234", number)

	_, err = client.NormalizeNumber(context.Background(), "0000")
	assert.ErrorIs(t, err, ErrNumberNotFound)
}

func TestFetchMedia(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	client := NewClient(Config{APIBaseURL: "http://unused.invalid"}, zap.NewNop())
	media, err := client.FetchMedia(context.Background(), server.URL+"/media/ME1")
	require.NoError(t, err)
	assert.Equal(t, "image/png", media.ContentType)
	assert.Equal(t, []byte("png-bytes"), media.Data)
}
