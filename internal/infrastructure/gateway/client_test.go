package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicpulse/internal/config"
	"civicpulse/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, maxBytes int64) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(config.GatewayConfig{BaseURL: srv.URL + "/", Token: "tok", MaxMediaBytes: maxBytes}, logger.NewNop())
	return c, srv
}

func TestSendText(t *testing.T) {
	var got textMessage
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages/text", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}, 0)

	require.NoError(t, c.SendText(context.Background(), "919999999999", "hello"))
	assert.Equal(t, textMessage{To: "919999999999", Body: "hello"}, got)
}

func TestSendTextErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad recipient", http.StatusBadRequest)
	}, 0)

	err := c.SendText(context.Background(), "x", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad recipient")
}

func TestFetchMedia(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "image/jpeg; charset=binary")
		_, _ = w.Write([]byte("jpegdata"))
	}, 1024)

	data, mime, err := c.FetchMedia(context.Background(), srv.URL+"/media/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpegdata"), data)
	assert.Equal(t, "image/jpeg", mime)
}

func TestFetchMediaTooLarge(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}, 16)

	_, _, err := c.FetchMedia(context.Background(), srv.URL+"/media/big")
	assert.ErrorIs(t, err, ErrMediaTooLarge)
}

func TestFetchMediaNotFound(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, 0)

	_, _, err := c.FetchMedia(context.Background(), srv.URL+"/media/gone")
	assert.Error(t, err)
}

func TestFetchMediaRefusesForeignHosts(t *testing.T) {
	hits := 0
	foreign := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte("stolen"))
	}))
	t.Cleanup(foreign.Close)

	c := NewClient(config.GatewayConfig{BaseURL: "http://gateway.internal", Token: "secret-gateway-token"}, logger.NewNop())

	_, _, err := c.FetchMedia(context.Background(), foreign.URL+"/media/abc")
	assert.ErrorIs(t, err, ErrUntrustedMediaLink)
	assert.Zero(t, hits, "no request leaves for an untrusted host")

	_, _, err = c.FetchMedia(context.Background(), "file:///etc/passwd")
	assert.ErrorIs(t, err, ErrUntrustedMediaLink)
}

func TestFetchMediaFromMediaHostOmitsToken(t *testing.T) {
	var auth string
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	t.Cleanup(cdn.Close)

	c := NewClient(config.GatewayConfig{
		BaseURL:    "http://gateway.internal",
		Token:      "secret-gateway-token",
		MediaHosts: []string{"127.0.0.1"},
	}, logger.NewNop())

	data, mime, err := c.FetchMedia(context.Background(), cdn.URL+"/media/abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, "image/png", mime)
	assert.Empty(t, auth)
}
