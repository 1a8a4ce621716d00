package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"civicpulse/internal/config"
	"civicpulse/pkg/logger"
)

var (
	// ErrMediaTooLarge is returned when a media download exceeds the configured cap
	ErrMediaTooLarge = errors.New("media exceeds size limit")
	// ErrUntrustedMediaLink is returned for links outside the gateway and its media hosts
	ErrUntrustedMediaLink = errors.New("media link host is not trusted")
)

// Client talks to the chat messaging gateway
type Client struct {
	baseURL       string
	origin        *url.URL
	mediaHosts    map[string]struct{}
	token         string
	maxMediaBytes int64
	httpClient    *http.Client
	logger        *logger.Logger
}

// NewClient creates a gateway client
func NewClient(cfg config.GatewayConfig, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	maxBytes := cfg.MaxMediaBytes
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	origin, err := url.Parse(baseURL)
	if err != nil || origin.Host == "" {
		origin = nil
	}
	mediaHosts := make(map[string]struct{}, len(cfg.MediaHosts))
	for _, h := range cfg.MediaHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mediaHosts[h] = struct{}{}
		}
	}

	return &Client{
		baseURL:       baseURL,
		origin:        origin,
		mediaHosts:    mediaHosts,
		token:         cfg.Token,
		maxMediaBytes: maxBytes,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        log.WithComponent("gateway"),
	}
}

type textMessage struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendText sends a plain text message to a chat address
func (c *Client) SendText(ctx context.Context, to, body string) error {
	payload, err := json.Marshal(textMessage{To: to, Body: body})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages/text", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchMedia downloads media by link and returns its bytes and content type.
// Only links on the gateway's own origin carry the gateway token.
func (c *Client) FetchMedia(ctx context.Context, link string) ([]byte, string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, "", fmt.Errorf("invalid media link: %w", err)
	}
	sameOrigin, err := c.checkMediaLink(u)
	if err != nil {
		c.logger.Warn().Str("host", u.Host).Msg("refusing media link")
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", err
	}
	if sameOrigin {
		c.authorize(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("media fetch returned %d", resp.StatusCode)
	}
	if resp.ContentLength > c.maxMediaBytes {
		return nil, "", fmt.Errorf("%w: %d bytes", ErrMediaTooLarge, resp.ContentLength)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media: %w", err)
	}
	if int64(len(data)) > c.maxMediaBytes {
		return nil, "", fmt.Errorf("%w: more than %d bytes", ErrMediaTooLarge, c.maxMediaBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}

	c.logger.Debug().Int("bytes", len(data)).Str("mime_type", mimeType).Msg("fetched media")
	return data, mimeType, nil
}

// checkMediaLink reports whether u is on the gateway origin, and refuses
// links that are neither there nor on a configured media host.
func (c *Client) checkMediaLink(u *url.URL) (bool, error) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, fmt.Errorf("%w: scheme %q", ErrUntrustedMediaLink, u.Scheme)
	}
	if c.origin != nil &&
		strings.EqualFold(u.Scheme, c.origin.Scheme) &&
		strings.EqualFold(u.Host, c.origin.Host) {
		return true, nil
	}
	if _, ok := c.mediaHosts[strings.ToLower(u.Hostname())]; ok {
		return false, nil
	}
	return false, fmt.Errorf("%w: %s", ErrUntrustedMediaLink, u.Host)
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
