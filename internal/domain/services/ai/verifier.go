package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"civicpulse/internal/config"
	"civicpulse/pkg/logger"
)

// ErrOracleUnavailable means no verdict could be obtained. It is not a negative verdict.
var ErrOracleUnavailable = errors.New("verification oracle unavailable")

var errUnsupportedMedia = errors.New("provider cannot inspect this media type")

// Verdict is the oracle's answer about a piece of media
type Verdict struct {
	IsReal     bool   `json:"isReal"`
	FakeReason string `json:"fakeReason,omitempty"`
	Issue      string `json:"issue,omitempty"`
	Severity   string `json:"severity,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
}

// Verifier asks a vision model whether media shows a genuine civic issue
type Verifier struct {
	llm             *LLMClient
	logger          *logger.Logger
	timeout         time.Duration
	maxRetries      int
	initialInterval time.Duration
}

// NewVerifier creates a verifier from the oracle config section
func NewVerifier(cfg config.OracleConfig, log *logger.Logger) *Verifier {
	return NewVerifierWithClient(NewLLMClient(LLMConfigFrom(cfg), log), cfg.Timeout, cfg.MaxRetries, log)
}

// NewVerifierWithClient creates a verifier around an existing client
func NewVerifierWithClient(llm *LLMClient, timeout time.Duration, maxRetries int, log *logger.Logger) *Verifier {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Verifier{
		llm:             llm,
		logger:          log.WithComponent("verifier"),
		timeout:         timeout,
		maxRetries:      maxRetries,
		initialInterval: 500 * time.Millisecond,
	}
}

// Verify classifies media. hint is a free-text category hint, usually the
// caption. Any failure to get a verdict is reported as ErrOracleUnavailable.
func (v *Verifier) Verify(ctx context.Context, media []byte, mimeType, hint string) (*Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = detectMimeType(media)
	}

	var (
		verdict *Verdict
		attempt int
	)

	op := func() error {
		attempt++
		result, err := v.verifyOnce(ctx, media, mimeType, hint)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			v.logger.Warn().Err(err).Int("attempt", attempt).Msg("oracle call failed, retrying")
			return err
		}
		verdict = result
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(v.initialInterval),
		backoff.WithMaxInterval(5*time.Second),
	), uint64(v.maxRetries))

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOracleUnavailable, err)
	}
	return verdict, nil
}

func (v *Verifier) verifyOnce(ctx context.Context, media []byte, mimeType, hint string) (*Verdict, error) {
	if v.llm.Provider() == ProviderHTTP {
		return v.verifyDirect(ctx, media, mimeType, hint)
	}

	if !strings.HasPrefix(mimeType, "image/") {
		return nil, fmt.Errorf("%w: %s", errUnsupportedMedia, mimeType)
	}

	answer, err := v.llm.CompleteWithImage(ctx, verificationSystemPrompt, buildVerificationPrompt(hint), media, mimeType)
	if err != nil {
		return nil, err
	}
	return parseVerdict(answer)
}

// verifyDirect calls a verification service that takes base64 media and
// returns the verdict JSON as-is.
func (v *Verifier) verifyDirect(ctx context.Context, media []byte, mimeType, hint string) (*Verdict, error) {
	payload := map[string]string{
		"media":    base64.StdEncoding.EncodeToString(media),
		"mimeType": mimeType,
		"hint":     hint,
	}
	headers := map[string]string{}
	if v.llm.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + v.llm.config.APIKey
	}

	body, err := v.llm.post(ctx, v.llm.config.BaseURL+"/verify", payload, headers)
	if err != nil {
		return nil, err
	}
	return parseVerdict(string(body))
}

const verificationSystemPrompt = `You verify photos and videos submitted by citizens as civic issue reports.

Decide whether the media shows a real, current civic problem in a public place
(pothole, broken streetlight, garbage dump, water leak, sewage overflow, fire,
road accident, fallen tree, traffic hazard). Reject screenshots, memes, stock
photos, edited or AI-generated images, and pictures with no visible issue.

Respond only with JSON:
{
  "isReal": boolean,
  "fakeReason": "why the media was rejected, empty when isReal is true",
  "issue": "one or two words naming the issue, e.g. Pothole, Garbage, Streetlight, Water, Fire, Accident",
  "severity": "Low|Medium|High|Critical",
  "confidence": 0-100
}`

func buildVerificationPrompt(hint string) string {
	var sb strings.Builder
	sb.WriteString("Verify this civic issue report.\n")
	if hint = strings.TrimSpace(hint); hint != "" {
		sb.WriteString(fmt.Sprintf("The citizen described it as: %q\n", hint))
	}
	sb.WriteString("Provide your answer in JSON format.")
	return sb.String()
}

func parseVerdict(text string) (*Verdict, error) {
	raw := extractJSON(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in oracle response")
	}
	var verdict Verdict
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, fmt.Errorf("failed to decode oracle verdict: %w", err)
	}
	verdict.Issue = strings.TrimSpace(verdict.Issue)
	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 100 {
		verdict.Confidence = 100
	}
	return &verdict, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func detectMimeType(data []byte) string {
	// Check magic bytes
	if len(data) < 4 {
		return "application/octet-stream"
	}

	switch {
	case bytes.HasPrefix(data, []byte{0x89, 0x50, 0x4E, 0x47}):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) > 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case len(data) > 12 && bytes.Equal(data[4:8], []byte("ftyp")):
		return "video/mp4"
	}

	return "application/octet-stream"
}

func extractJSON(text string) string {
	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	// Find matching closing brace
	braceCount := 0
	for i := start; i < len(text); i++ {
		if text[i] == '{' {
			braceCount++
		} else if text[i] == '}' {
			braceCount--
			if braceCount == 0 {
				return text[start : i+1]
			}
		}
	}

	return ""
}
