// Package publisher holds simplepublish.Publisher implementations.
package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/simple-publish/pkg/simplepublish"
	"github.com/tendant/simple-publish/pkg/simplepublish/rules"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// Config describes one platform's publishing endpoint.
type Config struct {
	Platform rules.Platform
	// Endpoint is the base URL; posts are created at Endpoint + "/posts".
	Endpoint string

	// AccessToken is sent as a static bearer token.
	AccessToken string

	// When RefreshToken and TokenURL are set, access tokens are obtained and
	// refreshed through the OAuth2 refresh-token grant instead.
	ClientID     string
	ClientSecret string
	TokenURL     string
	RefreshToken string
	Scopes       []string

	// RequestsPerSecond caps outgoing requests; zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	Timeout time.Duration
}

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Platform   rules.Platform
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: provider returned %d", e.Platform, e.StatusCode)
	}
	return fmt.Sprintf("%s: provider returned %d: %s", e.Platform, e.StatusCode, e.Message)
}

// Temporary reports whether retrying later may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPPublisher posts publish requests as JSON to a provider gateway.
type HTTPPublisher struct {
	platform rules.Platform
	endpoint string
	client   *http.Client
}

// rateLimitedTransport waits for the limiter before each request.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// NewHTTP builds a publisher with an OAuth2-authenticated, rate-limited client.
func NewHTTP(ctx context.Context, cfg Config) (*HTTPPublisher, error) {
	if _, err := rules.ParsePlatform(string(cfg.Platform)); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%s: publisher endpoint is required", cfg.Platform)
	}

	var client *http.Client
	switch {
	case cfg.RefreshToken != "" && cfg.TokenURL != "":
		conf := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
			Scopes:       cfg.Scopes,
		}
		client = conf.Client(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
	case cfg.AccessToken != "":
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken}))
	default:
		client = &http.Client{}
	}

	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		client.Transport = &rateLimitedTransport{
			base:    base,
			limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		}
	}
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}

	return &HTTPPublisher{
		platform: cfg.Platform,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   client,
	}, nil
}

type postRequest struct {
	PublicationID string          `json:"publication_id"`
	AccountID     int64           `json:"account_id"`
	AccountName   string          `json:"account_name"`
	Platform      rules.Platform  `json:"platform"`
	ContentType   string          `json:"content_type"`
	MediaPath     string          `json:"media_path"`
	MediaKind     rules.MediaKind `json:"media_kind"`
	Title         string          `json:"title,omitempty"`
	Caption       string          `json:"caption,omitempty"`
	Description   string          `json:"description,omitempty"`
	Settings      map[string]any  `json:"settings"`
}

func (p *HTTPPublisher) PublishPost(ctx context.Context, payload simplepublish.PublishPayload) (*simplepublish.PublishResult, error) {
	body, err := json.Marshal(postRequest{
		PublicationID: payload.PublicationID.String(),
		AccountID:     payload.AccountID,
		AccountName:   payload.AccountName,
		Platform:      payload.Platform,
		ContentType:   string(payload.ContentType),
		MediaPath:     payload.MediaPath,
		MediaKind:     payload.MediaKind,
		Title:         payload.Title,
		Caption:       payload.Caption,
		Description:   payload.Description,
		Settings:      payload.Settings,
	})
	if err != nil {
		return nil, fmt.Errorf("encode publish request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/posts", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Platform: p.platform, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}

	raw := map[string]any{}
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("decode provider response: %w", err)
		}
	}

	result := &simplepublish.PublishResult{
		ProviderPostID: stringField(raw, "id", "post_id"),
		URL:            stringField(raw, "url", "permalink"),
		Raw:            raw,
	}
	if result.ProviderPostID == "" {
		return nil, errors.New("provider response has no post id")
	}
	return result, nil
}

func stringField(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

// errorMessage pulls a message out of {"error": "..."} or {"error": {"message": "..."}} bodies.
func errorMessage(data []byte) string {
	var body struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(truncate(string(data), 200))
	}
	if len(body.Error) > 0 {
		var s string
		if json.Unmarshal(body.Error, &s) == nil {
			return s
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return body.Message
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
