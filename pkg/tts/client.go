package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/noah-isme/callpanel-api/pkg/middleware/requestid"
)

// ErrEmptyAudio is returned when the provider answers without audio content.
var ErrEmptyAudio = errors.New("tts provider returned empty audio")

// Request describes one synthesis call.
type Request struct {
	Text         string
	Voice        string
	SpeakingRate float64
}

// Result carries the synthesized bytes.
type Result struct {
	Audio       []byte
	ContentType string
}

// ProviderError reports a non-2xx answer from the provider.
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts provider responded %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether retrying later may succeed.
func (e *ProviderError) Temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Options configures the client.
type Options struct {
	BaseURL       string
	APIKey        string
	LanguageCode  string
	AudioEncoding string
	Timeout       time.Duration
	HTTPClient    *http.Client
}

// Client talks to a Google Cloud Text-to-Speech compatible endpoint.
type Client struct {
	baseURL       string
	apiKey        string
	languageCode  string
	audioEncoding string
	httpClient    *http.Client
}

// NewClient builds a client with a bounded HTTP timeout.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	encoding := opts.AudioEncoding
	if encoding == "" {
		encoding = "MP3"
	}
	return &Client{
		baseURL:       strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:        opts.APIKey,
		languageCode:  opts.LanguageCode,
		audioEncoding: strings.ToUpper(encoding),
		httpClient:    httpClient,
	}
}

type synthesizeInput struct {
	Text string `json:"text"`
}

type synthesizeVoice struct {
	LanguageCode string `json:"languageCode,omitempty"`
	Name         string `json:"name,omitempty"`
}

type synthesizeAudioConfig struct {
	AudioEncoding string  `json:"audioEncoding"`
	SpeakingRate  float64 `json:"speakingRate,omitempty"`
}

type synthesizePayload struct {
	Input       synthesizeInput       `json:"input"`
	Voice       synthesizeVoice       `json:"voice"`
	AudioConfig synthesizeAudioConfig `json:"audioConfig"`
}

type synthesizeResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize renders text to audio. The context deadline bounds the whole call.
func (c *Client) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, errors.New("text required")
	}
	payload := synthesizePayload{
		Input:       synthesizeInput{Text: req.Text},
		Voice:       synthesizeVoice{LanguageCode: c.languageCode, Name: req.Voice},
		AudioConfig: synthesizeAudioConfig{AudioEncoding: c.audioEncoding, SpeakingRate: req.SpeakingRate},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}

	endpoint := c.baseURL + "/text:synthesize"
	if c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if id := requestid.FromContext(ctx); id != "" {
		httpReq.Header.Set(requestid.Header, id)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call tts provider: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: truncate(string(raw), 256)}
	}

	var decoded synthesizeResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode tts response: %w", err)
	}
	if decoded.AudioContent == "" {
		return nil, ErrEmptyAudio
	}
	audio, err := base64.StdEncoding.DecodeString(decoded.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("decode audio content: %w", err)
	}
	return &Result{Audio: audio, ContentType: c.contentType()}, nil
}

// HealthURL is the endpoint probed by dependency health checks.
func (c *Client) HealthURL() string {
	return c.baseURL + "/voices"
}

func (c *Client) contentType() string {
	switch c.audioEncoding {
	case "OGG_OPUS":
		return "audio/ogg"
	case "LINEAR16":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
