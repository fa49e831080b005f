package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/callpanel-api/pkg/middleware/requestid"
)

func TestClientSynthesizeDecodesAudio(t *testing.T) {
	var received synthesizePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/text:synthesize", r.URL.Path)
		assert.Equal(t, "k1", r.URL.Query().Get("key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_ = json.NewEncoder(w).Encode(map[string]string{"audioContent": base64.StdEncoding.EncodeToString([]byte("mp3-bytes"))})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL, APIKey: "k1", LanguageCode: "pt-BR"})
	result, err := client.Synthesize(context.Background(), Request{Text: "Senha 12, guichê 3", Voice: "pt-BR-Neural2-A", SpeakingRate: 0.9})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3-bytes"), result.Audio)
	assert.Equal(t, "audio/mpeg", result.ContentType)
	assert.Equal(t, "pt-BR-Neural2-A", received.Voice.Name)
	assert.Equal(t, "MP3", received.AudioConfig.AudioEncoding)
	assert.InDelta(t, 0.9, received.AudioConfig.SpeakingRate, 0.0001)
}

func TestClientSynthesizeForwardsRequestID(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(requestid.Header)
		_ = json.NewEncoder(w).Encode(map[string]string{"audioContent": base64.StdEncoding.EncodeToString([]byte("x"))})
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	_, err := client.Synthesize(requestid.NewContext(context.Background(), "req-7"), Request{Text: "Senha 7"})
	require.NoError(t, err)
	assert.Equal(t, "req-7", got)
}

func TestClientSynthesizeProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	_, err := client.Synthesize(context.Background(), Request{Text: "olá"})
	require.Error(t, err)

	var providerErr *ProviderError
	require.True(t, errors.As(err, &providerErr))
	assert.True(t, providerErr.Temporary())
}

func TestClientSynthesizeHonoursContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := NewClient(Options{BaseURL: srv.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Synthesize(ctx, Request{Text: "olá"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClientSynthesizeEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := NewClient(Options{BaseURL: srv.URL}).Synthesize(context.Background(), Request{Text: "olá"})
	assert.ErrorIs(t, err, ErrEmptyAudio)
}
