package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithAudioFormat sets the audio output format.
func WithAudioFormat(format string) AzureOption {
	return func(c *AzureClient) {
		c.format = format
	}
}

// WithHTTPTimeout sets the HTTP client timeout for TTS requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) {
		c.httpClient.Timeout = d
	}
}

// WithEndpoint overrides the base URL (normally derived from the region).
func WithEndpoint(base string) AzureOption {
	return func(c *AzureClient) {
		c.endpoint = strings.TrimRight(base, "/")
	}
}

// AzureClient handles text-to-speech synthesis via Azure Cognitive Services.
type AzureClient struct {
	subscriptionKey string
	endpoint        string
	format          string
	httpClient      *http.Client
	log             *logger.Logger
}

// NewAzureClient creates an Azure TTS client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		subscriptionKey: key,
		endpoint:        fmt.Sprintf("https://%s.tts.speech.microsoft.com", region),
		format:          DefaultAudioFormat,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize converts an utterance to speech audio data (WAV bytes).
func (c *AzureClient) Synthesize(ctx context.Context, u domain.Utterance) ([]byte, error) {
	voice := u.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	ssml := buildSSML(u, voice)
	c.log.Debug("azure tts: synthesizing %d chars with voice %s", len(u.Text), voice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/cognitiveservices/v1", strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", c.format)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure tts error %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}

	c.log.Debug("azure tts: got %d bytes of audio", len(audioData))
	return audioData, nil
}

// azureVoice is one entry of the voices/list response.
type azureVoice struct {
	ShortName string `json:"ShortName"`
	Locale    string `json:"Locale"`
}

// Voices fetches the voices available in the region. The package default
// voice is flagged as the default.
func (c *AzureClient) Voices(ctx context.Context) ([]domain.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/cognitiveservices/voices/list", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure voices error %d: %s", resp.StatusCode, string(body))
	}

	var list []azureVoice
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding voices: %w", err)
	}

	voices := make([]domain.Voice, 0, len(list))
	for _, v := range list {
		voices = append(voices, domain.Voice{
			Name:    v.ShortName,
			Lang:    v.Locale,
			Default: v.ShortName == DefaultVoice,
		})
	}
	c.log.Debug("azure tts: %d voices available", len(voices))
	return voices, nil
}

func (c *AzureClient) authorize(req *http.Request) {
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("User-Agent", "ReadAloud/1.0")
}

// buildSSML wraps the text in a voice and prosody element. Rate and pitch
// are relative to the voice's normal delivery (1.0 = unchanged); volume is
// absolute on a 0-100 scale.
func buildSSML(u domain.Utterance, voice string) string {
	lang := "en-US"
	if parts := strings.SplitN(voice, "-", 3); len(parts) == 3 {
		lang = parts[0] + "-" + parts[1]
	}

	var text bytes.Buffer
	xml.EscapeText(&text, []byte(u.Text))

	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'>`+
			`<prosody rate='%s' pitch='%s' volume='%.0f'>%s</prosody></voice></speak>`,
		lang, lang, voice,
		relative(u.Rate), relative(u.Pitch), u.Volume*100,
		text.String(),
	)
}

// relative renders a multiplier as a signed percentage change.
func relative(f float64) string {
	return fmt.Sprintf("%+.0f%%", (f-1)*100)
}
