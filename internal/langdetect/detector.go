// Package langdetect classifies text into an ISO 639-1 language code using
// an OpenAI-compatible chat model.
package langdetect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
)

// Compile-time interface check.
var _ domain.LanguageDetector = (*Detector)(nil)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// SampleSize is how many characters of the text are sent for detection.
const SampleSize = 500

const systemPrompt = "You identify the language of the text the user sends. " +
	"Reply with only its two-letter ISO 639-1 code in lowercase, nothing else. " +
	"Reply und if the language cannot be determined."

// Option configures the Detector.
type Option func(*Detector)

// WithModel overrides the default model name.
func WithModel(model string) Option {
	return func(d *Detector) { d.model = model }
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(d *Detector) { d.opts = append(d.opts, option.WithBaseURL(url)) }
}

// WithMaxRetries sets how often failed requests are retried.
func WithMaxRetries(n int) Option {
	return func(d *Detector) { d.opts = append(d.opts, option.WithMaxRetries(n)) }
}

// Detector asks a chat model for the language of a text sample.
type Detector struct {
	client openai.Client
	model  string
	opts   []option.RequestOption
	log    *logger.Logger
}

// New creates a detector authenticated with apiKey.
func New(apiKey string, log *logger.Logger, opts ...Option) *Detector {
	d := &Detector{
		model: DefaultModel,
		log:   log.Named("langdetect"),
	}
	for _, o := range opts {
		o(d)
	}
	d.client = openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, d.opts...)...)
	return d
}

// Detect returns the lowercase language code of text.
func (d *Detector) Detect(ctx context.Context, text string) (string, error) {
	sample := Sample(text, SampleSize)
	if sample == "" {
		return "", errors.New("langdetect: empty text")
	}

	resp, err := d.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(d.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(sample),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(4),
	})
	if err != nil {
		return "", fmt.Errorf("langdetect: request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("langdetect: empty response (no choices)")
	}

	code, err := Normalize(resp.Choices[0].Message.Content)
	if err != nil {
		return "", err
	}
	d.log.Debug("detected %q from %d chars", code, utf8.RuneCountInString(sample))
	return code, nil
}

// Sample returns at most n runes of text with whitespace collapsed.
func Sample(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}

// Normalize turns a model reply into a bare lowercase code. It accepts
// region-qualified forms such as "en-US" and stray punctuation.
func Normalize(reply string) (string, error) {
	code := strings.ToLower(strings.TrimSpace(reply))
	code = strings.TrimFunc(code, func(r rune) bool { return !unicode.IsLetter(r) })
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if code == "" || code == "und" {
		return "", errors.New("langdetect: language could not be determined")
	}
	if len(code) < 2 || len(code) > 3 {
		return "", fmt.Errorf("langdetect: unexpected reply %q", reply)
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return "", fmt.Errorf("langdetect: unexpected reply %q", reply)
		}
	}
	return code, nil
}
