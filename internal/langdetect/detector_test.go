package langdetect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hammamikhairi/readaloud/internal/logger"
)

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 0,
		"model":   DefaultModel,
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
	return string(b)
}

func TestDetect(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, completion(" FR\n"))
	}))
	defer srv.Close()

	d := New("key", logger.New(logger.LevelOff, nil), WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0), WithModel("tiny"))
	got, err := d.Detect(context.Background(), "Bonjour tout le monde")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if got != "fr" {
		t.Fatalf("Detect = %q, want fr", got)
	}
	if !strings.Contains(gotBody, `"model":"tiny"`) || !strings.Contains(gotBody, "Bonjour tout le monde") {
		t.Fatalf("unexpected request body %s", gotBody)
	}
}

func TestDetectFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"nope"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New("key", logger.New(logger.LevelOff, nil), WithBaseURL(srv.URL), WithMaxRetries(0))
	if _, err := d.Detect(context.Background(), "hello"); err == nil {
		t.Fatal("expected server error")
	}
	if _, err := d.Detect(context.Background(), "   "); err == nil {
		t.Fatal("expected empty text error")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		reply   string
		want    string
		wantErr bool
	}{
		{"en", "en", false},
		{" DE ", "de", false},
		{"pt-BR", "pt", false},
		{"\"es\".", "es", false},
		{"fil", "fil", false},
		{"und", "", true},
		{"", "", true},
		{"The language is English", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			got, err := Normalize(tt.reply)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize(%q) err = %v", tt.reply, err)
			}
			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.reply, got, tt.want)
			}
		})
	}
}

func TestSample(t *testing.T) {
	if got := Sample("  a \n\n b  ", 10); got != "a b" {
		t.Fatalf("Sample collapsed = %q", got)
	}
	long := strings.Repeat("é", 600)
	if got := Sample(long, SampleSize); len([]rune(got)) != SampleSize {
		t.Fatalf("expected %d runes, got %d", SampleSize, len([]rune(got)))
	}
}
