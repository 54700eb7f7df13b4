package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hammamikhairi/readaloud/internal/domain"
	"github.com/hammamikhairi/readaloud/internal/logger"
)

func quietLog() *logger.Logger { return logger.New(logger.LevelOff, nil) }

// wav builds a minimal RIFF file with an extra chunk before the data.
func wav(pcm []byte) []byte {
	var b []byte
	b = append(b, "RIFF"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(4+8+16+8+3+1+8+len(pcm)))
	b = append(b, "WAVE"...)
	b = append(b, "fmt "...)
	b = binary.LittleEndian.AppendUint32(b, 16)
	b = append(b, make([]byte, 16)...)
	b = append(b, "LIST"...)
	b = binary.LittleEndian.AppendUint32(b, 3)
	b = append(b, 'a', 'b', 'c', 0) // odd size plus pad byte
	b = append(b, "data"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(pcm)))
	return append(b, pcm...)
}

func TestExtractPCM(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	got, err := extractPCM(wav(pcm))
	if err != nil {
		t.Fatalf("extractPCM: %v", err)
	}
	if string(got) != string(pcm) {
		t.Fatalf("got %v, want %v", got, pcm)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"not wav", append([]byte("RIFX0000WAVE"), make([]byte, 40)...)},
		{"no data chunk", append([]byte("RIFF0000WAVEfmt "), make([]byte, 40)...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := extractPCM(tt.data); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestBuildSSML(t *testing.T) {
	u := domain.Utterance{Text: `Fish & "chips" <now>`, Rate: 1.5, Pitch: 0.8, Volume: 0.5}
	ssml := buildSSML(u, "fr-FR-DeniseNeural")

	for _, want := range []string{
		"xml:lang='fr-FR'",
		"name='fr-FR-DeniseNeural'",
		"rate='+50%'",
		"pitch='-20%'",
		"volume='50'",
		"Fish &amp; &#34;chips&#34; &lt;now&gt;",
	} {
		if !strings.Contains(ssml, want) {
			t.Errorf("ssml missing %q:\n%s", want, ssml)
		}
	}
}

func TestAzureSynthesize(t *testing.T) {
	var gotBody, gotKey, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cognitiveservices/v1" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotKey = r.Header.Get("Ocp-Apim-Subscription-Key")
		gotFormat = r.Header.Get("X-Microsoft-OutputFormat")
		w.Write([]byte("audio"))
	}))
	defer srv.Close()

	c := NewAzureClient("secret", "westeurope", quietLog(), WithEndpoint(srv.URL+"/"))
	audio, err := c.Synthesize(context.Background(), domain.Utterance{Text: "Hello", Rate: 1, Pitch: 1, Volume: 1})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "audio" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if gotKey != "secret" || gotFormat != DefaultAudioFormat {
		t.Fatalf("headers: key=%q format=%q", gotKey, gotFormat)
	}
	if !strings.Contains(gotBody, "name='"+DefaultVoice+"'") {
		t.Fatalf("expected default voice in %s", gotBody)
	}
}

func TestAzureErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewAzureClient("k", "r", quietLog(), WithEndpoint(srv.URL))
	if _, err := c.Synthesize(context.Background(), domain.Utterance{Text: "x"}); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
	if _, err := c.Voices(context.Background()); err == nil {
		t.Fatal("expected voices error")
	}
}

func TestAzureVoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"ShortName":"en-US-AvaNeural","Locale":"en-US"},{"ShortName":"de-DE-KatjaNeural","Locale":"de-DE"}]`))
	}))
	defer srv.Close()

	c := NewAzureClient("k", "r", quietLog(), WithEndpoint(srv.URL))
	voices, err := c.Voices(context.Background())
	if err != nil {
		t.Fatalf("Voices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(voices))
	}
	if !voices[0].Default || voices[1].Default || voices[1].Lang != "de-DE" {
		t.Fatalf("unexpected voices: %+v", voices)
	}
}

func TestCacheKeyCoversProsody(t *testing.T) {
	base := domain.Utterance{ID: 1, Text: "Hi", Voice: "v", Rate: 1, Pitch: 1, Volume: 1}
	other := base
	other.ID = 2
	if cacheKey(base) != cacheKey(other) {
		t.Fatal("id must not change the key")
	}
	faster := base
	faster.Rate = 1.5
	if cacheKey(base) == cacheKey(faster) {
		t.Fatal("rate must change the key")
	}
}

func TestCacheDiskLayer(t *testing.T) {
	dir := t.TempDir()
	u := domain.Utterance{Text: "Hello", Voice: "v", Rate: 1}

	writer := NewAudioCache(dir, true, quietLog())
	writer.Put(u, []byte("wav"))

	reader := NewAudioCache(dir, false, quietLog())
	if !reader.Has(u) {
		t.Fatal("expected disk entry to be visible")
	}
	got, ok := reader.Get(u)
	if !ok || string(got) != "wav" {
		t.Fatalf("Get = %q, %v", got, ok)
	}
	if _, ok := reader.Get(domain.Utterance{Text: "missing"}); ok {
		t.Fatal("unexpected hit")
	}
	hits, misses := reader.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("stats = %d/%d", hits, misses)
	}
}

// ── Synth ────────────────────────────────────────────────────────

// fakeTTS returns the text as audio, or an error for texts in fail.
type fakeTTS struct {
	mu    sync.Mutex
	calls int
	fail  map[string]bool
}

func (f *fakeTTS) Synthesize(ctx context.Context, u domain.Utterance) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[u.Text] {
		return nil, errors.New("synthesis-failed")
	}
	return []byte(u.Text), nil
}

func (f *fakeTTS) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeSink plays until released or interrupted.
type fakeSink struct {
	mu      sync.Mutex
	release chan struct{}
	played  []string
	paused  bool
}

func newFakeSink() *fakeSink { return &fakeSink{release: make(chan struct{}, 8)} }

func (f *fakeSink) Play(ctx context.Context, wav []byte) error {
	f.mu.Lock()
	f.played = append(f.played, string(wav))
	f.mu.Unlock()
	select {
	case <-f.release:
		return nil
	case <-ctx.Done():
		return ErrInterrupted
	}
}

func (f *fakeSink) Pause()  { f.mu.Lock(); f.paused = true; f.mu.Unlock() }
func (f *fakeSink) Resume() { f.mu.Lock(); f.paused = false; f.mu.Unlock() }
func (f *fakeSink) Reset()  { f.Resume() }

func next(t *testing.T, ch <-chan domain.SynthEvent) domain.SynthEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event")
		return domain.SynthEvent{}
	}
}

func expect(t *testing.T, ch <-chan domain.SynthEvent, id uint64, typ domain.SynthEventType, errCode string) {
	t.Helper()
	ev := next(t, ch)
	if ev.UtteranceID != id || ev.Type != typ || ev.Err != errCode {
		t.Fatalf("got %+v, want #%d %s %q", ev, id, typ, errCode)
	}
}

func startSynth(t *testing.T, tts *fakeTTS, out *fakeSink) *Synth {
	t.Helper()
	s := NewSynth(tts, out, quietLog())
	s.Start(context.Background())
	t.Cleanup(s.Stop)
	return s
}

func TestSynthLifecycle(t *testing.T) {
	out := newFakeSink()
	s := startSynth(t, &fakeTTS{}, out)

	s.Speak(domain.Utterance{ID: 1, Text: "one"})
	expect(t, s.Events(), 1, domain.SynthStart, "")

	s.Pause()
	expect(t, s.Events(), 1, domain.SynthPause, "")
	if !s.Paused() {
		t.Fatal("expected paused")
	}
	s.Resume()
	expect(t, s.Events(), 1, domain.SynthResume, "")

	out.release <- struct{}{}
	expect(t, s.Events(), 1, domain.SynthEnd, "")
}

func TestSynthCancelReportsInterrupted(t *testing.T) {
	out := newFakeSink()
	s := startSynth(t, &fakeTTS{}, out)

	s.Speak(domain.Utterance{ID: 1, Text: "one"})
	expect(t, s.Events(), 1, domain.SynthStart, "")

	s.Speak(domain.Utterance{ID: 2, Text: "two"})
	s.Cancel()

	// The queued one is canceled synchronously; the playing one reports
	// from the worker.
	expect(t, s.Events(), 2, domain.SynthError, domain.SynthErrCanceled)
	expect(t, s.Events(), 1, domain.SynthError, domain.SynthErrInterrupted)
	if s.Paused() {
		t.Fatal("cancel must clear pause")
	}

	s.Speak(domain.Utterance{ID: 3, Text: "three"})
	expect(t, s.Events(), 3, domain.SynthStart, "")
}

func TestSynthGenuineError(t *testing.T) {
	tts := &fakeTTS{fail: map[string]bool{"bad": true}}
	s := startSynth(t, tts, newFakeSink())

	s.Speak(domain.Utterance{ID: 7, Text: "bad"})
	ev := next(t, s.Events())
	if ev.Type != domain.SynthError || ev.SelfInflicted() {
		t.Fatalf("expected genuine error, got %+v", ev)
	}
}

func TestSynthPrefetchFillsCache(t *testing.T) {
	tts := &fakeTTS{}
	out := newFakeSink()
	s := startSynth(t, tts, out)

	u := domain.Utterance{Text: "later", Rate: 1}
	s.Prefetch(u)
	deadline := time.Now().Add(2 * time.Second)
	for !s.Cache().Has(u) {
		if time.Now().After(deadline) {
			t.Fatal("prefetch never cached")
		}
		time.Sleep(5 * time.Millisecond)
	}

	u.ID = 4
	s.Speak(u)
	expect(t, s.Events(), 4, domain.SynthStart, "")
	if tts.count() != 1 {
		t.Fatalf("expected one synthesis, got %d", tts.count())
	}
}

type fakeLister struct {
	fakeTTS
	voices []domain.Voice
	err    error
}

func (f *fakeLister) Voices(ctx context.Context) ([]domain.Voice, error) { return f.voices, f.err }

func TestSynthLoadVoices(t *testing.T) {
	s := NewSynth(&fakeLister{err: errors.New("offline")}, newFakeSink(), quietLog())
	if err := s.LoadVoices(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if v := s.Voices(); len(v) != 1 || v[0].Name != DefaultVoice {
		t.Fatalf("expected default voice kept, got %+v", v)
	}

	s = NewSynth(&fakeLister{voices: []domain.Voice{{Name: "a"}, {Name: "b"}}}, newFakeSink(), quietLog())
	if err := s.LoadVoices(context.Background()); err != nil {
		t.Fatalf("LoadVoices: %v", err)
	}
	if len(s.Voices()) != 2 {
		t.Fatalf("expected 2 voices, got %+v", s.Voices())
	}
}

// ── Silent ───────────────────────────────────────────────────────

func TestSilentEndsAfterDuration(t *testing.T) {
	s := NewSilent(time.Millisecond, quietLog())
	s.Speak(domain.Utterance{ID: 1, Text: "three little words", Rate: 1})
	expect(t, s.Events(), 1, domain.SynthStart, "")
	expect(t, s.Events(), 1, domain.SynthEnd, "")
}

func TestSilentPauseHoldsAndCancelInterrupts(t *testing.T) {
	s := NewSilent(time.Hour, quietLog())
	s.Speak(domain.Utterance{ID: 1, Text: "long", Rate: 1})
	expect(t, s.Events(), 1, domain.SynthStart, "")

	s.Pause()
	expect(t, s.Events(), 1, domain.SynthPause, "")
	s.Pause() // no second event
	s.Resume()
	expect(t, s.Events(), 1, domain.SynthResume, "")

	s.Speak(domain.Utterance{ID: 2, Text: "next", Rate: 1})
	expect(t, s.Events(), 1, domain.SynthError, domain.SynthErrInterrupted)
	expect(t, s.Events(), 2, domain.SynthStart, "")

	s.Cancel()
	expect(t, s.Events(), 2, domain.SynthError, domain.SynthErrInterrupted)
	s.Cancel() // nothing speaking
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}
