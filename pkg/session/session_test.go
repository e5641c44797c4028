package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/let5sne/mimiclaw/pkg/stt"
	"github.com/let5sne/mimiclaw/pkg/tts"
)

// fakeSender records outgoing frames in order.
type fakeSender struct {
	mu     sync.Mutex
	types  []string // "type" field for JSON frames, "<audio>" for binary
	jsons  []map[string]any
	binary int
}

func (f *fakeSender) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	json.Unmarshal(data, &m)

	f.mu.Lock()
	defer f.mu.Unlock()
	t, _ := m["type"].(string)
	f.types = append(f.types, t)
	f.jsons = append(f.jsons, m)
	return nil
}

func (f *fakeSender) SendBinary(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, "<audio>")
	f.binary += len(data)
	return nil
}

func (f *fakeSender) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.types...)
}

func (f *fakeSender) lastJSON(frameType string) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.jsons) - 1; i >= 0; i-- {
		if f.jsons[i]["type"] == frameType {
			return f.jsons[i]
		}
	}
	return nil
}

// waitFor polls until cond passes or the deadline hits.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// fakeTranscriber returns a fixed result and records clips.
type fakeTranscriber struct {
	mu     sync.Mutex
	result stt.Result
	err    error
	clips  [][]byte
}

func (f *fakeTranscriber) Transcribe(_ context.Context, pcm []byte) (stt.Result, error) {
	f.mu.Lock()
	f.clips = append(f.clips, pcm)
	f.mu.Unlock()
	if f.err != nil {
		return stt.Result{}, f.err
	}
	return f.result, nil
}

// fakeSynth records the requested text and voice parameters; stall keeps
// the audio stream open until cancellation.
type fakeSynth struct {
	mu      sync.Mutex
	payload string
	stall   bool
	texts   []string
	voices  []string
	rates   []string
}

func (f *fakeSynth) Synthesize(_ context.Context, text, voice, rate string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.voices = append(f.voices, voice)
	f.rates = append(f.rates, rate)
	f.mu.Unlock()
	if f.stall {
		pr, _ := io.Pipe()
		return pr, nil
	}
	return io.NopCloser(strings.NewReader(f.payload)), nil
}

func (f *fakeSynth) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func (f *fakeSynth) voiceAt(i int) (string, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.voices[i], f.rates[i]
}

func newTestSession(send Sender, tr Transcriber, synth tts.Synthesizer) *Session {
	return New(send, Deps{
		Transcriber: tr,
		Synth:       synth,
		Transcoder:  tts.NewTranscoderCommand("/bin/cat"),
	})
}

func control(t *testing.T, s *Session, frameType string) {
	t.Helper()
	s.HandleText([]byte(`{"type":"` + frameType + `"}`))
}

func TestCaptureToTranscription(t *testing.T) {
	send := &fakeSender{}
	tr := &fakeTranscriber{result: stt.Result{Text: "你好", Language: "zh"}}
	s := newTestSession(send, tr, &fakeSynth{})
	defer s.Close()

	control(t, s, "audio_start")
	s.HandleBinary(make([]byte, 640))
	s.HandleBinary(make([]byte, 640))
	control(t, s, "audio_end")

	waitFor(t, func() bool { return send.lastJSON("stt_result") != nil })

	res := send.lastJSON("stt_result")
	if res["text"] != "你好" || res["language"] != "zh" {
		t.Errorf("stt_result = %v", res)
	}
	if len(tr.clips) != 1 || len(tr.clips[0]) != 1280 {
		t.Errorf("clips = %d", len(tr.clips))
	}
}

func TestCaptureTooShort(t *testing.T) {
	send := &fakeSender{}
	s := newTestSession(send, &fakeTranscriber{}, &fakeSynth{})
	defer s.Close()

	control(t, s, "audio_start")
	s.HandleBinary(make([]byte, 100))
	control(t, s, "audio_end")

	waitFor(t, func() bool { return send.lastJSON("error") != nil })
	if msg := send.lastJSON("error")["message"]; msg != "audio too short" {
		t.Errorf("message = %v", msg)
	}
}

func TestBinaryOutsideRecordingDropped(t *testing.T) {
	send := &fakeSender{}
	tr := &fakeTranscriber{result: stt.Result{Text: "x", Language: "zh"}}
	s := newTestSession(send, tr, &fakeSynth{})
	defer s.Close()

	s.HandleBinary(make([]byte, 4096)) // before audio_start
	control(t, s, "audio_start")
	s.HandleBinary(make([]byte, 640))
	control(t, s, "audio_end")

	waitFor(t, func() bool { return len(tr.clips) == 1 })
	if len(tr.clips[0]) != 640 {
		t.Errorf("stray binary frame buffered: clip=%d bytes", len(tr.clips[0]))
	}
}

func TestTranscriptionFailureSendsError(t *testing.T) {
	send := &fakeSender{}
	s := newTestSession(send, &fakeTranscriber{err: errors.New("backend down")}, &fakeSynth{})
	defer s.Close()

	control(t, s, "audio_start")
	s.HandleBinary(make([]byte, 640))
	control(t, s, "audio_end")

	waitFor(t, func() bool { return send.lastJSON("error") != nil })
	if msg := send.lastJSON("error")["message"]; msg != "speech recognition failed" {
		t.Errorf("message = %v", msg)
	}
}

func TestSpeechRequestFullStream(t *testing.T) {
	send := &fakeSender{}
	s := newTestSession(send, &fakeTranscriber{}, &fakeSynth{payload: "pcm-bytes"})
	defer s.Close()

	s.HandleText([]byte(`{"type":"tts_request","text":"今天天气不错"}`))

	waitFor(t, func() bool {
		frames := send.snapshot()
		return len(frames) > 0 && frames[len(frames)-1] == "tts_end"
	})

	frames := send.snapshot()
	if frames[0] != "tts_start" {
		t.Errorf("first frame = %q", frames[0])
	}
	sawAudio := false
	for _, f := range frames[1 : len(frames)-1] {
		if f == "<audio>" {
			sawAudio = true
		}
	}
	if !sawAudio {
		t.Errorf("no audio frames between markers: %v", frames)
	}
}

func TestSpeechRequestSanitizesToAck(t *testing.T) {
	send := &fakeSender{}
	synth := &fakeSynth{payload: "x"}
	s := newTestSession(send, &fakeTranscriber{}, synth)
	defer s.Close()

	s.HandleText([]byte(`{"type":"tts_request","text":"😀🎉"}`))

	waitFor(t, func() bool { return len(synth.requested()) == 1 })
	if got := synth.requested()[0]; got != "好的" {
		t.Errorf("synthesized text = %q, want acknowledgment phrase", got)
	}
}

func TestSpeechRequestUsesConfiguredVoice(t *testing.T) {
	send := &fakeSender{}
	synth := &fakeSynth{payload: "x"}
	s := New(send, Deps{
		Transcriber: &fakeTranscriber{},
		Synth:       synth,
		Transcoder:  tts.NewTranscoderCommand("/bin/cat"),
		Voice:       "zh-CN-YunyangNeural",
		Rate:        "-10%",
	})
	defer s.Close()

	s.HandleText([]byte(`{"type":"tts_request","text":"你好"}`))
	waitFor(t, func() bool { return len(synth.requested()) == 1 })
	if voice, rate := synth.voiceAt(0); voice != "zh-CN-YunyangNeural" || rate != "-10%" {
		t.Errorf("configured defaults not applied: voice=%q rate=%q", voice, rate)
	}

	// An explicit request still overrides the configured defaults.
	s.HandleText([]byte(`{"type":"tts_request","text":"你好","voice":"zh-CN-YunxiNeural","rate":"+5%"}`))
	waitFor(t, func() bool { return len(synth.requested()) == 2 })
	if voice, rate := synth.voiceAt(1); voice != "zh-CN-YunxiNeural" || rate != "+5%" {
		t.Errorf("explicit request overridden: voice=%q rate=%q", voice, rate)
	}
}

func TestSecondSpeechRequestCancelsFirst(t *testing.T) {
	send := &fakeSender{}
	synth := &fakeSynth{stall: true}
	s := newTestSession(send, &fakeTranscriber{}, synth)
	defer s.Close()

	s.HandleText([]byte(`{"type":"tts_request","text":"第一句"}`))
	waitFor(t, func() bool { return len(synth.requested()) == 1 })

	// The second request must cancel and fully await the first stream.
	done := make(chan struct{})
	go func() {
		s.HandleText([]byte(`{"type":"tts_request","text":"第二句"}`))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("second request blocked on the first stream")
	}

	waitFor(t, func() bool { return len(synth.requested()) == 2 })

	// The first stream was cancelled before emitting audio, so no tts_end
	// may appear before the second stream's start marker.
	frames := send.snapshot()
	for i, f := range frames {
		if f == "tts_end" {
			t.Errorf("cancelled stream emitted end marker at %d: %v", i, frames)
			break
		}
		if i >= 1 && f == "tts_start" {
			break
		}
	}
}

func TestInterruptCancelsStream(t *testing.T) {
	send := &fakeSender{}
	synth := &fakeSynth{stall: true}
	s := newTestSession(send, &fakeTranscriber{}, synth)
	defer s.Close()

	s.HandleText([]byte(`{"type":"tts_request","text":"长回复"}`))
	waitFor(t, func() bool { return len(synth.requested()) == 1 })

	control(t, s, "interrupt")

	waitFor(t, func() bool {
		select {
		case <-s.active.Done():
			return true
		default:
			return false
		}
	})
	for _, f := range send.snapshot() {
		if f == "tts_end" {
			t.Error("interrupted stream emitted end marker")
		}
	}
}

func TestInterruptWithoutStreamIsNoop(t *testing.T) {
	send := &fakeSender{}
	s := newTestSession(send, &fakeTranscriber{}, &fakeSynth{})
	defer s.Close()

	control(t, s, "interrupt")
	if frames := send.snapshot(); len(frames) != 0 {
		t.Errorf("frames = %v", frames)
	}
}

func TestMalformedAndUnknownFramesIgnored(t *testing.T) {
	send := &fakeSender{}
	s := newTestSession(send, &fakeTranscriber{}, &fakeSynth{})
	defer s.Close()

	s.HandleText([]byte(`{not json`))
	s.HandleText([]byte(`{"type":"firmware_update"}`))

	if frames := send.snapshot(); len(frames) != 0 {
		t.Errorf("frames = %v", frames)
	}
}

func TestCloseCancelsActiveStream(t *testing.T) {
	send := &fakeSender{}
	synth := &fakeSynth{stall: true}
	s := newTestSession(send, &fakeTranscriber{}, synth)

	s.HandleText([]byte(`{"type":"tts_request","text":"正在说话"}`))
	waitFor(t, func() bool { return len(synth.requested()) == 1 })

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on the active stream")
	}
}

func TestPoolBoundsConcurrency(t *testing.T) {
	p := NewPool(2)

	var mu sync.Mutex
	running, peak := 0, 0
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		p.Go(func() {
			defer wg.Done()
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	wg.Wait()
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}
