package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/let5sne/mimiclaw/pkg/stt"
)

func dialDevice(t *testing.T, g *Gateway) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(g.wsHandler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame returns the next frame's type discriminator, "<audio>" for
// binary frames.
func readFrame(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if msgType == websocket.BinaryMessage {
		return "<audio>", nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("bad control frame %q: %v", data, err)
	}
	ft, _ := m["type"].(string)
	return ft, m
}

func TestDeviceSession_Transcription(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{result: stt.Result{Text: "打开灯", Language: "zh"}})
	conn := dialDevice(t, g)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_start"}`))
	conn.WriteMessage(websocket.BinaryMessage, make([]byte, 640))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_end"}`))

	ft, frame := readFrame(t, conn)
	if ft != "stt_result" {
		t.Fatalf("frame = %q (%v)", ft, frame)
	}
	if frame["text"] != "打开灯" || frame["language"] != "zh" {
		t.Errorf("result = %v", frame)
	}
}

func TestDeviceSession_Synthesis(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{})
	conn := dialDevice(t, g)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"tts_request","text":"你好呀"}`))

	ft, _ := readFrame(t, conn)
	if ft != "tts_start" {
		t.Fatalf("first frame = %q", ft)
	}

	sawAudio := false
	for {
		ft, _ := readFrame(t, conn)
		if ft == "<audio>" {
			sawAudio = true
			continue
		}
		if ft == "tts_end" {
			break
		}
		t.Fatalf("unexpected frame %q", ft)
	}
	if !sawAudio {
		t.Error("no audio frames delivered")
	}
}

func TestDeviceSession_ShortCaptureError(t *testing.T) {
	g := newTestGateway(t, &fakeRecognizer{})
	conn := dialDevice(t, g)

	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_start"}`))
	conn.WriteMessage(websocket.BinaryMessage, make([]byte, 64))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"audio_end"}`))

	ft, frame := readFrame(t, conn)
	if ft != "error" {
		t.Fatalf("frame = %q", ft)
	}
	if frame["message"] != "audio too short" {
		t.Errorf("message = %v", frame["message"])
	}
}
