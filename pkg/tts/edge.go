package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	edgeEndpoint = "wss://speech.platform.bing.com/consumer/speech/synthesize/" +
		"readaloud/edge/v1?TrustedClientToken=6A5AA1D4EAFF4E9FB37E23D68491D6F4"
	edgeOrigin    = "chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"
	edgeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36 Edg/122.0.0.0"
	edgeOutputFormat = "audio-24khz-48kbitrate-mono-mp3"
)

// EdgeClient is a Synthesizer speaking the Edge read-aloud WebSocket
// protocol. Each Synthesize call opens one connection, sends the audio
// config and SSML, and streams the binary audio payloads back.
type EdgeClient struct {
	endpoint string
	dialer   *websocket.Dialer
}

// EdgeOption configures an EdgeClient.
type EdgeOption func(*EdgeClient)

// WithEndpoint overrides the service URL, mainly for tests.
func WithEndpoint(url string) EdgeOption {
	return func(c *EdgeClient) { c.endpoint = url }
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) EdgeOption {
	return func(c *EdgeClient) { c.dialer = d }
}

// NewEdgeClient builds an EdgeClient with the public service endpoint.
func NewEdgeClient(opts ...EdgeOption) *EdgeClient {
	c := &EdgeClient{
		endpoint: edgeEndpoint,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Synthesize opens a session and returns a reader delivering MP3 audio as
// the service produces it. The reader yields io.EOF at turn end; Close
// tears down the connection early.
func (c *EdgeClient) Synthesize(ctx context.Context, text, voice, rate string) (io.ReadCloser, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	if rate == "" {
		rate = DefaultRate
	}

	header := http.Header{}
	header.Set("Origin", edgeOrigin)
	header.Set("User-Agent", edgeUserAgent)
	header.Set("Pragma", "no-cache")
	header.Set("Cache-Control", "no-cache")

	connectID := strings.ReplaceAll(uuid.NewString(), "-", "")
	endpoint := c.endpoint
	if strings.Contains(endpoint, "?") {
		endpoint += "&ConnectionId=" + connectID
	}

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		if resp != nil {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("tts: edge connect failed: %w, status=%s, body=%s",
				err, resp.Status, bytes.TrimSpace(body))
		}
		return nil, wrapError(err, "edge connect failed")
	}

	if err := c.sendConfig(conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := c.sendSSML(conn, connectID, text, voice, rate); err != nil {
		conn.Close()
		return nil, err
	}

	pr, pw := io.Pipe()
	go receiveAudio(conn, pw)

	return &edgeStream{r: pr, conn: conn}, nil
}

func (c *EdgeClient) sendConfig(conn *websocket.Conn) error {
	msg := "X-Timestamp:" + edgeTimestamp() + "\r\n" +
		"Content-Type:application/json; charset=utf-8\r\n" +
		"Path:speech.config\r\n\r\n" +
		`{"context":{"synthesis":{"audio":{"metadataoptions":` +
		`{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},` +
		`"outputFormat":"` + edgeOutputFormat + `"}}}}`
	return wrapError(conn.WriteMessage(websocket.TextMessage, []byte(msg)), "send config")
}

func (c *EdgeClient) sendSSML(conn *websocket.Conn, requestID, text, voice, rate string) error {
	ssml := fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='zh-CN'>`+
			`<voice name='%s'><prosody pitch='+0Hz' rate='%s' volume='+0%%'>%s</prosody></voice></speak>`,
		voice, rate, html.EscapeString(text))

	msg := "X-RequestId:" + requestID + "\r\n" +
		"Content-Type:application/ssml+xml\r\n" +
		"X-Timestamp:" + edgeTimestamp() + "\r\n" +
		"Path:ssml\r\n\r\n" + ssml
	return wrapError(conn.WriteMessage(websocket.TextMessage, []byte(msg)), "send ssml")
}

// receiveAudio pumps service messages into the pipe until turn end or
// failure. Binary frames carry a big-endian header-length prefix, the
// header text, then the audio payload; the "Path:turn.end" text frame
// closes the stream cleanly.
func receiveAudio(conn *websocket.Conn, pw *io.PipeWriter) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			pw.CloseWithError(wrapError(err, "edge read"))
			return
		}

		switch msgType {
		case websocket.TextMessage:
			if strings.Contains(string(data), "Path:turn.end") {
				pw.Close()
				return
			}

		case websocket.BinaryMessage:
			if len(data) < 2 {
				continue
			}
			headerLen := int(binary.BigEndian.Uint16(data[:2]))
			if headerLen+2 > len(data) {
				continue
			}
			header := data[2 : 2+headerLen]
			if !bytes.Contains(header, []byte("Path:audio")) {
				continue
			}
			if _, err := pw.Write(data[2+headerLen:]); err != nil {
				// Reader gone; stop pumping.
				return
			}
		}
	}
}

func edgeTimestamp() string {
	return time.Now().UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

// edgeStream ties the pipe reader and the connection together so Close
// releases both.
type edgeStream struct {
	r    *io.PipeReader
	conn *websocket.Conn
}

func (s *edgeStream) Read(p []byte) (int, error) { return s.r.Read(p) }

func (s *edgeStream) Close() error {
	s.r.Close()
	return s.conn.Close()
}
