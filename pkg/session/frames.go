package session

// Control frame types on the device link. Text frames carry JSON with a
// "type" discriminator; binary frames carry raw PCM.
const (
	frameAudioStart = "audio_start"
	frameAudioEnd   = "audio_end"
	frameTTSRequest = "tts_request"
	frameInterrupt  = "interrupt"

	frameSTTResult = "stt_result"
	frameError     = "error"
)

// controlFrame is the union of every device→server control message.
type controlFrame struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Voice string `json:"voice,omitempty"`
	Rate  string `json:"rate,omitempty"`
}

type sttResultFrame struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Language string `json:"language"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type eventFrame struct {
	Type string `json:"type"`
}
