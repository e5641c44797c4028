package tts

import "testing"

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain chinese", "今天天气不错。", "今天天气不错。"},
		{"mixed ascii", "温度是 25 度, OK!", "温度是 25 度, OK!"},
		{"emoji stripped", "你好😀🎉世界", "你好世界"},
		{"markdown stripped", "**加粗** 和 `代码`", "加粗 和 代码"},
		{"fullwidth kept", "她说：“好！”", "她说：“好！”"},
		{"only emoji", "😀🎉✨", ""},
		{"whitespace trimmed", "  你好  ", "你好"},
		{"empty", "", ""},
	}
	for _, tc := range tests {
		if got := Sanitize(tc.in); got != tc.want {
			t.Errorf("%s: Sanitize(%q) = %q, want %q", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestSpeakableOrAck(t *testing.T) {
	if got := SpeakableOrAck("你好"); got != "你好" {
		t.Errorf("got %q", got)
	}
	if got := SpeakableOrAck("😀"); got != ackPhrase {
		t.Errorf("unspeakable text should yield the ack phrase, got %q", got)
	}
}
