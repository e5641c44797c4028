package stt

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// DefaultEncodedFormat is assumed when the caller does not declare one;
// the device records opus-in-ogg when it uploads compressed audio.
const DefaultEncodedFormat = "opus"

// demuxers maps caller-declared format tags to ffmpeg demuxer names.
// Unlisted tags let ffmpeg probe the stream itself.
var demuxers = map[string]string{
	"opus": "ogg",
	"ogg":  "ogg",
	"mp3":  "mp3",
	"wav":  "wav",
	"aac":  "aac",
	"m4a":  "mp4",
	"amr":  "amr",
	"flac": "flac",
}

// TranscribeEncoded decodes a compressed audio container to capture-format
// PCM via the transcoder subprocess, then runs the normal pipeline.
func (p *Pipeline) TranscribeEncoded(ctx context.Context, data []byte, format string) (Result, error) {
	if format == "" {
		format = DefaultEncodedFormat
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if demux, ok := demuxers[format]; ok {
		args = append(args, "-f", demux)
	}
	args = append(args, "-i", "pipe:0", "-f", "s16le", "-ar", "16000", "-ac", "1", "pipe:1")

	cmd := exec.CommandContext(ctx, p.ffmpeg, args...)
	cmd.Stdin = bytes.NewReader(data)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		return Result{}, fmt.Errorf("stt: decode %s audio: %w (%s)", format, err, bytes.TrimSpace(errBuf.Bytes()))
	}
	if out.Len() == 0 {
		return Result{}, fmt.Errorf("stt: decode %s audio: transcoder produced no samples", format)
	}
	return p.Transcribe(ctx, out.Bytes())
}
