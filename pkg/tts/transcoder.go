package tts

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"sync"
)

// defaultTranscoderArgs decode an MP3 stream on stdin to capture-format
// PCM on stdout.
var defaultTranscoderArgs = []string{
	"-hide_banner", "-loglevel", "error",
	"-f", "mp3", "-i", "pipe:0",
	"-f", "s16le", "-ar", "16000", "-ac", "1", "pipe:1",
}

// Transcoder launches the audio-decoding subprocess. The command is
// injectable so tests can substitute a passthrough.
type Transcoder struct {
	path string
	args []string
}

// NewTranscoder builds a Transcoder around ffmpeg; an empty path uses
// whatever is on PATH.
func NewTranscoder(path string) *Transcoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &Transcoder{path: path, args: defaultTranscoderArgs}
}

// NewTranscoderCommand builds a Transcoder around an arbitrary command.
func NewTranscoderCommand(path string, args ...string) *Transcoder {
	return &Transcoder{path: path, args: args}
}

// Start launches one subprocess with stdin/stdout pipes attached.
func (t *Transcoder) Start(ctx context.Context) (*TranscoderProc, error) {
	cmd := exec.CommandContext(ctx, t.path, t.args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, wrapError(err, "transcoder stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, wrapError(err, "transcoder stdout")
	}

	proc := &TranscoderProc{cmd: cmd, Stdin: stdin, Stdout: stdout}
	cmd.Stderr = &proc.stderr

	if err := cmd.Start(); err != nil {
		return nil, wrapError(err, "transcoder start")
	}
	return proc, nil
}

// TranscoderProc is one running transcoder subprocess.
type TranscoderProc struct {
	cmd      *exec.Cmd
	Stdin    io.WriteCloser
	Stdout   io.ReadCloser
	stderr   bytes.Buffer
	stopOnce sync.Once
}

// Stop terminates and reaps the subprocess: pipes are closed, the process
// is killed if still running, and Wait collects it. Idempotent, safe to
// call from multiple goroutines; killing the process also unblocks any
// writer stuck on a full stdin pipe.
func (p *TranscoderProc) Stop() {
	p.stopOnce.Do(func() {
		p.Stdin.Close()
		p.Stdout.Close()
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		p.cmd.Wait()
	})
}
