package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"os/exec"
	"strings"
	"time"
)

const waitDelay = 5 * time.Second

// AudioConverter transcodes synthesized audio into Ogg/Opus with ffmpeg
type AudioConverter struct {
	ffmpegPath string
}

// NewAudioConverter creates a converter running the given ffmpeg binary
func NewAudioConverter(ffmpegPath string) *AudioConverter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &AudioConverter{ffmpegPath: ffmpegPath}
}

// ToOggOpus starts ffmpeg reading in and returns its Ogg/Opus output. Closing the
// returned reader stops ffmpeg.
func (ac *AudioConverter) ToOggOpus(ctx context.Context, in io.Reader, contentType string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, ac.ffmpegPath, ffmpegArgs(contentType)...)
	cmd.Stdin = in
	// Stdin is copied from the HTTP body; don't let a stalled read hold Wait forever
	cmd.WaitDelay = waitDelay

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr := &limitedBuffer{limit: 2048}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		stdout.Close()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &cmdReadCloser{Reader: stdout, cmd: cmd, stderr: stderr}, nil
}

// ffmpegArgs builds the command line for one conversion. The container hint avoids
// probing on formats ffmpeg can misdetect from a pipe.
func ffmpegArgs(contentType string) []string {
	args := []string{"-hide_banner", "-loglevel", "warning"}
	if format := inputFormat(contentType); format != "" {
		args = append(args, "-f", format)
	}
	return append(args,
		"-i", "pipe:0",
		"-vn",
		"-c:a", "libopus",
		"-b:a", "64k",
		"-ar", "48000",
		"-ac", "2",
		"-application", "voip",
		"-frame_duration", "20",
		"-f", "ogg",
		"pipe:1",
	)
}

func inputFormat(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch strings.ToLower(mediaType) {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg", "audio/opus":
		return "ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	}
	return ""
}

// cmdReadCloser wraps ffmpeg's stdout and cleans the process up on Close
type cmdReadCloser struct {
	io.Reader
	cmd    *exec.Cmd
	stderr *limitedBuffer
	eof    bool
}

func (c *cmdReadCloser) Read(p []byte) (int, error) {
	n, err := c.Reader.Read(p)
	if err == io.EOF {
		c.eof = true
	}
	return n, err
}

// Close waits for ffmpeg, killing it first unless its output was read to the end
func (c *cmdReadCloser) Close() error {
	if !c.eof && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	err := c.cmd.Wait()
	if err != nil && c.stderr.Len() > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(c.stderr.String()))
	}
	return err
}

// limitedBuffer keeps the first limit bytes written to it
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
