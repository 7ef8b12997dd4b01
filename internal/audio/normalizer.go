// Package audio prepares uploaded recordings for transcription.
package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Normalizer converts an uploaded recording into the format the speech
// provider ingests best.
type Normalizer interface {
	// Normalize returns the converted audio and its content type.
	Normalize(ctx context.Context, src io.Reader) (io.ReadCloser, string, error)
}

// FFmpeg normalizes audio to 16kHz mono FLAC via the ffmpeg binary.
type FFmpeg struct {
	Binary string
}

// NewFFmpeg constructs an FFmpeg normalizer.
func NewFFmpeg() *FFmpeg {
	return &FFmpeg{Binary: "ffmpeg"}
}

// Normalize runs ffmpeg over stdin/stdout.
func (f *FFmpeg) Normalize(ctx context.Context, src io.Reader) (io.ReadCloser, string, error) {
	binary := f.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary,
		"-hide_banner", "-loglevel", "error",
		"-i", "pipe:0",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "flac",
		"-f", "flac",
		"pipe:1",
	)
	cmd.Stdin = src
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return nil, "", fmt.Errorf("ffmpeg: %s", detail)
	}
	return io.NopCloser(bytes.NewReader(out)), "audio/flac", nil
}

// Passthrough skips conversion and hands the recording through unchanged.
// Used when ffmpeg is unavailable or the provider accepts the source format.
type Passthrough struct{}

// Normalize returns src as-is.
func (Passthrough) Normalize(ctx context.Context, src io.Reader) (io.ReadCloser, string, error) {
	_ = ctx
	return io.NopCloser(src), "application/octet-stream", nil
}
