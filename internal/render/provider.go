package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os/exec"
	"sync"
	"time"

	"thumbnailer/internal/logging"
	"thumbnailer/internal/mediatypes"
)

// VideoProvider grabs a frame from video files with ffmpeg.
type VideoProvider struct {
	// ExtraMimes are non video/* mimes that ffmpeg should still handle.
	ExtraMimes []string
	// Timeout bounds each ffmpeg run.
	Timeout time.Duration

	lookOnce   sync.Once
	ffmpegPath string
}

// NewVideoProvider returns a VideoProvider.
func NewVideoProvider(extraMimes []string, timeout time.Duration) *VideoProvider {
	return &VideoProvider{ExtraMimes: extraMimes, Timeout: timeout}
}

func (p *VideoProvider) ffmpeg() string {
	p.lookOnce.Do(func() {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			logging.Debug("ffmpeg not found, video provider disabled: %v", err)
			return
		}
		logging.Debug("Using ffmpeg: %s", path)
		p.ffmpegPath = path
	})
	return p.ffmpegPath
}

// Supports reports whether mime is a video and ffmpeg is installed.
func (p *VideoProvider) Supports(mime string) bool {
	return mediatypes.IsVideo(mime, p.ExtraMimes) && p.ffmpeg() != ""
}

// Thumbnail extracts the frame at one second, or the first frame for clips
// shorter than that, and scales it to fit the bound.
func (p *VideoProvider) Thumbnail(ctx context.Context, path string, bound int) (image.Image, error) {
	ffmpeg := p.ffmpeg()
	if ffmpeg == "" {
		return nil, fmt.Errorf("ffmpeg not found")
	}

	logging.Debug("Extracting video frame: %s", path)

	img, err := p.frame(ctx, ffmpeg, path, "00:00:01")
	if err != nil {
		logging.Debug("FFmpeg seek attempt failed for %s: %v", path, err)
		img, err = p.frame(ctx, ffmpeg, path, "")
		if err != nil {
			return nil, err
		}
	}

	return shrinkToFit(img, bound), nil
}

func (p *VideoProvider) frame(ctx context.Context, ffmpeg, path, seek string) (image.Image, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := []string{"-v", "error"}
	if seek != "" {
		args = append(args, "-ss", seek)
	}
	args = append(args, "-i", path, "-vframes", "1", "-f", "image2pipe", "-vcodec", "png", "-")

	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}

	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", path)
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}
