package minnen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"k8s.io/klog/v2"
)

// FrameExtractor pulls a single still frame out of a video. It is a
// replaceable collaborator so the transcoding tool is not a hard-coded call.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, videoPath string, destPath string, offset time.Duration) error
}

// FFmpeg extracts frames by shelling out to ffmpeg.
type FFmpeg struct {
	// Bin overrides the binary name; empty means "ffmpeg" from PATH.
	Bin string
}

// ExtractFrame writes the frame at offset to destPath as a JPEG.
func (f *FFmpeg) ExtractFrame(ctx context.Context, videoPath string, destPath string, offset time.Duration) error {
	bin := f.Bin
	if bin == "" {
		bin = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, bin,
		"-y",
		"-i", videoPath,
		"-ss", formatOffset(offset),
		"-vframes", "1",
		destPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w (%s)", bin, err, lastLine(stderr.String()))
	}
	return nil
}

// formatOffset renders a duration in ffmpeg's HH:MM:SS form.
func formatOffset(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// Thumbnailer generates grid posters for downloaded videos.
type Thumbnailer struct {
	c  *Config
	ex FrameExtractor
}

// NewThumbnailer returns a Thumbnailer using the given extractor.
func NewThumbnailer(c *Config, ex FrameExtractor) *Thumbnailer {
	return &Thumbnailer{c: c, ex: ex}
}

// EnsureAll walks the media directory and generates a poster for every video
// without one. Failures are warnings: a video with no poster still shows up
// in the gallery. Returns the number of posters generated this run.
func (t *Thumbnailer) EnsureAll(ctx context.Context) (int, error) {
	if err := os.MkdirAll(t.c.ThumbPath(), 0o755); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", t.c.ThumbPath(), err)
	}

	entries, err := os.ReadDir(t.c.MediaPath())
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", t.c.MediaPath(), err)
	}

	generated := 0
	for _, e := range entries {
		if e.IsDir() || !t.c.IsVideo(e.Name()) {
			continue
		}

		thumb := filepath.Join(t.c.ThumbPath(), posterName(e.Name()))
		if _, err := os.Stat(thumb); err == nil {
			klog.V(1).Infof("poster exists: %s", filepath.Base(thumb))
			continue
		}

		if err := t.ensure(ctx, filepath.Join(t.c.MediaPath(), e.Name()), thumb); err != nil {
			klog.Warningf("poster for %s failed: %v", e.Name(), err)
			continue
		}
		klog.Infof("generated poster: %s", filepath.Base(thumb))
		generated++
	}

	return generated, nil
}

// ensure extracts a full-size frame to a temp path and downscales it into
// place. If the frame cannot be decoded it is kept at full size instead.
func (t *Thumbnailer) ensure(ctx context.Context, videoPath string, thumb string) error {
	tmp := strings.TrimSuffix(thumb, ".jpg") + ".frame.jpg"
	if err := t.ex.ExtractFrame(ctx, videoPath, tmp, t.c.PosterOffset); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("extract frame: %w", err)
	}

	img, err := imgio.Open(tmp)
	if err != nil {
		klog.V(1).Infof("keeping full-size frame for %s: %v", filepath.Base(videoPath), err)
		return os.Rename(tmp, thumb)
	}
	defer os.Remove(tmp)

	if err := createThumb(img, thumb, t.c.PosterThumb); err != nil {
		return fmt.Errorf("create thumb: %w", err)
	}
	return nil
}

// posterName maps a video filename to its poster filename.
func posterName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}

func createThumb(i image.Image, path string, t ThumbOpts) error {
	x := t.X
	y := t.Y

	if i.Bounds().Dy() == 0 {
		return fmt.Errorf("no Y for %+v", i)
	}

	if i.Bounds().Dx() == 0 {
		return fmt.Errorf("no X for %+v", i)
	}

	if t.X == 0 {
		scale := float64(i.Bounds().Dy()) / float64(t.Y)
		x = int(float64(i.Bounds().Dx()) / scale)
	}

	if t.Y == 0 {
		scale := float64(i.Bounds().Dx()) / float64(t.X)
		y = int(float64(i.Bounds().Dy()) / scale)
	}

	rimg := transform.Resize(i, x, y, transform.Lanczos)
	if err := imgio.Save(path, rimg, imgio.JPEGEncoder(t.Quality)); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
