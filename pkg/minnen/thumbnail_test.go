package minnen

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthonynsimon/bild/imgio"
)

// fakeExtractor stands in for ffmpeg. It writes canned bytes to the
// destination, or fails for configured videos.
type fakeExtractor struct {
	calls   []string
	content []byte
	fail    map[string]bool
}

func (f *fakeExtractor) ExtractFrame(_ context.Context, videoPath string, destPath string, _ time.Duration) error {
	f.calls = append(f.calls, filepath.Base(videoPath))
	if f.fail[filepath.Base(videoPath)] {
		return fmt.Errorf("exit status 1 (fake decode error)")
	}
	return os.WriteFile(destPath, f.content, 0o644)
}

func writeMedia(t *testing.T, c *Config, names ...string) {
	t.Helper()
	if err := os.MkdirAll(c.MediaPath(), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(c.MediaPath(), name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEnsureAllKeepsUndecodableFrame(t *testing.T) {
	c := testConfig(t)
	writeMedia(t, c, "clip.mp4", "photo.jpg")

	// not a decodable image, so the raw frame is kept as the poster
	ex := &fakeExtractor{content: []byte("raw frame bytes")}
	n, err := NewThumbnailer(c, ex).EnsureAll(context.Background())
	if err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	if n != 1 {
		t.Errorf("got %d generated, want 1", n)
	}
	if len(ex.calls) != 1 || ex.calls[0] != "clip.mp4" {
		t.Errorf("extractor calls: %v, want only clip.mp4", ex.calls)
	}

	bs, err := os.ReadFile(filepath.Join(c.ThumbPath(), "clip.jpg"))
	if err != nil {
		t.Fatalf("poster missing: %v", err)
	}
	if string(bs) != "raw frame bytes" {
		t.Errorf("poster content mismatch: %q", bs)
	}

	if _, err := os.Stat(filepath.Join(c.ThumbPath(), "photo.jpg")); !os.IsNotExist(err) {
		t.Errorf("image files must not get posters")
	}
}

func TestEnsureAllDownscalesFrame(t *testing.T) {
	c := testConfig(t)
	c.PosterThumb = ThumbOpts{Y: 8, Quality: 85}
	writeMedia(t, c, "clip.mp4")

	// a real JPEG frame, larger than the poster size
	frame := image.NewRGBA(image.Rect(0, 0, 64, 32))
	for x := 0; x < 64; x++ {
		for y := 0; y < 32; y++ {
			frame.Set(x, y, color.RGBA{R: uint8(x * 4), G: uint8(y * 8), A: 255})
		}
	}
	tmp := filepath.Join(t.TempDir(), "frame.jpg")
	if err := imgio.Save(tmp, frame, imgio.JPEGEncoder(90)); err != nil {
		t.Fatal(err)
	}
	bs, err := os.ReadFile(tmp)
	if err != nil {
		t.Fatal(err)
	}

	ex := &fakeExtractor{content: bs}
	if _, err := NewThumbnailer(c, ex).EnsureAll(context.Background()); err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	poster, err := imgio.Open(filepath.Join(c.ThumbPath(), "clip.jpg"))
	if err != nil {
		t.Fatalf("open poster: %v", err)
	}
	if poster.Bounds().Dy() != 8 || poster.Bounds().Dx() != 16 {
		t.Errorf("poster is %dx%d, want 16x8", poster.Bounds().Dx(), poster.Bounds().Dy())
	}
}

func TestEnsureAllIdempotent(t *testing.T) {
	c := testConfig(t)
	writeMedia(t, c, "clip.mp4")
	if err := os.MkdirAll(c.ThumbPath(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(c.ThumbPath(), "clip.jpg"), []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	ex := &fakeExtractor{content: []byte("new")}
	n, err := NewThumbnailer(c, ex).EnsureAll(context.Background())
	if err != nil {
		t.Fatalf("EnsureAll: %v", err)
	}

	if n != 0 {
		t.Errorf("got %d generated, want 0", n)
	}
	if len(ex.calls) != 0 {
		t.Errorf("extractor should not run for existing posters: %v", ex.calls)
	}
}

func TestEnsureAllContinuesAfterFailure(t *testing.T) {
	c := testConfig(t)
	writeMedia(t, c, "bad.mkv", "good.mp4")

	ex := &fakeExtractor{
		content: []byte("frame"),
		fail:    map[string]bool{"bad.mkv": true},
	}
	n, err := NewThumbnailer(c, ex).EnsureAll(context.Background())
	if err != nil {
		t.Fatalf("one broken video must not abort the batch: %v", err)
	}

	if n != 1 {
		t.Errorf("got %d generated, want 1", n)
	}
	if _, err := os.Stat(filepath.Join(c.ThumbPath(), "good.jpg")); err != nil {
		t.Errorf("good.mp4 poster missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(c.ThumbPath(), "bad.jpg")); !os.IsNotExist(err) {
		t.Errorf("bad.mkv should have no poster")
	}
}

func TestFormatOffset(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{time.Second, "00:00:01"},
		{90 * time.Second, "00:01:30"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03"},
	}
	for _, tc := range tests {
		if got := formatOffset(tc.d); got != tc.want {
			t.Errorf("formatOffset(%v) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestPosterName(t *testing.T) {
	if got := posterName("20220502_100000.mp4"); got != "20220502_100000.jpg" {
		t.Errorf("got %q", got)
	}
	if got := posterName("clip.v1.mov"); got != "clip.v1.jpg" {
		t.Errorf("got %q", got)
	}
}
