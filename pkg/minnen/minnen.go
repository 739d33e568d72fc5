// Package minnen converts a personal media export (a JSON manifest of dated
// items with download links) into a locally browsable static HTML gallery.
package minnen

import (
	"path/filepath"
	"strings"
	"time"
)

// Config holds configuration for minnen. It is built once in main and passed
// by pointer into each stage; nothing in this package mutates it.
type Config struct {
	// ManifestPath is the JSON export describing the items to download.
	ManifestPath string

	// OutDir is the directory the gallery page and the failure list are
	// written to. MediaDir and ThumbDir are names relative to it, so the
	// generated HTML can reference both by relative path.
	OutDir   string
	MediaDir string
	ThumbDir string

	// OutputName is the filename of the generated gallery page.
	OutputName string

	// FailedName is the filename of the persisted failure list.
	FailedName string

	// Collection is the page title.
	Collection string

	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryWait  time.Duration

	// PosterOffset is how far into a video the poster frame is taken.
	PosterOffset time.Duration

	// PosterThumb sizes the downscaled poster written for the grid.
	PosterThumb ThumbOpts

	// VideoExts are the lower-cased extensions treated as video.
	VideoExts []string

	// ExifFallback reads DateTimeOriginal via exiftool for scanned files
	// whose names carry no timestamp. Off by default: such files are
	// normally skipped.
	ExifFallback bool
}

// ThumbOpts are thumbnail options. A zero X or Y is computed from the
// source aspect ratio.
type ThumbOpts struct {
	X       int
	Y       int
	Quality int
}

// DefaultConfig returns the configuration used by a plain invocation.
func DefaultConfig() *Config {
	return &Config{
		ManifestPath: "memories_history.json",
		OutDir:       ".",
		MediaDir:     "media",
		ThumbDir:     "thumbnails",
		OutputName:   "memories_gallery.html",
		FailedName:   "failed.txt",
		Collection:   "Memories",
		UserAgent:    "Mozilla/5.0",
		Timeout:      60 * time.Second,
		MaxRetries:   5,
		RetryWait:    1 * time.Second,
		PosterOffset: 1 * time.Second,
		PosterThumb:  ThumbOpts{Y: 360, Quality: 85},
		VideoExts:    []string{".mp4", ".mov", ".avi", ".mkv"},
	}
}

// MediaPath returns the absolute-or-relative on-disk media directory.
func (c *Config) MediaPath() string {
	return filepath.Join(c.OutDir, c.MediaDir)
}

// ThumbPath returns the on-disk thumbnail directory.
func (c *Config) ThumbPath() string {
	return filepath.Join(c.OutDir, c.ThumbDir)
}

// OutputPath returns the on-disk location of the gallery page.
func (c *Config) OutputPath() string {
	return filepath.Join(c.OutDir, c.OutputName)
}

// FailedPath returns the on-disk location of the failure list.
func (c *Config) FailedPath() string {
	return filepath.Join(c.OutDir, c.FailedName)
}

// IsVideo reports whether a filename has one of the configured video
// extensions.
func (c *Config) IsVideo(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range c.VideoExts {
		if ext == e {
			return true
		}
	}
	return false
}
