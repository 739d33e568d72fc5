package minnen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/otiai10/copy"
	"k8s.io/klog/v2"
)

// Publish copies the finished bundle (gallery page, media, thumbnails) into
// dest, preserving the relative layout the page links against. Pieces that
// were never produced this run are skipped.
func Publish(c *Config, dest string) error {
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dest, err)
	}

	for _, rel := range []string{c.OutputName, c.MediaDir, c.ThumbDir} {
		src := filepath.Join(c.OutDir, rel)
		if _, err := os.Stat(src); err != nil {
			klog.V(1).Infof("nothing to publish at %s", src)
			continue
		}

		klog.Infof("publishing %s -> %s", src, dest)
		if err := copy.Copy(src, filepath.Join(dest, rel)); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
	}

	return nil
}
