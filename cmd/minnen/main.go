// minnen turns a personal media export into a static HTML gallery.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	_ "image/jpeg"
	_ "image/png"

	"k8s.io/klog/v2"

	"github.com/fsnotify/fsnotify"

	"minnen/pkg/minnen"
)

var (
	manifest     = flag.String("manifest", "memories_history.json", "Location of the JSON export manifest")
	outDir       = flag.String("out", "", "Output directory (defaults to the manifest's directory)")
	title        = flag.String("title", "Memories", "Title of the gallery")
	failedOnly   = flag.Bool("failed-only", false, "only download items from the previous run's failure list")
	scanMode     = flag.Bool("scan", false, "index the media directory directly, without a manifest")
	exifFallback = flag.Bool("exif-fallback", false, "in scan mode, read timestamps via exiftool for files without one in their name")
	publishDir   = flag.String("publish", "", "copy the finished gallery bundle to this directory")
	listen       = flag.Bool("listen", false, "serve the gallery via HTTP")
	addr         = flag.String("addr", "localhost:12800", "host:port to bind to in listen mode")
	watchFlag    = flag.Bool("watch", false, "watch the media directory and regenerate on changes")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	c := minnen.DefaultConfig()
	c.ManifestPath = *manifest
	c.Collection = *title
	c.ExifFallback = *exifFallback
	if *outDir != "" {
		c.OutDir = *outDir
	} else {
		c.OutDir = filepath.Dir(*manifest)
	}

	ctx := context.Background()

	var records []minnen.MediaRecord
	if !*scanMode {
		var err error
		records, err = minnen.LoadManifest(c.ManifestPath)
		if err != nil {
			klog.Exitf("ERROR: %v", err)
		}
		klog.Infof("Loaded %d memories", len(records))

		results, err := minnen.NewFetcher(c).DownloadAll(ctx, records, *failedOnly)
		if err != nil {
			klog.Exitf("download failed: %v", err)
		}

		downloaded, failed := 0, 0
		for _, r := range results {
			switch r.Status {
			case minnen.Downloaded:
				downloaded++
			case minnen.Failed:
				failed++
			}
		}
		klog.Infof("Downloaded %d files (%d failed)", downloaded, failed)
	}

	if _, err := os.Stat(c.MediaPath()); err != nil {
		klog.Exitf("ERROR: media folder %q not found", c.MediaPath())
	}

	n, err := minnen.NewThumbnailer(c, &minnen.FFmpeg{}).EnsureAll(ctx)
	if err != nil {
		klog.Exitf("thumbnails failed: %v", err)
	}
	if n > 0 {
		klog.Infof("Generated %d posters", n)
	}

	g, err := build(c, records, *scanMode)
	if err != nil {
		klog.Exitf("build failed: %v", err)
	}

	klog.Infof("Gallery generated at: %s", c.OutputPath())
	klog.Infof("Media files indexed: %d", g.Count)

	if *publishDir != "" {
		if err := minnen.Publish(c, *publishDir); err != nil {
			klog.Exitf("publish failed: %v", err)
		}
	}

	var wg sync.WaitGroup
	if *watchFlag {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watch(c, records, *scanMode); err != nil {
				klog.Errorf("watch failed: %v", err)
			}
		}()
	}

	if *listen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(c.OutDir, *addr)
		}()
	}

	wg.Wait()
}

// build indexes the media directory, groups it, and writes the gallery page.
func build(c *minnen.Config, records []minnen.MediaRecord, scan bool) (*minnen.Gallery, error) {
	var items []*minnen.Item
	if scan {
		var err error
		items, err = minnen.Scan(c)
		if err != nil {
			return nil, err
		}
	} else {
		items = minnen.CollectManifest(c, records)
	}

	g := minnen.Group(items)
	if err := minnen.WriteGallery(c, g); err != nil {
		return nil, err
	}
	return g, nil
}

// serve serves the gallery directory via HTTP.
func serve(path string, addr string) {
	fs := http.FileServer(http.Dir(path))
	http.Handle("/", fs)

	klog.Infof("Listening on %s...", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		klog.Exitf("listen failed: %v", err)
	}
}

// watch regenerates the gallery page whenever the media directory changes.
// Downloads are not re-run; this is index-and-render only.
func watch(c *minnen.Config, records []minnen.MediaRecord, scan bool) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(c.MediaPath()); err != nil {
		return err
	}

	klog.Infof("watching %s ...", c.MediaPath())
	for {
		select {
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				klog.Infof("event: %s, regenerating", event)
				g, err := build(c, records, scan)
				if err != nil {
					klog.Errorf("build failed: %v", err)
					continue
				}
				klog.Infof("Media files indexed: %d", g.Count)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Errorf("watch error: %v", err)
		}
	}
}
