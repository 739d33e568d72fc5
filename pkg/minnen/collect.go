package minnen

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"
)

// exifDate is exiftool's DateTimeOriginal layout.
var exifDate = "2006:01:02 15:04:05"

// stampRe matches the YYYYMMDD_HHMMSS prefix media exports put in filenames.
var stampRe = regexp.MustCompile(`^\d{8}_\d{6}`)

// Item is one gallery entry: a media file annotated with its display
// grouping. Path and Thumb are forward-slash paths relative to the gallery
// page; for images they are equal.
type Item struct {
	Path  string
	Thumb string
	Taken time.Time
	Year  int
	Month time.Month
	Video bool
}

// MonthGroup is the ordered set of items shown in one month block.
type MonthGroup struct {
	Month time.Month
	Items []*Item
}

// YearGroup is one collapsible year section.
type YearGroup struct {
	Year   int
	Months []*MonthGroup
}

// Gallery is the fully grouped index the renderer consumes.
type Gallery struct {
	Years []*YearGroup
	Count int
}

// CollectManifest builds gallery items from loaded records whose backing
// file exists on disk, in manifest order.
func CollectManifest(c *Config, records []MediaRecord) []*Item {
	items := []*Item{}
	for _, rec := range records {
		if _, err := os.Stat(filepath.Join(c.MediaPath(), rec.Filename)); err != nil {
			klog.V(1).Infof("not on disk, skipping: %s", rec.Filename)
			continue
		}
		items = append(items, newItem(c, rec.Filename, rec.Taken, rec.Kind == Video))
	}
	return items
}

// Scan builds gallery items straight from the media directory, without a
// manifest. Timestamps come from the filename pattern; files without one
// are skipped unless ExifFallback is set and exiftool knows better. Items
// are ordered most recent first.
func Scan(c *Config) ([]*Item, error) {
	var et *exiftool.Exiftool
	if c.ExifFallback {
		var err error
		et, err = exiftool.NewExiftool()
		if err != nil {
			klog.Warningf("exiftool unavailable, fallback disabled: %v", err)
		} else {
			defer et.Close()
		}
	}

	items := []*Item{}
	err := godirwalk.Walk(c.MediaPath(), &godirwalk.Options{
		Callback: func(p string, de *godirwalk.Dirent) error {
			if filepath.Base(p)[0] == '.' {
				return godirwalk.SkipThis
			}
			if de.IsDir() {
				return nil
			}

			name := filepath.Base(p)
			taken, ok := timeFromName(name)
			if !ok && et != nil {
				taken, ok = timeFromExif(et, p)
			}
			if !ok {
				klog.Infof("skipping file (no timestamp): %s", name)
				return nil
			}

			items = append(items, newItem(c, name, taken, c.IsVideo(name)))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", c.MediaPath(), err)
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Taken.After(items[j].Taken)
	})

	return items, nil
}

// Group partitions items into year sections and month blocks, both ordered
// descending. Item order within a month is preserved from the input.
func Group(items []*Item) *Gallery {
	byYear := map[int]map[time.Month][]*Item{}
	for _, i := range items {
		if byYear[i.Year] == nil {
			byYear[i.Year] = map[time.Month][]*Item{}
		}
		byYear[i.Year][i.Month] = append(byYear[i.Year][i.Month], i)
	}

	years := make([]int, 0, len(byYear))
	for y := range byYear {
		years = append(years, y)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))

	g := &Gallery{Count: len(items)}
	for _, y := range years {
		yg := &YearGroup{Year: y}
		months := make([]int, 0, len(byYear[y]))
		for m := range byYear[y] {
			months = append(months, int(m))
		}
		sort.Sort(sort.Reverse(sort.IntSlice(months)))
		for _, m := range months {
			yg.Months = append(yg.Months, &MonthGroup{
				Month: time.Month(m),
				Items: byYear[y][time.Month(m)],
			})
		}
		g.Years = append(g.Years, yg)
	}

	return g
}

// newItem resolves display and thumbnail paths for one media file. A video
// whose poster is missing keeps its expected poster path: the gallery still
// renders, the grid cell is just blank.
func newItem(c *Config, name string, taken time.Time, video bool) *Item {
	i := &Item{
		Path:  path.Join(c.MediaDir, name),
		Taken: taken,
		Year:  taken.Year(),
		Month: taken.Month(),
		Video: video,
	}

	if !video {
		i.Thumb = i.Path
		return i
	}

	i.Thumb = path.Join(c.ThumbDir, posterName(name))
	if _, err := os.Stat(filepath.Join(c.ThumbPath(), posterName(name))); err != nil {
		klog.Warningf("poster missing for video: %s", name)
	}
	return i
}

// timeFromName parses the YYYYMMDD_HHMMSS prefix of a filename. Prefixes
// that match the shape but encode an impossible date are treated as
// non-matching.
func timeFromName(name string) (time.Time, bool) {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	m := stampRe.FindString(base)
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102_150405", m)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func timeFromExif(et *exiftool.Exiftool, p string) (time.Time, bool) {
	fis := et.ExtractMetadata(p)
	fi := fis[0]
	if fi.Err != nil {
		klog.V(1).Infof("extract fail for %q: %v", p, fi.Err)
		return time.Time{}, false
	}

	ds, err := fi.GetString("DateTimeOriginal")
	if err != nil {
		klog.V(1).Infof("no DateTimeOriginal for %s: %v", p, err)
		return time.Time{}, false
	}

	t, err := time.Parse(exifDate, ds)
	if err != nil {
		klog.V(1).Infof("parse time %q: %v", ds, err)
		return time.Time{}, false
	}
	return t, true
}
