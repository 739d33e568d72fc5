package minnen

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// Kind classifies a media record.
type Kind int

const (
	Image Kind = iota
	Video
)

func (k Kind) String() string {
	if k == Video {
		return "video"
	}
	return "image"
}

// MediaRecord is one manifest entry after normalization. Records missing any
// of filename, URL, or timestamp never make it out of the loader.
type MediaRecord struct {
	Filename string
	URL      string
	Taken    time.Time
	Kind     Kind
}

// Exports have used several key names for the same concept over time; the
// first non-empty match wins.
var (
	dateKeys     = []string{"Date", "Create Time", "Creation Time"}
	filenameKeys = []string{"Filename", "File Name"}
	urlKeys      = []string{"Download Link", "Download URL"}
	mediaTypeKey = "Media Type"
)

// dateLayouts are the accepted ISO-8601 shapes. RFC 3339 covers both a
// trailing Z and an explicit +00:00 offset; the remaining layouts cover
// offset-less exports.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// LoadManifest reads and parses the JSON export at path.
func LoadManifest(path string) ([]MediaRecord, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(bs)
}

// ParseManifest normalizes a raw JSON export into media records. Entries
// missing a required field or carrying an unparseable date are skipped, not
// errors: one malformed entry must never sink the run.
func ParseManifest(data []byte) ([]MediaRecord, error) {
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	records := []MediaRecord{}
	for n, entry := range raw {
		name := firstString(entry, filenameKeys)
		url := firstString(entry, urlKeys)
		ds := firstString(entry, dateKeys)
		if name == "" || url == "" || ds == "" {
			klog.V(1).Infof("skipping entry %d: missing field (filename=%q url=%q date=%q)", n, name, url, ds)
			continue
		}

		taken, err := parseDate(ds)
		if err != nil {
			klog.V(1).Infof("skipping entry %d (%s): %v", n, name, err)
			continue
		}

		kind := Image
		mt, _ := entry[mediaTypeKey].(string)
		if strings.Contains(strings.ToLower(mt), "video") {
			kind = Video
		}

		records = append(records, MediaRecord{
			Filename: name,
			URL:      url,
			Taken:    taken,
			Kind:     kind,
		})
	}

	return records, nil
}

func firstString(entry map[string]any, keys []string) string {
	for _, k := range keys {
		if s, ok := entry[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse date %q", s)
}
