package minnen

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"k8s.io/klog/v2"
)

// HTTPError is a non-2xx response from the remote store.
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (URL: %s)", e.StatusCode, http.StatusText(e.StatusCode), e.URL)
}

// FetchStatus describes the outcome for a single record.
type FetchStatus int

const (
	// Downloaded means the file was fetched and written this run.
	Downloaded FetchStatus = iota
	// SkippedExists means the destination file was already on disk.
	SkippedExists
	// SkippedFiltered means failed-only mode excluded the record.
	SkippedFiltered
	// Failed means every attempt was exhausted.
	Failed
)

// FetchResult is the typed per-record outcome. Err is set only for Failed
// and holds the last attempt's cause.
type FetchResult struct {
	Record   MediaRecord
	Status   FetchStatus
	Attempts int
	Err      error
}

// FailureRecord is one line of the persisted failure list.
type FailureRecord struct {
	Filename string
	URL      string
}

// Fetcher downloads manifest records into the media directory, one at a
// time. A record's failure never aborts the batch.
type Fetcher struct {
	c      *Config
	client *http.Client
}

// NewFetcher returns a Fetcher using the configured timeout.
func NewFetcher(c *Config) *Fetcher {
	return &Fetcher{
		c:      c,
		client: &http.Client{Timeout: c.Timeout},
	}
}

// DownloadAll fetches every record not already on disk, retrying each up to
// MaxRetries times with a fixed wait between attempts. With failedOnly set,
// only records named in the prior run's failure list are attempted.
//
// At the end of the run the failure list is rewritten wholesale: one
// "filename|url" line per exhausted record, or removed entirely after a
// clean run.
func (f *Fetcher) DownloadAll(ctx context.Context, records []MediaRecord, failedOnly bool) ([]FetchResult, error) {
	if err := os.MkdirAll(f.c.MediaPath(), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", f.c.MediaPath(), err)
	}

	failedMap := map[string]string{}
	if failedOnly {
		prior, err := LoadFailures(f.c.FailedPath())
		if err != nil {
			return nil, fmt.Errorf("load failure list: %w", err)
		}
		for _, p := range prior {
			failedMap[p.Filename] = p.URL
		}
		klog.Infof("failed-only mode: %d candidates from %s", len(failedMap), f.c.FailedPath())
	}

	results := make([]FetchResult, 0, len(records))
	failures := []FailureRecord{}

	for n, rec := range records {
		if failedOnly {
			if _, ok := failedMap[rec.Filename]; !ok {
				results = append(results, FetchResult{Record: rec, Status: SkippedFiltered})
				continue
			}
		}

		dest := filepath.Join(f.c.MediaPath(), rec.Filename)
		if _, err := os.Stat(dest); err == nil {
			klog.V(1).Infof("%s already exists", rec.Filename)
			results = append(results, FetchResult{Record: rec, Status: SkippedExists})
			continue
		}

		res := FetchResult{Record: rec, Status: Failed}
		for attempt := 1; attempt <= f.c.MaxRetries; attempt++ {
			klog.Infof("[%d/%d] %s (attempt %d)", n+1, len(records), rec.Filename, attempt)
			res.Attempts = attempt

			err := f.download(ctx, rec.URL, dest)
			if err == nil {
				res.Status = Downloaded
				res.Err = nil
				break
			}

			klog.Warningf("  retry failed: %v", err)
			res.Err = err
			time.Sleep(f.c.RetryWait)
		}

		if res.Status == Failed {
			failures = append(failures, FailureRecord{Filename: rec.Filename, URL: rec.URL})
		}
		results = append(results, res)
	}

	if len(failures) > 0 {
		if err := WriteFailures(f.c.FailedPath(), failures); err != nil {
			return results, fmt.Errorf("write failure list: %w", err)
		}
		klog.Errorf("%d files failed after %d retries", len(failures), f.c.MaxRetries)
	} else if err := os.Remove(f.c.FailedPath()); err == nil {
		klog.Infof("removed stale %s", f.c.FailedName)
	}

	return results, nil
}

// download fetches url into dest. The body is written to a temp file in the
// same directory and renamed into place, so an interrupted run never leaves
// a truncated destination file.
func (f *Fetcher) download(ctx context.Context, url string, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", f.c.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	tmp := dest + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close: %w", err)
	}

	return os.Rename(tmp, dest)
}

// LoadFailures reads the persisted failure list. A missing file means no
// prior failures.
func LoadFailures(path string) ([]FailureRecord, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var failures []FailureRecord
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" {
			continue
		}
		name, url, ok := strings.Cut(line, "|")
		if !ok {
			klog.Warningf("malformed failure line %q in %s", line, path)
			continue
		}
		failures = append(failures, FailureRecord{Filename: name, URL: url})
	}
	return failures, s.Err()
}

// WriteFailures overwrites the failure list at path.
func WriteFailures(path string, failures []FailureRecord) error {
	var b strings.Builder
	for _, fr := range failures {
		fmt.Fprintf(&b, "%s|%s\n", fr.Filename, fr.URL)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}
