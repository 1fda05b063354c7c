// Package source produces the URL records fed into the pipeline.
package source

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/JakeFAU/article-harvester/internal/harvest"
)

// ErrEmptyURL is returned for a record with no URL.
var ErrEmptyURL = errors.New("empty url")

const maxLineBytes = 1 << 20

// Record is one URL plus free-form metadata supplied by an upstream scraper.
type Record struct {
	URL      string            `json:"url"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Item converts the record into a pipeline item.
func (r Record) Item() harvest.Item {
	return harvest.Item{URL: r.URL, Metadata: harvest.CloneMetadata(r.Metadata)}
}

// Validate checks that the record carries an absolute http(s) URL.
func (r Record) Validate() error {
	if strings.TrimSpace(r.URL) == "" {
		return ErrEmptyURL
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("parse url %q: %w", r.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url %q: scheme must be http or https", r.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("url %q: missing host", r.URL)
	}
	return nil
}

// ReadRecords reads one record per line. A line is either a bare URL or a
// JSON object with "url" and optional "metadata". Blank lines and lines
// starting with '#' are skipped.
func ReadRecords(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []Record
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rec, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return records, nil
}

func parseLine(line string) (Record, error) {
	var rec Record
	if strings.HasPrefix(line, "{") {
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return Record{}, fmt.Errorf("decode record: %w", err)
		}
		rec.URL = strings.TrimSpace(rec.URL)
	} else {
		rec.URL = line
	}
	if err := rec.Validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// FromURLs builds records from bare URLs, validating each.
func FromURLs(urls []string) ([]Record, error) {
	records := make([]Record, 0, len(urls))
	for _, raw := range urls {
		rec := Record{URL: strings.TrimSpace(raw)}
		if err := rec.Validate(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
