// Package catalog loads the medication names offered for quick add from a
// local file or an http(s) URL. Two layouts are read: one name per line, or
// the tab separated BDPM specialties file (CIS_bdpm.txt) where the name is
// the second column. Files in ISO-8859-1 are decoded to UTF-8.
package catalog

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/giygas/medreport/entities"
)

const (
	downloadTimeout = 5 * time.Minute
	maxSourceSize   = 64 << 20
	maxLineSize     = 1 << 20
)

// Stats counts what a load kept and skipped
type Stats struct {
	Lines      int
	Names      int
	Empty      int
	Duplicates int
	Malformed  int
}

// Load reads the catalog at source. An empty source returns the built-in catalog.
func Load(ctx context.Context, source string, logger *slog.Logger) (entities.Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(source) == "" {
		return entities.DefaultCatalog(), nil
	}

	body, err := fetch(ctx, source)
	if err != nil {
		return nil, err
	}

	names, stats, err := Parse(decode(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", source, err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("catalog %s has no medication names", source)
	}

	if stats.Empty > 0 || stats.Duplicates > 0 || stats.Malformed > 0 {
		logger.Info("Catalog skip statistics",
			"empty_lines", stats.Empty,
			"duplicates", stats.Duplicates,
			"malformed", stats.Malformed,
			"total_lines", stats.Lines)
	}
	logger.Info("Catalog loaded", "source", source, "names", stats.Names)
	return names, nil
}

func fetch(ctx context.Context, source string) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		f, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open catalog: %w", err)
		}
		defer func() { _ = f.Close() }()
		return io.ReadAll(io.LimitReader(f, maxSourceSize))
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog url: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", source, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download %s: status %d", source, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

// decode returns a UTF-8 reader over body; some public exports are still ISO-8859-1
func decode(body []byte) io.Reader {
	if utf8.Valid(body) {
		return bytes.NewReader(body)
	}
	return charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(body))
}

// Parse reads catalog lines from r, keeping the first occurrence of every name
func Parse(r io.Reader) (entities.Catalog, Stats, error) {
	var (
		stats Stats
		names entities.Catalog
	)
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		stats.Lines++
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))

		if line == "" || strings.HasPrefix(line, "#") {
			stats.Empty++
			continue
		}

		name := line
		if strings.Contains(line, "\t") {
			name = strings.TrimSpace(strings.Split(line, "\t")[1])
		}
		if name == "" {
			stats.Malformed++
			continue
		}

		if _, dup := seen[name]; dup {
			stats.Duplicates++
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if err := scanner.Err(); err != nil {
		return nil, stats, err
	}

	stats.Names = len(names)
	return names, stats, nil
}
