package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/algobrain/threatgraph-backend/internal/domain"
)

// LoadError marks an unreadable or unparseable source. Always fatal for the
// run; whether to re-fetch is the caller's decision.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("ingest: load %q: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// sourceDocument is the expected top-level shape: a bundle with a list of
// kind-tagged records.
type sourceDocument struct {
	Objects []domain.SourceRecord `json:"objects"`
}

var loadHTTPClient = &http.Client{Timeout: 60 * time.Second}

// LoadSource reads a full source collection from a local file or an
// http(s) URL. Returns the parsed records plus the raw payload for
// archiving.
func LoadSource(ctx context.Context, source string) ([]domain.SourceRecord, []byte, error) {
	raw, err := readSource(ctx, source)
	if err != nil {
		return nil, nil, &LoadError{Source: source, Err: err}
	}

	var doc sourceDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, &LoadError{Source: source, Err: fmt.Errorf("parse: %w", err)}
	}
	if len(doc.Objects) == 0 {
		return nil, nil, &LoadError{Source: source, Err: fmt.Errorf("no objects in source document")}
	}
	return doc.Objects, raw, nil
}

func readSource(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, err
		}
		resp, err := loadHTTPClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch: status %d", resp.StatusCode)
		}
		return io.ReadAll(resp.Body)
	}
	return os.ReadFile(source)
}
