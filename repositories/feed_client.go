package repositories

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// FeedCard is the raw per-record shape of the bulk catalog feed.
type FeedCard struct {
	Name            string   `json:"name"`
	Set             string   `json:"set"`
	CollectorNumber string   `json:"collector_number"`
	Finishes        []string `json:"finishes"`
}

// FeedSet is one set entry from the external catalog API.
type FeedSet struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	ReleasedAt string `json:"released_at"`
}

type CatalogFeed interface {
	FetchCardNames(ctx context.Context) ([]string, error)
	FetchSets(ctx context.Context) ([]FeedSet, error)
	StreamCards(ctx context.Context, fn func(FeedCard) error) error
}

// HTTPCatalogFeed reads the external card catalog: small JSON endpoints
// for names and sets, and the very large bulk file as a lazy stream so it
// is never materialized in memory.
type HTTPCatalogFeed struct {
	client       *http.Client
	bulkIndexURL string
	cardNamesURL string
	setsURL      string
}

func NewCatalogFeed(bulkIndexURL, cardNamesURL, setsURL string) *HTTPCatalogFeed {
	return &HTTPCatalogFeed{
		client:       &http.Client{Timeout: 30 * time.Minute},
		bulkIndexURL: bulkIndexURL,
		cardNamesURL: cardNamesURL,
		setsURL:      setsURL,
	}
}

func (f *HTTPCatalogFeed) FetchCardNames(ctx context.Context) ([]string, error) {
	var out struct {
		Data []string `json:"data"`
	}
	if err := f.getJSON(ctx, f.cardNamesURL, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch card names: %w", err)
	}
	return out.Data, nil
}

func (f *HTTPCatalogFeed) FetchSets(ctx context.Context) ([]FeedSet, error) {
	var out struct {
		Data []FeedSet `json:"data"`
	}
	if err := f.getJSON(ctx, f.setsURL, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch sets: %w", err)
	}
	return out.Data, nil
}

// StreamCards locates the default-cards bulk file, then decompresses and
// decodes it incrementally, invoking fn once per record. Returning an
// error from fn aborts the stream.
func (f *HTTPCatalogFeed) StreamCards(ctx context.Context, fn func(FeedCard) error) error {
	var index struct {
		Data []struct {
			Type        string `json:"type"`
			DownloadURI string `json:"download_uri"`
		} `json:"data"`
	}
	if err := f.getJSON(ctx, f.bulkIndexURL, &index); err != nil {
		return fmt.Errorf("failed to fetch bulk data index: %w", err)
	}

	downloadURI := ""
	for _, entry := range index.Data {
		if entry.Type == "default_cards" {
			downloadURI = entry.DownloadURI
			break
		}
	}
	if downloadURI == "" {
		return fmt.Errorf("no default_cards entry in bulk data index")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURI, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download bulk data: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d downloading bulk data", resp.StatusCode)
	}

	reader, err := maybeGunzip(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to open bulk data stream: %w", err)
	}

	return decodeCardArray(reader, fn)
}

// maybeGunzip sniffs the gzip magic bytes so both compressed files and
// transport-decompressed bodies stream correctly.
func maybeGunzip(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, err
	}
	if magic[0] == 0x1f && magic[1] == 0x8b {
		return gzip.NewReader(br)
	}
	return br, nil
}

// decodeCardArray walks a top-level JSON array one element at a time.
func decodeCardArray(r io.Reader, fn func(FeedCard) error) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("failed to read bulk data stream: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return fmt.Errorf("bulk data stream is not a JSON array")
	}

	for dec.More() {
		var card FeedCard
		if err := dec.Decode(&card); err != nil {
			return fmt.Errorf("failed to decode bulk data record: %w", err)
		}
		if err := fn(card); err != nil {
			return err
		}
	}
	return nil
}

func (f *HTTPCatalogFeed) getJSON(ctx context.Context, rawURL string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, rawURL)
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}
