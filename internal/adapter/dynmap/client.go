// Package dynmap fetches the dynmap marker document that carries town popups.
package dynmap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/town-data-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// maxBodyBytes caps the feed body; the live document is a few megabytes.
const maxBodyBytes = 64 << 20

// Client implements pipeline.FeedFetcher over HTTP.
type Client struct {
	url        string
	markerSet  string
	httpClient *http.Client
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewClient creates a feed client. timeout bounds the whole request.
func NewClient(url, markerSet string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:       url,
		markerSet: markerSet,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
}

// Fetch downloads and decodes the feed. Errors wrap one of the domain feed
// sentinels.
func (c *Client) Fetch(ctx context.Context) (domain.FeedSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.FeedSnapshot{}, fmt.Errorf("%w: create request: %w", domain.ErrFeedTransport, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "town-data-etl")

	fetchedAt := c.clock.Now().UTC()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.FeedSnapshot{}, fmt.Errorf("%w: %w", domain.ErrFeedTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return domain.FeedSnapshot{}, fmt.Errorf("%w: status %d", domain.ErrFeedStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.FeedSnapshot{}, fmt.Errorf("%w: read body: %w", domain.ErrFeedTransport, err)
	}

	areas, err := Decode(body, c.markerSet)
	if err != nil {
		return domain.FeedSnapshot{}, err
	}

	c.logger.Debug("feed fetched", "url", c.url, "bytes", len(body), "areas", len(areas))
	return domain.FeedSnapshot{Body: body, Areas: areas, FetchedAt: fetchedAt}, nil
}
