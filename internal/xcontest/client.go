// Package xcontest fetches and parses the XContest flight feed.
package xcontest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/mmcdole/gofeed"

	"xcbot/internal/model"
)

// ErrFeedUnavailable marks network and parse failures of the flight feed.
// A failed fetch skips one poll cycle; the next tick tries again.
var ErrFeedUnavailable = errors.New("flight feed unavailable")

// Flight detail links carry the pilot handle, e.g.
// https://www.xcontest.org/2024/world/en/flights/detail:chrigel/28.04.2024/10:23
var pilotRe = regexp.MustCompile(`detail:([^/]+)`)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client downloads and parses the XContest RSS feed.
type Client struct {
	client  HTTPClient
	url     string
	timeout time.Duration
	log     *slog.Logger
}

// New creates a Client fetching the feed at url.
func New(client HTTPClient, url string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		client:  client,
		url:     url,
		timeout: timeout,
		log:     log,
	}
}

// FetchFlights downloads the feed and returns the flights it currently
// publishes, in feed order. Items without a recognizable pilot handle are
// skipped.
func (c *Client) FetchFlights(ctx context.Context) ([]model.Flight, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "xcbot/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http get: %v", ErrFeedUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFeedUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrFeedUnavailable, err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %v", ErrFeedUnavailable, err)
	}

	flights := make([]model.Flight, 0, len(feed.Items))
	for _, item := range feed.Items {
		pilot := pilotFromLink(item.Link)
		if pilot == "" {
			c.log.Debug("skipping feed item without pilot handle", "link", item.Link)
			continue
		}
		flights = append(flights, model.Flight{
			ID:      itemID(item),
			Pilot:   pilot,
			Summary: item.Title,
			URL:     item.Link,
		})
	}
	return flights, nil
}

// itemID returns the unique identifier of a feed item. XContest sets the GUID
// to the flight detail URL; fall back to the link if the GUID is missing.
func itemID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	return item.Link
}

func pilotFromLink(link string) string {
	m := pilotRe.FindStringSubmatch(link)
	if m == nil {
		return ""
	}
	return m[1]
}
