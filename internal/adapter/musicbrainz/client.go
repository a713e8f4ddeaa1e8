// Package musicbrainz resolves release tracklists from the MusicBrainz web service.
package musicbrainz

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

const unknownTrack = "Unknown Track"

type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}

type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	retry      RetryPolicy
	log        zerolog.Logger
}

func New(baseURL, contactEmail string, timeout time.Duration, retry RetryPolicy, log zerolog.Logger) *Client {
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = 1
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		userAgent:  fmt.Sprintf("RecordStore/v1 (%s)", contactEmail),
		retry:      retry,
		log:        log.With().Str("component", "musicbrainz").Logger(),
	}
}

type releaseMetadata struct {
	XMLName xml.Name `xml:"metadata"`
	Release struct {
		Media []struct {
			Tracks []struct {
				Title string `xml:"recording>title"`
			} `xml:"track-list>track"`
		} `xml:"medium-list>medium"`
	} `xml:"release"`
}

// FetchTracklist returns the track titles of the release in medium order. Transport
// and 5xx failures are retried with exponential delay; 4xx answers are not.
func (c *Client) FetchTracklist(ctx context.Context, mbid string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/ws/2/release/%s?fmt=xml&inc=recordings", c.baseURL, url.PathEscape(mbid))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retry.BaseDelay
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	var tracks []string
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		tracks, err = c.fetch(ctx, endpoint)
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Warn().Err(err).Str("mbid", mbid).Int("attempt", attempt).Dur("retry_in", wait).Msg("tracklist lookup attempt failed")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retry.MaxAttempts-1)), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		return nil, fmt.Errorf("fetch tracklist %s after %d attempts: %w", mbid, attempt, err)
	}
	return tracks, nil
}

func (c *Client) fetch(ctx context.Context, endpoint string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	return parseTracklist(resp.Body)
}

func parseTracklist(r io.Reader) ([]string, error) {
	var meta releaseMetadata
	if err := xml.NewDecoder(r).Decode(&meta); err != nil {
		if errors.Is(err, io.EOF) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("decode release: %w", err)
	}

	tracks := []string{}
	for _, medium := range meta.Release.Media {
		for _, t := range medium.Tracks {
			title := strings.TrimSpace(t.Title)
			if title == "" {
				title = unknownTrack
			}
			tracks = append(tracks, title)
		}
	}
	return tracks, nil
}
