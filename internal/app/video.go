package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

var (
	ErrInvalidVideoURL = errors.New("invalid video url")
	ErrNoSuchVideo     = errors.New("no such video")
)

// Only privacy-enhanced embed URLs are accepted as a room's video.
var embedURLRe = regexp.MustCompile(`^https://www\.youtube-nocookie\.com/embed/([^/]+)$`)

// ParseVideoURL validates the embed URL shape and extracts the video id.
func ParseVideoURL(videoURL string) (string, error) {
	m := embedURLRe.FindStringSubmatch(videoURL)
	if m == nil {
		return "", ErrInvalidVideoURL
	}
	return m[1], nil
}

// OEmbedLookup checks video existence against the oEmbed endpoint.
type OEmbedLookup struct {
	client *http.Client
}

func NewOEmbedLookup() *OEmbedLookup {
	return &OEmbedLookup{client: &http.Client{Timeout: 10 * time.Second}}
}

func (l *OEmbedLookup) Exists(ctx context.Context, videoID string) error {
	url := fmt.Sprintf(
		"https://www.youtube.com/oembed?format=json&url=https://www.youtube.com/watch?v=%s",
		videoID,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build oembed request: %w", err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return fmt.Errorf("oembed lookup: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest {
		return ErrNoSuchVideo
	}
	return fmt.Errorf("oembed lookup: unexpected status %d", resp.StatusCode)
}
