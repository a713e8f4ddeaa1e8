package port

import "context"

// TracklistProvider resolves the ordered track titles of an external release id.
type TracklistProvider interface {
	FetchTracklist(ctx context.Context, mbid string) ([]string, error)
}
