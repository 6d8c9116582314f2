package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/catbracket/internal/domain/model"
)

const (
	driverREST        = "rest"
	defaultRESTTimeout = 10 * time.Second
	maxErrorBody      = 512
)

// REST lists photos from a PostgREST-style "images" table and resolves
// display URLs against the same host's public object storage.
type REST struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// RESTOption configures a REST catalog.
type RESTOption func(*REST)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) RESTOption {
	return func(r *REST) {
		if c != nil {
			r.client = c
		}
	}
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) RESTOption {
	return func(r *REST) {
		if d > 0 {
			r.client.Timeout = d
		}
	}
}

// NewREST returns a catalog for the project at baseURL authenticated with apiKey.
func NewREST(baseURL, apiKey string, opts ...RESTOption) *REST {
	r := &REST{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultRESTTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type imageRecord struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	CreatedAt time.Time `json:"created_at"`
}

// ListPhotos fetches every image row ordered by created_at descending.
func (r *REST) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	start := time.Now()

	q := url.Values{}
	q.Set("select", "id,filename,created_at")
	q.Set("order", "created_at.desc")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/rest/v1/images?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.apiKey != "" {
		req.Header.Set("apikey", r.apiKey)
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []imageRecord
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: decode images: %w", ErrUnavailable, err)
	}

	photos := make([]model.Photo, 0, len(rows))
	for _, row := range rows {
		if row.ID == "" {
			continue
		}
		photos = append(photos, model.Photo{
			ID:        row.ID,
			Filename:  row.Filename,
			CreatedAt: row.CreatedAt,
			URL:       r.objectURL("full", row.ID),
			ThumbURL:  r.objectURL("thumbs", row.ID),
		})
	}
	observe(driverREST, start, photos)
	return photos, nil
}

func (r *REST) objectURL(bucket, id string) string {
	return r.baseURL + "/storage/v1/object/public/" + bucket + "/" + url.PathEscape(id) + ".webp"
}
