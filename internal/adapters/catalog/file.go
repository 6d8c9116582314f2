package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/catbracket/internal/domain/model"
)

const driverFile = "file"

// timestamp layouts accepted for created_at; YAML timestamps arrive already
// parsed and are formatted back with the last layout.
var timeLayouts = []string{ //nolint:gochecknoglobals // constant layout list
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05.999999999 -0700 MST",
}

// File reads photos from a YAML manifest on every call:
//
//	base_url: https://cdn.example.com/cats
//	photos:
//	  - id: 7b0c...
//	    filename: whiskers.jpg
//	    created_at: "2024-05-01T10:00:00Z"
type File struct {
	path string
}

// NewFile returns a catalog backed by the manifest at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// ListPhotos parses the manifest and returns photos newest first.
func (f *File) ListPhotos(ctx context.Context) ([]model.Photo, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(f.path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrUnavailable, f.path, err)
	}

	base := strings.TrimRight(k.String("base_url"), "/")
	entries := k.Slices("photos")
	photos := make([]model.Photo, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		id := strings.TrimSpace(e.String("id"))
		if id == "" {
			return nil, fmt.Errorf("%w: %s: photo %d has no id", ErrUnavailable, f.path, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s: duplicate photo id %q", ErrUnavailable, f.path, id)
		}
		seen[id] = struct{}{}

		p := model.Photo{ID: id, Filename: e.String("filename"), URL: e.String("url")}
		if raw := e.String("created_at"); raw != "" {
			ts, err := parseTime(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: photo %q: %w", ErrUnavailable, f.path, id, err)
			}
			p.CreatedAt = ts
		}
		if p.URL == "" && base != "" && p.Filename != "" {
			p.URL = base + "/" + p.Filename
		}
		photos = append(photos, p)
	}

	sort.SliceStable(photos, func(i, j int) bool { return photos[i].CreatedAt.After(photos[j].CreatedAt) })
	observe(driverFile, start, photos)
	return photos, nil
}

func parseTime(raw string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}
