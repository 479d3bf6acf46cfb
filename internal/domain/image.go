package domain

import (
	"strings"
	"time"
)

// Image is one generated asset owned by a Run. URIs are opaque object-store
// references. Ordinal is any caller-chosen integer, negative values included.
type Image struct {
	ID        string
	RunID     string
	Ordinal   int
	AssetURI  string
	ThumbURI  string
	Status    ImageStatus
	Notes     string
	CreatedAt time.Time
}

func (i Image) Validate() error {
	if strings.TrimSpace(i.AssetURI) == "" {
		return Invalid("asset_uri_required", "asset_uri is required")
	}
	return nil
}
