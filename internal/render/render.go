// Package render turns raw MIME bodies into display artifacts and memoizes
// them in the local store across three tiers: reflowed text, prepared HTML,
// and rasterized tiles.
package render

import (
	"errors"
	"fmt"

	"github.com/ternmail/tern/internal/store"
)

// ErrNoHTML is returned when a message carries no HTML part.
var ErrNoHTML = errors.New("message has no html part")

// ComputeError wraps a renderer failure for a specific artifact. Nothing is
// cached when it occurs; a later lookup retries the computation.
type ComputeError struct {
	Key string
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Key, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// TileConfig selects one rasterization geometry. Every field participates in
// the cache key.
type TileConfig struct {
	WidthPx      int
	TileHeightPx int
	Theme        string
	Policy       store.RemotePolicy
}

// Renderer produces display artifacts from a raw MIME body. Implementations
// must be deterministic: identical inputs yield identical outputs, which is
// what makes cached rows permanently valid.
type Renderer interface {
	// Reflow extracts the plain-text body and wraps it to widthCols.
	Reflow(raw []byte, widthCols int) (string, error)
	// PrepareHTML sanitizes the HTML part, inlines cid: images, and applies
	// the remote-image policy. Returns ErrNoHTML when no HTML part exists.
	PrepareHTML(raw []byte, policy store.RemotePolicy) (string, error)
	// RasterizeTiles renders the full tile set for one geometry in order.
	RasterizeTiles(raw []byte, cfg TileConfig) ([][]byte, error)
}
