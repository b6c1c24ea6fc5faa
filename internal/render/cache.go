package render

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/ternmail/tern/internal/store"
)

// Cache wraps a Renderer with the three persisted cache tiers. Concurrent
// requests for the same key share a single computation; the second caller
// waits on the first's result instead of rendering again.
type Cache struct {
	store store.Store
	r     Renderer
	group singleflight.Group
}

func NewCache(st store.Store, r Renderer) *Cache {
	return &Cache{store: st, r: r}
}

// Text returns the message body reflowed to widthCols, computing and
// persisting it on miss.
func (c *Cache) Text(ctx context.Context, messageID int64, widthCols int) (string, error) {
	if text, ok, err := c.store.GetCacheText(ctx, messageID, widthCols); err != nil {
		return "", err
	} else if ok {
		return text, nil
	}

	key := fmt.Sprintf("text:%d:%d", messageID, widthCols)
	v, err, _ := c.group.Do(key, func() (any, error) {
		// re-check under the flight: a racing caller may have filled the row
		if text, ok, err := c.store.GetCacheText(ctx, messageID, widthCols); err != nil {
			return nil, err
		} else if ok {
			return text, nil
		}
		raw, err := c.store.GetRawBody(ctx, messageID)
		if err != nil {
			return nil, err
		}
		text, err := c.r.Reflow(raw, widthCols)
		if err != nil {
			return nil, &ComputeError{Key: key, Err: err}
		}
		if err := c.store.PutCacheText(ctx, messageID, widthCols, text); err != nil {
			return nil, err
		}
		return text, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// HTML returns the prepared HTML body under the given remote-image policy.
func (c *Cache) HTML(ctx context.Context, messageID int64, policy store.RemotePolicy) (string, error) {
	if html, ok, err := c.store.GetCacheHTML(ctx, messageID, policy); err != nil {
		return "", err
	} else if ok {
		return html, nil
	}

	key := fmt.Sprintf("html:%d:%s", messageID, policy)
	v, err, _ := c.group.Do(key, func() (any, error) {
		if html, ok, err := c.store.GetCacheHTML(ctx, messageID, policy); err != nil {
			return nil, err
		} else if ok {
			return html, nil
		}
		raw, err := c.store.GetRawBody(ctx, messageID)
		if err != nil {
			return nil, err
		}
		html, err := c.r.PrepareHTML(raw, policy)
		if err != nil {
			return nil, &ComputeError{Key: key, Err: err}
		}
		if err := c.store.PutCacheHTML(ctx, messageID, policy, html); err != nil {
			return nil, err
		}
		return html, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Tiles returns the full ordered tile set for one geometry. A miss renders
// every tile for the configuration in one call and commits them in a single
// transaction, so partial sets are never visible.
func (c *Cache) Tiles(ctx context.Context, messageID int64, cfg TileConfig) ([]store.Tile, error) {
	tileKey := store.TileKey{
		MessageID:    messageID,
		WidthPx:      cfg.WidthPx,
		TileHeightPx: cfg.TileHeightPx,
		Theme:        cfg.Theme,
		Policy:       cfg.Policy,
	}
	if tiles, err := c.store.GetCacheTiles(ctx, tileKey); err != nil {
		return nil, err
	} else if len(tiles) > 0 {
		return tiles, nil
	}

	key := fmt.Sprintf("tiles:%d:%d:%d:%s:%s", messageID, cfg.WidthPx, cfg.TileHeightPx, cfg.Theme, cfg.Policy)
	v, err, _ := c.group.Do(key, func() (any, error) {
		if tiles, err := c.store.GetCacheTiles(ctx, tileKey); err != nil {
			return nil, err
		} else if len(tiles) > 0 {
			return tiles, nil
		}
		raw, err := c.store.GetRawBody(ctx, messageID)
		if err != nil {
			return nil, err
		}
		pngs, err := c.r.RasterizeTiles(raw, cfg)
		if err != nil {
			return nil, &ComputeError{Key: key, Err: err}
		}
		tiles := make([]store.Tile, len(pngs))
		for i, png := range pngs {
			tiles[i] = store.Tile{Index: i, PNG: png}
		}
		if err := c.store.PutCacheTiles(ctx, tileKey, tiles); err != nil {
			return nil, err
		}
		return tiles, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]store.Tile), nil
}
