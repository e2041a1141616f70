// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package basemap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/singleflight"

	"github.com/pdiddy/pdf2shp/internal/httputil"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

const (
	tilesDir = "tiles"

	// maxTileBytes bounds a single upstream tile response.
	maxTileBytes = 4 << 20

	// maxZoom is the deepest zoom any provider is asked for.
	maxZoom = 24

	// downloadTimeout bounds a shared upstream fetch, which outlives the
	// request that started it.
	downloadTimeout = 30 * time.Second
)

// ErrInvalidTile is returned for tile coordinates outside the provider's
// zoom range or the tile grid.
var ErrInvalidTile = errors.New("invalid tile coordinates")

// Tile is one fetched map tile.
type Tile struct {
	Data        []byte
	ContentType string
	Cached      bool
}

// TileCache serves tiles from disk and fetches missing ones from the
// provider. Concurrent requests for the same tile share one download.
type TileCache struct {
	registry   *Registry
	client     *http.Client
	dir        string
	userAgent  string
	maxRetries int
	maxBytes   int64
	group      singleflight.Group
}

// NewTileCache returns a cache rooted at cfg.CacheDir, or workDir/tiles
// when that is empty.
func NewTileCache(reg *Registry, client *http.Client, cfg types.BasemapConfig, workDir string) *TileCache {
	dir := cfg.CacheDir
	if dir == "" {
		dir = filepath.Join(workDir, tilesDir)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "pdf2shp"
	}
	return &TileCache{
		registry:   reg,
		client:     client,
		dir:        dir,
		userAgent:  ua,
		maxRetries: cfg.MaxRetries,
		maxBytes:   maxTileBytes,
	}
}

// Registry returns the provider registry the cache resolves names with.
func (c *TileCache) Registry() *Registry { return c.registry }

// ValidTile checks z/x/y against the tile grid and the provider zoom range.
func ValidTile(p Provider, z, x, y int) (maptile.Tile, error) {
	if z < 0 || z > p.MaxZoom || z > maxZoom {
		return maptile.Tile{}, fmt.Errorf("%w: zoom %d outside 0-%d for %s", ErrInvalidTile, z, min(p.MaxZoom, maxZoom), p.Name)
	}
	if n := 1 << z; x < 0 || y < 0 || x >= n || y >= n {
		return maptile.Tile{}, fmt.Errorf("%w: %d/%d/%d", ErrInvalidTile, z, x, y)
	}
	return maptile.New(uint32(x), uint32(y), maptile.Zoom(z)), nil
}

// Fetch returns the tile from the cache, downloading it on a miss.
func (c *TileCache) Fetch(ctx context.Context, provider string, z, x, y int) (Tile, error) {
	p, err := c.registry.Get(provider)
	if err != nil {
		return Tile{}, err
	}
	if _, err := ValidTile(p, z, x, y); err != nil {
		return Tile{}, err
	}

	path := c.tilePath(p.Name, z, x, y)
	if data, err := os.ReadFile(path); err == nil {
		return Tile{Data: data, ContentType: http.DetectContentType(data), Cached: true}, nil
	}

	// The shared download outlives the context of the caller that started it.
	ch := c.group.DoChan(path, func() (any, error) {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), downloadTimeout)
		defer cancel()
		return c.download(dctx, p.Name, z, x, y, path)
	})
	select {
	case <-ctx.Done():
		return Tile{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Tile{}, res.Err
		}
		return res.Val.(Tile), nil
	}
}

func (c *TileCache) download(ctx context.Context, provider string, z, x, y int, path string) (Tile, error) {
	url, err := c.registry.TileURL(provider, z, x, y)
	if err != nil {
		return Tile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Tile{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := httputil.DoWithRetry(ctx, c.client, req, c.maxRetries)
	if err != nil {
		return Tile{}, fmt.Errorf("fetching tile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Tile{}, fmt.Errorf("tile %s/%d/%d/%d: HTTP %d", provider, z, x, y, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return Tile{}, fmt.Errorf("reading tile: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return Tile{}, fmt.Errorf("tile %s/%d/%d/%d exceeds %d bytes", provider, z, x, y, c.maxBytes)
	}

	if err := writeFile(path, data); err != nil {
		return Tile{}, err
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return Tile{Data: data, ContentType: ct}, nil
}

func (c *TileCache) tilePath(provider string, z, x, y int) string {
	return filepath.Join(c.dir, provider, strconv.Itoa(z), strconv.Itoa(x), strconv.Itoa(y)+".tile")
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating tile directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tile-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing tile: %w", errors.Join(writeErr, closeErr))
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming tile: %w", err)
	}
	return nil
}
