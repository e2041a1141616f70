// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package basemap keeps the registry of XYZ tile providers and a disk
// cache of the tiles fetched from them.
package basemap

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/pdf2shp/internal/secrets"
	"github.com/pdiddy/pdf2shp/pkg/types"
)

var (
	// ErrUnknownProvider is returned for names not in the registry.
	ErrUnknownProvider = errors.New("unknown tile provider")
	// ErrMissingKey is returned when a provider needs an API key that is
	// not configured.
	ErrMissingKey = errors.New("tile provider API key not configured")
)

const defaultProvider = "OpenStreetMap.Mapnik"

// Provider is an XYZ tile source. URL may use the placeholders {s}
// (subdomain), {z}, {x}, {y}, {r} (retina suffix, always empty here) and
// {apikey}.
type Provider struct {
	Name        string   `json:"name" yaml:"name"`
	URL         string   `json:"-" yaml:"url"`
	Attribution string   `json:"attribution" yaml:"attribution"`
	MaxZoom     int      `json:"max_zoom" yaml:"max_zoom"`
	Subdomains  []string `json:"subdomains,omitempty" yaml:"subdomains,omitempty"`
	KeySecret   string   `json:"-" yaml:"key_secret,omitempty"`
}

// NeedsKey reports whether the provider URL takes an API key.
func (p Provider) NeedsKey() bool {
	return strings.Contains(p.URL, "{apikey}")
}

var builtins = []Provider{
	{
		Name:        "OpenStreetMap.Mapnik",
		URL:         "https://tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
		MaxZoom:     19,
	},
	{
		Name:        "OpenTopoMap",
		URL:         "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
		Attribution: `Map data: &copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors, SRTM | Map style: &copy; <a href="https://opentopomap.org">OpenTopoMap</a> (CC-BY-SA)`,
		MaxZoom:     17,
		Subdomains:  []string{"a", "b", "c"},
	},
	{
		Name:        "CartoDB.Positron",
		URL:         "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
		Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors &copy; <a href="https://carto.com/attributions">CARTO</a>`,
		MaxZoom:     20,
		Subdomains:  []string{"a", "b", "c", "d"},
	},
	{
		Name:        "CartoDB.DarkMatter",
		URL:         "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
		Attribution: `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors &copy; <a href="https://carto.com/attributions">CARTO</a>`,
		MaxZoom:     20,
		Subdomains:  []string{"a", "b", "c", "d"},
	},
	{
		Name:        "Esri.WorldImagery",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: `Tiles &copy; Esri &mdash; Source: Esri, i-cubed, USDA, USGS, AEX, GeoEye, Getmapping, Aerogrid, IGN, IGP, UPR-EGP, and the GIS User Community`,
		MaxZoom:     19,
	},
	{
		Name:        "Thunderforest.Landscape",
		URL:         "https://{s}.tile.thunderforest.com/landscape/{z}/{x}/{y}.png?apikey={apikey}",
		Attribution: `&copy; <a href="http://www.thunderforest.com/">Thunderforest</a>, &copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
		MaxZoom:     22,
		Subdomains:  []string{"a", "b", "c"},
		KeySecret:   "thunderforest-api-key",
	},
	{
		Name:        "MapTiler.Streets",
		URL:         "https://api.maptiler.com/maps/streets-v2/{z}/{x}/{y}.png?key={apikey}",
		Attribution: `&copy; <a href="https://www.maptiler.com/copyright/">MapTiler</a> &copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
		MaxZoom:     20,
		KeySecret:   "maptiler-api-key",
	},
}

// Registry holds the available providers and resolves their tile URLs.
type Registry struct {
	providers map[string]Provider
	def       string
	secrets   map[string]string
}

// NewRegistry returns the built-in providers merged with cfg.Providers.
// A configured provider replaces a built-in of the same name; fields it
// leaves empty keep the built-in values. keys holds loaded secrets.
func NewRegistry(cfg types.BasemapConfig, keys map[string]string) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]Provider, len(builtins)+len(cfg.Providers)),
		def:       defaultProvider,
		secrets:   keys,
	}
	for _, p := range builtins {
		r.providers[p.Name] = p
	}

	for _, pc := range cfg.Providers {
		if pc.Name == "" {
			return nil, errors.New("basemap provider without a name")
		}
		p := r.providers[pc.Name]
		p.Name = pc.Name
		if pc.URL != "" {
			p.URL = pc.URL
		}
		if pc.Attribution != "" {
			p.Attribution = pc.Attribution
		}
		if pc.MaxZoom > 0 {
			p.MaxZoom = pc.MaxZoom
		}
		if len(pc.Subdomains) > 0 {
			p.Subdomains = pc.Subdomains
		}
		if pc.KeySecret != "" {
			p.KeySecret = pc.KeySecret
		}
		if err := validate(p); err != nil {
			return nil, err
		}
		r.providers[p.Name] = p
	}

	if cfg.Default != "" {
		if _, ok := r.providers[cfg.Default]; !ok {
			return nil, fmt.Errorf("default basemap: %w: %s", ErrUnknownProvider, cfg.Default)
		}
		r.def = cfg.Default
	}
	return r, nil
}

func validate(p Provider) error {
	for _, ph := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(p.URL, ph) {
			return fmt.Errorf("basemap provider %s: URL %q lacks %s", p.Name, p.URL, ph)
		}
	}
	if strings.Contains(p.URL, "{s}") && len(p.Subdomains) == 0 {
		return fmt.Errorf("basemap provider %s: URL uses {s} but no subdomains are set", p.Name)
	}
	if p.MaxZoom <= 0 {
		return fmt.Errorf("basemap provider %s: max_zoom must be positive", p.Name)
	}
	return nil
}

// Get returns the named provider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return Provider{}, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// Default returns the provider shown first on maps.
func (r *Registry) Default() Provider {
	return r.providers[r.def]
}

// Providers lists the usable providers by name, default first. Providers
// whose API key is missing are left out.
func (r *Registry) Providers() []Provider {
	var out []Provider
	for _, p := range r.providers {
		if _, err := r.key(p); err != nil {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Name == r.def) != (out[j].Name == r.def) {
			return out[i].Name == r.def
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// TileURL returns the URL of one tile. Subdomains rotate with the tile
// position so neighbouring tiles spread across hosts.
func (r *Registry) TileURL(name string, z, x, y int) (string, error) {
	p, err := r.Get(name)
	if err != nil {
		return "", err
	}
	key, err := r.key(p)
	if err != nil {
		return "", err
	}

	s := ""
	if len(p.Subdomains) > 0 {
		s = p.Subdomains[(x+y)%len(p.Subdomains)]
	}
	return strings.NewReplacer(
		"{s}", s,
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
		"{r}", "",
		"{apikey}", key,
	).Replace(p.URL), nil
}

// LeafletURL returns the provider template in Leaflet's L.tileLayer form,
// with the API key filled in.
func (r *Registry) LeafletURL(name string) (string, error) {
	p, err := r.Get(name)
	if err != nil {
		return "", err
	}
	key, err := r.key(p)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(p.URL, "{apikey}", key), nil
}

func (r *Registry) key(p Provider) (string, error) {
	if !p.NeedsKey() {
		return "", nil
	}
	if p.KeySecret == "" {
		return "", fmt.Errorf("%w: %s has no key_secret", ErrMissingKey, p.Name)
	}
	v, ok := secrets.Lookup(r.secrets, p.KeySecret)
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s needs %s (.secrets/%s or %s)", ErrMissingKey, p.Name, p.KeySecret, p.KeySecret, secrets.EnvName(p.KeySecret))
	}
	return v, nil
}
