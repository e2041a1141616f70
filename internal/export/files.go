// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb/geojson"

	"github.com/pdiddy/pdf2shp/internal/geometry"
)

var vertexColumns = []string{"feature", "kind", "label", "lon", "lat", "z", "page", "line", "format"}

// WriteVertexTable writes one CSV row per feature vertex. Coordinates are
// the WGS 84 vertex positions.
func WriteVertexTable(path string, features []geometry.Feature) error {
	return writeAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(vertexColumns); err != nil {
			return err
		}
		for _, f := range features {
			for _, v := range f.Vertices {
				z := ""
				if v.HasZ {
					z = formatFloat(v.Z)
				}
				rec := []string{
					f.Name,
					string(f.Kind),
					v.Label,
					formatFloat(v.X),
					formatFloat(v.Y),
					z,
					strconv.Itoa(v.Page),
					strconv.Itoa(v.Line),
					string(v.Format),
				}
				if err := cw.Write(rec); err != nil {
					return err
				}
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteGeoJSON writes fc as a GeoJSON document.
func WriteGeoJSON(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding GeoJSON: %w", err)
	}
	return writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// Zip archives files into dest, storing each under its base name.
func Zip(dest string, files []string) error {
	return writeAtomic(dest, func(w io.Writer) error {
		zw := zip.NewWriter(w)
		for _, name := range files {
			if err := addFile(zw, name); err != nil {
				return err
			}
		}
		return zw.Close()
	})
}

func addFile(zw *zip.Writer, name string) error {
	f, err := os.Open(name)
	if err != nil {
		return fmt.Errorf("opening %s: %w", name, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(name)
	hdr.Method = zip.Deflate

	dst, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, f); err != nil {
		return fmt.Errorf("archiving %s: %w", name, err)
	}
	return nil
}

// LayerFiles returns the paths of every file belonging to the layer whose
// .shp is at shpPath.
func LayerFiles(shpPath string) []string {
	base := shpPath[:len(shpPath)-len(filepath.Ext(shpPath))]
	files := make([]string, len(LayerExtensions))
	for i, ext := range LayerExtensions {
		files[i] = base + ext
	}
	return files
}

// writeAtomic writes through a temp file in the destination directory and
// renames it into place.
func writeAtomic(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdf2shp-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := fn(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
