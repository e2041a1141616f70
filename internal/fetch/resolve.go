// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"crypto/sha256"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// InputType classifies a fetch input.
type InputType int

const (
	TypeUnknown InputType = iota
	TypePath
	TypeURL
)

func (t InputType) String() string {
	switch t {
	case TypePath:
		return "path"
	case TypeURL:
		return "url"
	default:
		return "unknown"
	}
}

// slugUnsafe matches runs of characters that are replaced in slugs.
var slugUnsafe = regexp.MustCompile(`[^a-z0-9._]+`)

// Classify determines the input type and returns its normalized form: an
// absolute path for local files, the trimmed URL for http(s) inputs.
func Classify(input string) (InputType, string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return TypeUnknown, input
	}

	if u, err := url.Parse(input); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return TypeURL, input
	}

	if info, err := os.Stat(input); err == nil && info.Mode().IsRegular() {
		abs, err := filepath.Abs(input)
		if err != nil {
			abs = filepath.Clean(input)
		}
		return TypePath, abs
	}

	return TypeUnknown, input
}

// Slug returns a filesystem-safe filename stem for the input.
func Slug(t InputType, normalized string) string {
	switch t {
	case TypePath:
		return stemSlug(filepath.Base(normalized), normalized)
	case TypeURL:
		u, err := url.Parse(normalized)
		if err != nil {
			return urlHashSlug(normalized)
		}
		return stemSlug(filepath.Base(u.Path), normalized)
	default:
		return "unknown"
	}
}

// SlugName returns the slug for an uploaded file name.
func SlugName(name string) string {
	return stemSlug(filepath.Base(name), name)
}

func stemSlug(base, full string) string {
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	s := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(stem), "-"), "-.")
	if s == "" {
		return urlHashSlug(full)
	}
	return s
}

func urlHashSlug(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("url-%x", h[:4])
}
