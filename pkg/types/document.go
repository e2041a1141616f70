// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ConversionStatus indicates the state of PDF-to-shapefile conversion for a document.
type ConversionStatus string

const (
	ConversionNone    ConversionStatus = "none"
	ConversionDone    ConversionStatus = "converted"
	ConversionPartial ConversionStatus = "partial"
	ConversionFailed  ConversionStatus = "failed"
)

// Document holds metadata and file paths for a fetched PDF.
type Document struct {
	// ID is a slug derived from the input (e.g. "survey-plan-12").
	ID string `json:"id" yaml:"id"`

	// SourceURL is the URL or local path the PDF was fetched from.
	SourceURL string `json:"source_url" yaml:"source_url"`

	// PDFPath is the local filesystem path to the fetched PDF.
	PDFPath string `json:"pdf_path" yaml:"pdf_path"`

	// Title is the document title, defaulting to the file stem.
	Title string `json:"title" yaml:"title"`

	// SHA256 is the hex digest of the PDF bytes.
	SHA256 string `json:"sha256" yaml:"sha256"`

	// Size is the PDF size in bytes.
	Size int64 `json:"size" yaml:"size"`

	// Source identifies how the PDF was obtained ("path", "url", "upload").
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// FetchedAt records when the PDF was copied into the workdir.
	FetchedAt time.Time `json:"fetched_at" yaml:"fetched_at"`

	// ConversionStatus tracks whether the PDF has been converted.
	ConversionStatus ConversionStatus `json:"conversion_status" yaml:"conversion_status"`
}

// PageText is the plain text of one PDF page. Number is 1-based.
type PageText struct {
	Number int    `json:"number" yaml:"number"`
	Text   string `json:"text" yaml:"text"`
}
