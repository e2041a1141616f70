//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// Pipeline groups targets that run the CLI against the default work directory.
type Pipeline mg.Namespace

func run(args ...string) error {
	return sh.RunV("go", append([]string{"run", "-tags", buildTags, cmdPkg, "--work-dir", workDir}, args...)...)
}

// Fetch copies or downloads the PDFs named by $PDFS (space separated).
func (Pipeline) Fetch() error {
	mg.Deps(Init)
	return run(append([]string{"fetch"}, fields(envOr("PDFS", ""))...)...)
}

// Convert converts every fetched document and updates the catalog.
func (Pipeline) Convert() error {
	mg.Deps(Init)
	return run("convert")
}

// Index rebuilds the catalog from the conversion outputs.
func (Pipeline) Index() error {
	return run("catalog", "index")
}

// Serve starts the web map on $ADDR (default :8080).
func (Pipeline) Serve() error {
	mg.Deps(Init)
	return run("serve", "--addr", envOr("ADDR", ":8080"))
}
