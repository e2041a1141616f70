// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package container runs one-shot tool containers (poppler's pdftotext)
// under docker or podman, piping the PDF on stdin and reading text on
// stdout.
package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"
)

// Supported runtimes, in detection order.
var runtimeNames = []string{"docker", "podman"}

// ErrNoRuntime is returned when no supported runtime works.
var ErrNoRuntime = errors.New("no container runtime available")

// probeTimeout bounds the "info" call used to check that a daemon answers.
const probeTimeout = 10 * time.Second

// sandboxArgs isolate tool containers: no network, a read-only root and
// bounded memory and process counts.
var sandboxArgs = []string{
	"--rm", "-i",
	"--network", "none",
	"--read-only",
	"--memory", "1g",
	"--pids-limit", "64",
	"--security-opt", "no-new-privileges",
}

// Runtime runs tool images.
type Runtime interface {
	// Name is the runtime binary, "docker" or "podman".
	Name() string

	// HasImage reports whether image is present locally.
	HasImage(ctx context.Context, image string) (bool, error)

	// Pull downloads image.
	Pull(ctx context.Context, image string) error

	// Run starts image with args in a sandbox, streaming stdin and stdout.
	Run(ctx context.Context, image string, args []string, stdin io.Reader, stdout io.Writer) error
}

// EnsureImage pulls image into rt unless it is already present.
func EnsureImage(ctx context.Context, rt Runtime, image string) error {
	ok, err := rt.HasImage(ctx, image)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	if err := rt.Pull(ctx, image); err != nil {
		return fmt.Errorf("pulling %s with %s: %w", image, rt.Name(), err)
	}
	return nil
}

// command runs name with args. Stdin and stdout may be nil.
type command func(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error

// cli drives a runtime binary through its command line.
type cli struct {
	bin string
	run command
}

func (c *cli) Name() string { return c.bin }

func (c *cli) HasImage(ctx context.Context, image string) (bool, error) {
	err := c.run(ctx, c.bin, []string{"image", "inspect", "--format", "{{.Id}}", image}, nil, io.Discard)
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &exitErr):
		return false, nil
	default:
		return false, fmt.Errorf("inspecting %s with %s: %w", image, c.bin, err)
	}
}

func (c *cli) Pull(ctx context.Context, image string) error {
	return c.run(ctx, c.bin, []string{"pull", "--quiet", image}, nil, io.Discard)
}

func (c *cli) Run(ctx context.Context, image string, args []string, stdin io.Reader, stdout io.Writer) error {
	full := make([]string, 0, 1+len(sandboxArgs)+1+len(args))
	full = append(full, "run")
	full = append(full, sandboxArgs...)
	full = append(full, image)
	full = append(full, args...)

	if err := c.run(ctx, c.bin, full, stdin, stdout); err != nil {
		return fmt.Errorf("running %s in %s: %w", image, c.bin, err)
	}
	return nil
}

// works reports whether the binary is on PATH and its daemon answers.
func (c *cli) works(lookPath func(string) (string, error)) bool {
	if _, err := lookPath(c.bin); err != nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	return c.run(ctx, c.bin, []string{"info"}, nil, io.Discard) == nil
}

// execCommand runs a real process, folding stderr into the returned error.
func execCommand(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

// Detect returns the runtime named preferred, or the first working one of
// docker and podman when preferred is empty.
func Detect(preferred string) (Runtime, error) {
	return detect(preferred, exec.LookPath, execCommand)
}

func detect(preferred string, lookPath func(string) (string, error), run command) (Runtime, error) {
	candidates := runtimeNames
	if preferred != "" {
		known := false
		for _, n := range runtimeNames {
			known = known || n == preferred
		}
		if !known {
			return nil, fmt.Errorf("unsupported container runtime %q: use %s", preferred, strings.Join(runtimeNames, " or "))
		}
		candidates = []string{preferred}
	}

	for _, name := range candidates {
		c := &cli{bin: name, run: run}
		if c.works(lookPath) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: tried %s", ErrNoRuntime, strings.Join(candidates, ", "))
}
