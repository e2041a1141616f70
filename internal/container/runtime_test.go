// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package container

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a fake command runner. Commands listed in fail return an
// error; everything else succeeds and writes out to stdout.
type recorder struct {
	calls []string
	fail  map[string]error
	out   string
	stdin string
}

func (r *recorder) run(_ context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	line := name + " " + strings.Join(args, " ")
	r.calls = append(r.calls, line)
	for prefix, err := range r.fail {
		if strings.HasPrefix(line, prefix) {
			return err
		}
	}
	if stdin != nil {
		b, _ := io.ReadAll(stdin)
		r.stdin = string(b)
	}
	if stdout != nil {
		io.WriteString(stdout, r.out)
	}
	return nil
}

func onPath(bins ...string) func(string) (string, error) {
	return func(file string) (string, error) {
		for _, b := range bins {
			if b == file {
				return "/usr/bin/" + file, nil
			}
		}
		return "", exec.ErrNotFound
	}
}

// exitError is an *exec.ExitError from a process that exited non-zero.
func exitError(t *testing.T) error {
	t.Helper()
	err := exec.Command("sh", "-c", "exit 1").Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Skip("no sh to produce an exit error")
	}
	return err
}

func TestDetect(t *testing.T) {
	broken := errors.New("cannot connect to daemon")
	tests := []struct {
		name      string
		preferred string
		path      []string
		fail      map[string]error
		want      string
		wantErr   string
	}{
		{"docker first", "", []string{"docker", "podman"}, nil, "docker", ""},
		{"podman when docker missing", "", []string{"podman"}, nil, "podman", ""},
		{"podman when docker daemon down", "", []string{"docker", "podman"}, map[string]error{"docker info": broken}, "podman", ""},
		{"preferred podman", "podman", []string{"docker", "podman"}, nil, "podman", ""},
		{"preferred missing", "podman", []string{"docker"}, nil, "", "tried podman"},
		{"none", "", nil, nil, "", "no container runtime available"},
		{"unsupported", "lxc", []string{"lxc"}, nil, "", `unsupported container runtime "lxc"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{fail: tt.fail}
			rt, err := detect(tt.preferred, onPath(tt.path...), rec.run)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rt.Name())
		})
	}
}

func TestDetect_NoRuntimeSentinel(t *testing.T) {
	_, err := detect("", onPath(), (&recorder{}).run)
	assert.ErrorIs(t, err, ErrNoRuntime)
}

func TestRun_SandboxAndPipes(t *testing.T) {
	rec := &recorder{out: "page text\f"}
	c := &cli{bin: "podman", run: rec.run}

	var out strings.Builder
	err := c.Run(context.Background(), "minidocks/poppler", []string{"pdftotext", "-", "-"}, strings.NewReader("%PDF-1.4"), &out)
	require.NoError(t, err)

	assert.Equal(t, "page text\f", out.String())
	assert.Equal(t, "%PDF-1.4", rec.stdin)
	require.Len(t, rec.calls, 1)
	call := rec.calls[0]
	assert.True(t, strings.HasPrefix(call, "podman run --rm -i --network none --read-only"), call)
	assert.True(t, strings.HasSuffix(call, "minidocks/poppler pdftotext - -"), call)
}

func TestRun_Error(t *testing.T) {
	rec := &recorder{fail: map[string]error{"docker run": errors.New("exit status 125: no such image")}}
	c := &cli{bin: "docker", run: rec.run}
	err := c.Run(context.Background(), "img", nil, nil, io.Discard)
	assert.ErrorContains(t, err, "running img in docker")
	assert.ErrorContains(t, err, "no such image")
}

func TestHasImage(t *testing.T) {
	rec := &recorder{}
	c := &cli{bin: "docker", run: rec.run}
	ok, err := c.HasImage(context.Background(), "img")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "docker image inspect --format {{.Id}} img", rec.calls[0])

	rec.fail = map[string]error{"docker image inspect": exitError(t)}
	ok, err = c.HasImage(context.Background(), "img")
	require.NoError(t, err)
	assert.False(t, ok)

	rec.fail = map[string]error{"docker image inspect": exec.ErrNotFound}
	_, err = c.HasImage(context.Background(), "img")
	assert.Error(t, err)
}

func TestEnsureImage(t *testing.T) {
	rec := &recorder{}
	c := &cli{bin: "docker", run: rec.run}
	require.NoError(t, EnsureImage(context.Background(), c, "img"))
	assert.Len(t, rec.calls, 1, "present image is not pulled")

	rec.calls = nil
	rec.fail = map[string]error{"docker image inspect": exitError(t)}
	require.NoError(t, EnsureImage(context.Background(), c, "img"))
	assert.Equal(t, []string{"docker image inspect --format {{.Id}} img", "docker pull --quiet img"}, rec.calls)

	rec.fail["docker pull"] = errors.New("network unreachable")
	err := EnsureImage(context.Background(), c, "img")
	assert.ErrorContains(t, err, "pulling img with docker")
}
