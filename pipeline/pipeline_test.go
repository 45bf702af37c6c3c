package pipeline_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/ngstk/pipeline"
	"github.com/grailbio/ngstk/pipeline/pipelinetest"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputTrimsTrailingSpace(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	prog := pipelinetest.Script(t, dir, "tool", `printf '  42\t\n\n'`)

	out, err := pipeline.Output(context.Background(), pipeline.Stage{prog})
	require.NoError(t, err)
	assert.Equal(t, "  42", out)
}

func TestOutputPassesArgsVerbatim(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	prog := pipelinetest.Script(t, dir, "echoargs", `for a in "$@"; do echo "[$a]"; done`)

	out, err := pipeline.Output(context.Background(),
		pipeline.Stage{prog, "-c", "my file.bam", "x;$(touch pwned)|y"})
	require.NoError(t, err)
	assert.Equal(t, "[-c]\n[my file.bam]\n[x;$(touch pwned)|y]", out)
	_, err = ioutil.ReadFile(filepath.Join(dir, "pwned"))
	assert.Error(t, err)
}

func TestOutputPipes(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	src := pipelinetest.Script(t, dir, "src", "echo a; echo b; echo c")
	prefix := pipelinetest.Script(t, dir, "prefix", `while read l; do echo "$1$l"; done`)
	count := pipelinetest.Script(t, dir, "count", `n=0; while read l; do n=$((n+1)); done; echo "   $n"`)

	out, err := pipeline.Output(context.Background(),
		pipeline.Stage{src}, pipeline.Stage{prefix, ">"})
	require.NoError(t, err)
	assert.Equal(t, ">a\n>b\n>c", out)

	out, err = pipeline.Output(context.Background(),
		pipeline.Stage{src}, pipeline.Stage{prefix, "-"}, pipeline.Stage{count})
	require.NoError(t, err)
	assert.Equal(t, "   3", out)
}

func TestOutputEarlyConsumerExit(t *testing.T) {
	pipelinetest.RequireTools(t, "yes")
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	first := pipelinetest.Script(t, dir, "first", `read l; echo "$l"`)

	out, err := pipeline.Output(context.Background(), pipeline.Stage{"yes", "row"}, pipeline.Stage{first})
	require.NoError(t, err)
	assert.Equal(t, "row", out)
}

func TestOutputExitError(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	prog := pipelinetest.Script(t, dir, "fail", "echo partial; echo 'no such file' >&2; exit 3")

	_, err := pipeline.Output(context.Background(), pipeline.Stage{prog, "x.bam"})
	require.Error(t, err)
	require.True(t, pipeline.IsExitError(err), "%v", err)
	exitErr := err.(*pipeline.ExitError)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, pipeline.Stage{prog, "x.bam"}, exitErr.Argv)
	assert.Contains(t, exitErr.Stderr, "no such file")
	assert.Contains(t, err.Error(), "no such file")
	assert.False(t, pipeline.IsUnavailable(err))

	// A failure upstream is reported even though the last stage succeeded.
	ok := pipelinetest.Script(t, dir, "ok", "cat >/dev/null; echo 0")
	_, err = pipeline.Output(context.Background(), pipeline.Stage{prog}, pipeline.Stage{ok})
	require.True(t, pipeline.IsExitError(err), "%v", err)
}

func TestUnavailable(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	notExec := filepath.Join(dir, "notexec")
	require.NoError(t, ioutil.WriteFile(notExec, []byte("#!/bin/sh\n"), 0644))

	for _, prog := range []string{"ngstk-no-such-program", filepath.Join(dir, "missing"), notExec, ""} {
		_, err := pipeline.LookPath(prog)
		assert.True(t, pipeline.IsUnavailable(err), "%q: %v", prog, err)
		_, err = pipeline.Output(context.Background(), pipeline.Stage{prog})
		assert.True(t, pipeline.IsUnavailable(err), "%q: %v", prog, err)
	}
}

func TestInvalidStages(t *testing.T) {
	_, err := pipeline.Output(context.Background())
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
	_, err = pipeline.Output(context.Background(), pipeline.Stage{})
	assert.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestOutputTimeout(t *testing.T) {
	pipelinetest.RequireTools(t, "sleep")
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	prog := pipelinetest.Script(t, dir, "stall", "exec sleep 30")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := pipeline.Output(ctx, pipeline.Stage{prog})
	assert.True(t, errors.Is(errors.Timeout, err), "%v", err)
	assert.True(t, time.Since(start) < 10*time.Second)
}

func TestOutputCanceled(t *testing.T) {
	pipelinetest.RequireTools(t, "true", "sleep")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := pipeline.Output(ctx, pipeline.Stage{"true"})
	assert.True(t, errors.Is(errors.Canceled, err), "%v", err)
	assert.False(t, pipeline.IsUnavailable(err), "%v", err)

	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	prog := pipelinetest.Script(t, dir, "stall", "exec sleep 30")
	ctx, cancel = context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	_, err = pipeline.Output(ctx, pipeline.Stage{prog})
	assert.True(t, errors.Is(errors.Canceled, err), "%v", err)
}

func TestContextErr(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(errors.Canceled, pipeline.ContextErr(ctx, "x")))

	ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	err := pipeline.ContextErr(ctx, "x")
	assert.True(t, errors.Is(errors.Timeout, err), "%v", err)
	assert.False(t, errors.Is(errors.Canceled, err), "%v", err)
}
