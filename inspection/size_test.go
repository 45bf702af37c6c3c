package inspection

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTotalSizeGB(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	a := filepath.Join(dir, "a.bam")
	b := filepath.Join(dir, "b.fq.gz")
	missing := filepath.Join(dir, "missing.bam")
	require.NoError(t, ioutil.WriteFile(a, make([]byte, 1024), 0644))
	require.NoError(t, ioutil.WriteFile(b, make([]byte, 3072), 0644))
	const kb = 1024.0 / (1 << 30)

	tests := []struct {
		paths []string
		want  float64
	}{
		{nil, 0},
		{[]string{}, 0},
		{[]string{""}, 0},
		{[]string{"   "}, 0},
		{[]string{a}, kb},
		{[]string{a + " " + b}, 4 * kb},
		{[]string{a + "  \t" + b + " "}, 4 * kb},
		{[]string{a, b}, 4 * kb},
		{[]string{a + " " + b, a}, 5 * kb},
		// Missing files count as zero.
		{[]string{missing}, 0},
		{[]string{a + " " + missing}, kb},
		{[]string{missing + " " + b, missing}, 3 * kb},
	}
	for _, test := range tests {
		got, err := TotalSizeGB(ctx, test.paths)
		require.NoError(t, err, "%v", test.paths)
		assert.InDelta(t, test.want, got, 1e-15, "%v", test.paths)
	}
}

func TestTotalSizeGBStrict(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()
	a := filepath.Join(dir, "a.bam")
	require.NoError(t, ioutil.WriteFile(a, make([]byte, 1<<20), 0644))

	got, err := TotalSizeGB(ctx, []string{a}, SizeOpts{Strict: true})
	require.NoError(t, err)
	assert.Equal(t, 1.0/1024, got)

	missing := filepath.Join(dir, "missing.bam")
	_, err = TotalSizeGB(ctx, []string{a + " " + missing}, SizeOpts{Strict: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), missing)
}
