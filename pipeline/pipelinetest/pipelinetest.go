// Package pipelinetest has helpers for tests that stand in for external
// programs with small shell scripts.
package pipelinetest

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"v.io/x/lib/envvar"
	"v.io/x/lib/lookpath"
)

// Script writes an executable /bin/sh script named name into dir and returns
// its path. body is everything after the interpreter line.
func Script(t *testing.T, dir, name, body string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, ioutil.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

// RequireTools skips the test unless every named program is in $PATH.
func RequireTools(t *testing.T, names ...string) {
	env := envvar.SliceToMap(os.Environ())
	for _, name := range names {
		if _, err := lookpath.Look(env, name); err != nil {
			t.Skipf("%s not found on the machine. Skipping the test", name)
		}
	}
}
