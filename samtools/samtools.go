// Package samtools invokes "samtools view" (or a compatible program) and
// returns its text output.
package samtools

import (
	"context"
	"strings"

	"github.com/grailbio/ngstk/pipeline"
)

// DefaultProgram is the program run when no path is given.
const DefaultProgram = "samtools"

// View runs "prog view params... path" and returns its standard output with
// trailing whitespace removed. If postpend stages are given, the output of
// the view command is piped through them in order and the output of the last
// one is returned.
//
// The params are not validated; a non-zero exit from any stage is returned
// as a *pipeline.ExitError. If prog is empty, DefaultProgram is used.
func View(ctx context.Context, path string, params []string, prog string, postpend ...pipeline.Stage) (string, error) {
	if prog == "" {
		prog = DefaultProgram
	}
	stages := make([]pipeline.Stage, 0, 1+len(postpend))
	stages = append(stages, ViewStage(prog, path, params...))
	stages = append(stages, postpend...)
	return pipeline.Output(ctx, stages...)
}

// ViewStage returns the argv of "prog view params... path".
func ViewStage(prog, path string, params ...string) pipeline.Stage {
	s := make(pipeline.Stage, 0, len(params)+3)
	s = append(s, prog, "view")
	s = append(s, params...)
	return append(s, path)
}

// SplitParams splits a parameter string such as "-c -f512 -S" into
// arguments. Quotes are not interpreted.
func SplitParams(params string) []string {
	return strings.Fields(params)
}
