// Package inspection estimates properties of sequencing files without
// reading them in full: read lengths and pairing from a sample of a BAM, and
// on-disk sizes.
package inspection

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/ngstk/pipeline"
	"github.com/grailbio/ngstk/samtools"
)

// unavailableHint is attached to the error returned when the viewing
// program cannot be run.
const unavailableHint = "samtools is needed to sample read lengths and read type " +
	"from BAM inputs; install it or point PeekOpts.ProgramPath at it"

// PeekOpts controls PeekReadLengths.
type PeekOpts struct {
	// ProgramPath is the samtools executable. Defaults to "samtools" in $PATH.
	ProgramPath string
	// Timeout bounds the whole sampling call. Zero means no limit.
	Timeout time.Duration
}

// DefaultPeekOpts is the default value of PeekOpts.
var DefaultPeekOpts = PeekOpts{
	ProgramPath: samtools.DefaultProgram,
}

func mergePeekOpts(optList []PeekOpts) PeekOpts {
	opts := DefaultPeekOpts
	for _, o := range optList {
		if o.ProgramPath != "" {
			opts.ProgramPath = o.ProgramPath
		}
		if o.Timeout != 0 {
			opts.Timeout = o.Timeout
		}
	}
	return opts
}

// PeekResult holds the read statistics gathered from a sample of records.
// It is immutable; accessors return copies.
type PeekResult struct {
	readLengths map[int]int
	paired      int
}

// ReadLengths returns the number of sampled records for each sequence
// length.
func (r PeekResult) ReadLengths() map[int]int {
	m := make(map[int]int, len(r.readLengths))
	for k, v := range r.readLengths {
		m[k] = v
	}
	return m
}

// Paired returns the number of sampled records with the paired flag (0x1)
// set.
func (r PeekResult) Paired() int { return r.paired }

// Total returns the number of sampled records.
func (r PeekResult) Total() int {
	n := 0
	for _, v := range r.readLengths {
		n += v
	}
	return n
}

// ModeReadLength returns the most frequently observed read length, the
// longest one on ties. It returns 0 if nothing was sampled.
func (r PeekResult) ModeReadLength() int {
	lengths := make([]int, 0, len(r.readLengths))
	for k := range r.readLengths {
		lengths = append(lengths, k)
	}
	sort.Ints(lengths)
	mode, best := 0, 0
	for _, k := range lengths {
		if r.readLengths[k] >= best {
			mode, best = k, r.readLengths[k]
		}
	}
	return mode
}

// IsPairedEnd reports whether more than half of the sampled records are
// paired.
func (r PeekResult) IsPairedEnd() bool {
	total := r.Total()
	return total > 0 && r.paired*2 > total
}

// String formats the result as "length:count" pairs in increasing length
// order followed by the paired count.
func (r PeekResult) String() string {
	lengths := make([]int, 0, len(r.readLengths))
	for k := range r.readLengths {
		lengths = append(lengths, k)
	}
	sort.Ints(lengths)
	parts := make([]string, len(lengths))
	for i, k := range lengths {
		parts[i] = fmt.Sprintf("%d:%d", k, r.readLengths[k])
	}
	return fmt.Sprintf("{read_lengths: {%s}, paired: %d}", strings.Join(parts, ", "), r.paired)
}

// PeekReadLengths runs "samtools view bam" and reads at most sampleSize
// records from its output. For each record it counts the length of the
// sequence field (the 10th column), and whether the paired flag is set.
//
// If the file holds fewer than sampleSize records, the statistics of those
// that were read are returned. The samtools process is killed once enough
// records have been read, and on every error path.
//
// If samtools cannot be run the error is of kind errors.Unavailable. A
// malformed record yields an errors.Invalid error, a non-zero samtools exit
// a *pipeline.ExitError. If ctx ends or PeekOpts.Timeout passes first, the
// error is of kind errors.Timeout, or errors.Canceled after a cancel.
func PeekReadLengths(ctx context.Context, bam string, sampleSize int, opts ...PeekOpts) (result PeekResult, err error) {
	o := mergePeekOpts(opts)
	if sampleSize < 0 {
		return result, errors.E(errors.Invalid, fmt.Sprintf("PeekReadLengths %s: negative sample size %d", bam, sampleSize))
	}
	result.readLengths = map[int]int{}
	if sampleSize == 0 {
		return result, nil
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	argv := samtools.ViewStage(o.ProgramPath, bam)
	if ctx.Err() != nil {
		return PeekResult{}, pipeline.ContextErr(ctx, argv.String())
	}
	cmd, err := pipeline.Command(ctx, argv)
	if err != nil {
		return PeekResult{}, errors.E(errors.Unavailable, unavailableHint, err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return PeekResult{}, err
	}
	if err = cmd.Start(); err != nil {
		if ctx.Err() != nil {
			return PeekResult{}, pipeline.ContextErr(ctx, argv.String())
		}
		return PeekResult{}, errors.E(errors.Unavailable, unavailableHint, err)
	}
	exited := false
	defer func() {
		if exited {
			return
		}
		// Records beyond the sample are never read, so samtools would block
		// writing them.
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	r := bufio.NewReaderSize(stdout, 64<<10)
	for i := 0; i < sampleSize; i++ {
		line, readErr := r.ReadString('\n')
		if readErr == io.EOF && line == "" {
			// Fewer records than requested. Find out whether samtools simply
			// ran out of records or failed.
			exited = true
			waitErr := cmd.Wait()
			if ctx.Err() != nil {
				return PeekResult{}, pipeline.ContextErr(ctx, argv.String())
			}
			if waitErr != nil {
				if e, ok := waitErr.(*exec.ExitError); ok {
					return PeekResult{}, &pipeline.ExitError{Argv: argv, Code: e.ExitCode(), Stderr: stderr.String(), Err: e}
				}
				return PeekResult{}, errors.E(argv.String(), waitErr)
			}
			log.Debug.Printf("PeekReadLengths %s: only %d of %d records available", bam, i, sampleSize)
			break
		}
		if readErr != nil && ctx.Err() != nil {
			// A killed samtools leaves a truncated last line.
			return PeekResult{}, pipeline.ContextErr(ctx, argv.String())
		}
		if readErr != nil && readErr != io.EOF {
			return PeekResult{}, errors.E(fmt.Sprintf("PeekReadLengths %s: read record %d", bam, i), readErr)
		}
		length, paired, parseErr := parseRecord(line)
		if parseErr != nil {
			if ctx.Err() != nil {
				return PeekResult{}, pipeline.ContextErr(ctx, argv.String())
			}
			return PeekResult{}, errors.E(errors.Invalid,
				fmt.Sprintf("PeekReadLengths %s: record %d", bam, i), parseErr)
		}
		result.readLengths[length]++
		if paired {
			result.paired++
		}
	}
	return result, nil
}

// parseRecord returns the length of the SEQ field of a SAM text record and
// whether its FLAG has the paired bit set.
func parseRecord(line string) (length int, paired bool, err error) {
	line = strings.TrimRight(line, "\r\n")
	fields := strings.SplitN(line, "\t", 11)
	if len(fields) < 10 {
		return 0, false, fmt.Errorf("want at least 10 tab-separated fields, got %d: %q", len(fields), line)
	}
	flag, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return 0, false, fmt.Errorf("bad flag %q: %v", fields[1], err)
	}
	return len(fields[9]), sam.Flags(flag)&sam.Paired != 0, nil
}
