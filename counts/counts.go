// Package counts counts lines in text files and reads in SAM, BAM and FASTQ
// files. Line counting is delegated to wc (and gunzip for compressed input),
// read counting of alignment files to "samtools view -c".
package counts

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	"github.com/grailbio/ngstk/filetype"
	"github.com/grailbio/ngstk/pipeline"
	"github.com/grailbio/ngstk/samtools"
)

// Opts controls the counting functions.
type Opts struct {
	// Timeout bounds one call, whether it runs external commands or counts
	// in-process. Zero means no limit.
	Timeout time.Duration
	// LegacySentinel makes CountReads return -1 with a nil error for files
	// that are neither SAM/BAM nor FASTQ, instead of an errors.NotSupported
	// error.
	LegacySentinel bool
	// Native counts lines in-process rather than through wc and gunzip. The
	// path may then name any file supported by grailbio/base/file.
	Native bool
	// WcPath and GunzipPath name the line counting and decompression
	// programs.
	WcPath     string
	GunzipPath string
}

// DefaultOpts is the default value of Opts.
var DefaultOpts = Opts{
	WcPath:     "wc",
	GunzipPath: "gunzip",
}

func mergeOpts(optList []Opts) Opts {
	opts := DefaultOpts
	for _, o := range optList {
		if o.Timeout != 0 {
			opts.Timeout = o.Timeout
		}
		if o.LegacySentinel {
			opts.LegacySentinel = true
		}
		if o.Native {
			opts.Native = true
		}
		if o.WcPath != "" {
			opts.WcPath = o.WcPath
		}
		if o.GunzipPath != "" {
			opts.GunzipPath = o.GunzipPath
		}
	}
	return opts
}

func withTimeout(ctx context.Context, opts Opts) (context.Context, context.CancelFunc) {
	if opts.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, opts.Timeout)
}

// CountLines returns the number of newline characters in the file, as
// reported by "wc -l".
func CountLines(ctx context.Context, path string, opts ...Opts) (string, error) {
	o := mergeOpts(opts)
	ctx, cancel := withTimeout(ctx, o)
	defer cancel()
	if o.Native {
		return nativeCount(ctx, path, false)
	}
	out, err := pipeline.Output(ctx, pipeline.Stage{o.WcPath, "-l", path})
	if err != nil {
		return "", err
	}
	return firstField(path, out)
}

// CountLinesGzipped returns the number of newline characters in the
// decompressed contents of a gzip file, as reported by "gunzip -c | wc -l".
func CountLinesGzipped(ctx context.Context, path string, opts ...Opts) (string, error) {
	o := mergeOpts(opts)
	ctx, cancel := withTimeout(ctx, o)
	defer cancel()
	if o.Native {
		return nativeCount(ctx, path, true)
	}
	out, err := pipeline.Output(ctx,
		pipeline.Stage{o.GunzipPath, "-c", path},
		pipeline.Stage{o.WcPath, "-l"})
	if err != nil {
		return "", err
	}
	return firstField(path, out)
}

// firstField extracts the count from wc output. Some wc implementations pad
// the count with leading blanks, and wc prints the file name after it.
func firstField(path, out string) (string, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return "", errors.E(errors.Invalid, fmt.Sprintf("%s: no line count in output %q", path, out))
	}
	return fields[0], nil
}

// CountReads returns the number of reads in a SAM, BAM or FASTQ (optionally
// gzipped) file.
//
// SAM and BAM files are counted with "prog view -c". For FASTQ files the
// line count is divided by 4, or by 2 if pairedEnd is set: paired-end reads
// are assumed to be split across two files, one mate per file, and a pair
// counts as two reads. An interleaved paired-end FASTQ is therefore over
// counted by a factor of two.
//
// Other file types yield an errors.NotSupported error, or -1 if
// Opts.LegacySentinel is set.
func CountReads(ctx context.Context, path string, pairedEnd bool, prog string, opts ...Opts) (float64, error) {
	o := mergeOpts(opts)
	format, err := filetype.Classify(path)
	if err != nil {
		if o.LegacySentinel {
			log.Debug.Printf("CountReads %s: %v; returning -1", path, err)
			return -1, nil
		}
		return 0, err
	}
	switch format {
	case filetype.BAM, filetype.SAM:
		params := []string{"-c"}
		if format == filetype.SAM {
			params = append(params, "-S")
		}
		ctx, cancel := withTimeout(ctx, o)
		defer cancel()
		out, err := samtools.View(ctx, path, params, prog)
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
		if err != nil {
			return 0, errors.E(errors.Invalid, fmt.Sprintf("%s: unexpected read count %q", path, out), err)
		}
		return n, nil
	default:
		var lines string
		if format == filetype.FASTQGz {
			lines, err = CountLinesGzipped(ctx, path, o)
		} else {
			lines, err = CountLines(ctx, path, o)
		}
		if err != nil {
			return 0, err
		}
		n, err := strconv.ParseInt(lines, 10, 64)
		if err != nil {
			return 0, errors.E(errors.Invalid, fmt.Sprintf("%s: unexpected line count %q", path, lines), err)
		}
		divisor := 4.0
		if pairedEnd {
			divisor = 2
		}
		return float64(n) / divisor, nil
	}
}

// CountFlaggedReads returns the output of "prog view -c -f<flag>" on the
// file: the number of reads that have all the bits of flag set. "-S" is
// added when the path ends in "sam".
//
// pairedEnd is ignored; samtools handles paired data on its own. It is
// accepted so that all the counting functions can be swapped for one
// another.
func CountFlaggedReads(ctx context.Context, path string, flag int, pairedEnd bool, prog string, opts ...Opts) (string, error) {
	o := mergeOpts(opts)
	params := []string{"-c", "-f" + strconv.Itoa(flag)}
	if strings.HasSuffix(path, "sam") {
		params = append(params, "-S")
	}
	ctx, cancel := withTimeout(ctx, o)
	defer cancel()
	return samtools.View(ctx, path, params, prog)
}

// CountFailedReads returns the number of reads that failed platform/vendor
// quality checks (flag 0x200). pairedEnd is ignored, as in
// CountFlaggedReads.
func CountFailedReads(ctx context.Context, path string, pairedEnd bool, prog string, opts ...Opts) (int64, error) {
	out, err := CountFlaggedReads(ctx, path, int(sam.QCFail), pairedEnd, prog, opts...)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if err != nil {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("%s: unexpected read count %q", path, out), err)
	}
	return n, nil
}
