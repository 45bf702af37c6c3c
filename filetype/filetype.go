// Package filetype classifies sequencing files (BAM, SAM, FASTQ, gzipped
// FASTQ) by their name. The content of a file is never inspected.
//
// Matching is case sensitive: "x.BAM" is not a BAM file as far as this
// package is concerned.
package filetype

import (
	"fmt"
	"strings"

	"github.com/grailbio/base/errors"
)

// Format is the sequencing format implied by a file name.
type Format int

const (
	// Unknown is a sentinel.
	Unknown Format = iota
	// BAM file
	BAM
	// SAM file
	SAM
	// FASTQ is an uncompressed FASTQ file.
	FASTQ
	// FASTQGz is a gzipped FASTQ file.
	FASTQGz
)

// String returns the conventional extension of the format, without the dot.
func (f Format) String() string {
	switch f {
	case BAM:
		return "bam"
	case SAM:
		return "sam"
	case FASTQ:
		return "fastq"
	case FASTQGz:
		return "fastq.gz"
	default:
		return "unknown"
	}
}

// IsFASTQ reports whether f is FASTQ, zipped or not.
func (f Format) IsFASTQ() bool { return f == FASTQ || f == FASTQGz }

// suffix holds the two views of a name's suffix that the classifier looks
// at.
type suffix struct {
	// ext is the trailing extension of the base name, including the dot. Dots
	// that start the base name do not begin an extension, so ".bam" has none.
	ext string
	// last2 are the final two dot-delimited components of the whole name. It
	// has fewer than two elements if the name has no dot.
	last2 []string
}

func suffixOf(name string) suffix {
	var s suffix
	sep := strings.LastIndexByte(name, '/')
	if dot := strings.LastIndexByte(name, '.'); dot > sep {
		for i := sep + 1; i < dot; i++ {
			if name[i] != '.' {
				s.ext = name[dot:]
				break
			}
		}
	}
	parts := strings.Split(name, ".")
	if n := len(parts); n >= 2 {
		s.last2 = parts[n-2:]
	} else {
		s.last2 = parts
	}
	return s
}

func (s suffix) gzippedFASTQ() bool {
	if len(s.last2) != 2 || s.last2[1] != "gz" {
		return false
	}
	return s.last2[0] == "fq" || s.last2[0] == "fastq"
}

// IsSAMOrBAM reports whether the name has a .sam or .bam extension.
func IsSAMOrBAM(name string) bool {
	ext := suffixOf(name).ext
	return ext == ".bam" || ext == ".sam"
}

// IsUnzippedFASTQ reports whether the name has a .fastq or .fq extension.
func IsUnzippedFASTQ(name string) bool {
	ext := suffixOf(name).ext
	return ext == ".fastq" || ext == ".fq"
}

// IsGzippedFASTQ reports whether the last two dot-separated components of
// the name are "fq" and "gz", or "fastq" and "gz".
//
// Unlike the other predicates this looks at the whole name rather than the
// base name's extension, so a bare "fq.gz" qualifies.
func IsGzippedFASTQ(name string) bool {
	return suffixOf(name).gzippedFASTQ()
}

// IsFASTQ reports whether the name looks like a FASTQ file, gzipped or not.
func IsFASTQ(name string) bool {
	return IsUnzippedFASTQ(name) || IsGzippedFASTQ(name)
}

// Classify returns the format of the named file using the predicates above,
// in the order the read counters dispatch on them. It returns an error of
// kind errors.NotSupported for any other name.
func Classify(name string) (Format, error) {
	s := suffixOf(name)
	switch {
	case s.ext == ".bam":
		return BAM, nil
	case s.ext == ".sam":
		return SAM, nil
	case s.gzippedFASTQ():
		return FASTQGz, nil
	case s.ext == ".fastq" || s.ext == ".fq":
		return FASTQ, nil
	}
	return Unknown, unsupported(fmt.Sprintf(
		"%s: expected a .bam, .sam, .fastq, .fq, .fastq.gz or .fq.gz file", name))
}

// Ext returns the standardized extension of the input file: ".bam",
// ".fastq.gz" or ".fastq". SAM files are not accepted.
func Ext(name string) (string, error) {
	switch {
	case strings.HasSuffix(name, ".bam"):
		return ".bam", nil
	case strings.HasSuffix(name, ".fastq.gz"), strings.HasSuffix(name, ".fq.gz"):
		return ".fastq.gz", nil
	case strings.HasSuffix(name, ".fastq"), strings.HasSuffix(name, ".fq"):
		return ".fastq", nil
	}
	return "", unsupported(fmt.Sprintf(
		"'%s'; this pipeline can only deal with .bam, .fastq, or .fastq.gz files", name))
}

// Parse returns BAM or FASTQ for BAM-like and FASTQ-like (zipped or not)
// names. SAM files are not accepted.
func Parse(name string) (Format, error) {
	switch {
	case strings.HasSuffix(name, ".bam"):
		return BAM, nil
	case strings.HasSuffix(name, ".fastq"),
		strings.HasSuffix(name, ".fq"),
		strings.HasSuffix(name, ".fq.gz"),
		strings.HasSuffix(name, ".fastq.gz"):
		return FASTQ, nil
	}
	return Unknown, unsupported(
		"input file extension is neither BAM- nor FASTQ-like: " + name)
}

func unsupported(msg string) error {
	return errors.E(errors.NotSupported, "unsupported file type:", msg)
}

// IsUnsupported reports whether err was caused by an unsupported file type.
func IsUnsupported(err error) bool {
	return errors.Is(errors.NotSupported, err)
}
