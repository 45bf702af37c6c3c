package cmd

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/ngstk/counts"
	"github.com/grailbio/ngstk/filetype"
	"github.com/grailbio/ngstk/inspection"
	"github.com/grailbio/ngstk/samtools"
	"v.io/x/lib/cmdline"
)

// countFlags are shared by the counting subcommands.
type countFlags struct {
	samtools *string
	paired   *bool
	opts     counts.Opts
}

func addCountFlags(cmd *cmdline.Command, withPaired bool) *countFlags {
	flags := &countFlags{
		samtools: cmd.Flags.String("samtools", samtools.DefaultProgram, "Path to the samtools executable"),
	}
	if withPaired {
		flags.paired = cmd.Flags.Bool("paired", false, "The file holds one mate of paired-end reads")
	} else {
		flags.paired = new(bool)
	}
	cmd.Flags.DurationVar(&flags.opts.Timeout, "timeout", 0, "Abort external commands after this long; 0 means no limit")
	cmd.Flags.BoolVar(&flags.opts.Native, "native", false, "Count lines in-process instead of running wc and gunzip")
	return flags
}

func oneArg(name string, argv []string) error {
	if len(argv) != 1 {
		return fmt.Errorf("%s takes one pathname argument, but got %v", name, argv)
	}
	return nil
}

func newCmdFiletype() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "filetype",
		Short:    "Print the sequencing format implied by each file name",
		ArgsName: "path...",
	}
	strict := cmd.Flags.Bool("strict", false, "Print the standardized extension (.bam, .fastq, .fastq.gz); SAM is not accepted")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("filetype takes at least one pathname")
		}
		return printFiletypes(env, argv, *strict)
	})
	return cmd
}

func printFiletypes(env *cmdline.Env, paths []string, strict bool) error {
	for _, path := range paths {
		var desc string
		if strict {
			ext, err := filetype.Ext(path)
			if err != nil {
				return err
			}
			desc = ext
		} else {
			format, err := filetype.Classify(path)
			if err != nil {
				return err
			}
			desc = format.String()
		}
		fmt.Fprintf(env.Stdout, "%s\t%s\n", path, desc)
	}
	return nil
}

func newCmdCountLines() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "count-lines",
		Short:    "Count the lines of a text file, gzipped or not",
		ArgsName: "path",
	}
	gzipped := cmd.Flags.Bool("gzip", false, "The file is gzipped")
	flags := addCountFlags(cmd, false)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := oneArg("count-lines", argv); err != nil {
			return err
		}
		count := counts.CountLines
		if *gzipped {
			count = counts.CountLinesGzipped
		}
		n, err := count(context.Background(), argv[0], flags.opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, n)
		return nil
	})
	return cmd
}

func newCmdCountReads() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "count-reads",
		Short: "Count the reads of a SAM, BAM or FASTQ file",
		Long: `
SAM and BAM files are counted with samtools. FASTQ files (optionally gzipped)
are counted by lines: lines/4, or lines/2 with -paired, since paired-end
mates are expected to be split across two files.`,
		ArgsName: "path",
	}
	flags := addCountFlags(cmd, true)
	cmd.Flags.BoolVar(&flags.opts.LegacySentinel, "legacy", false, "Print -1 instead of failing on unsupported file types")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := oneArg("count-reads", argv); err != nil {
			return err
		}
		n, err := counts.CountReads(context.Background(), argv[0], *flags.paired, *flags.samtools, flags.opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, strconv.FormatFloat(n, 'f', -1, 64))
		return nil
	})
	return cmd
}

func newCmdCountFlagged() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "count-flagged",
		Short:    "Count the reads of a SAM or BAM file that have all the given flag bits set",
		ArgsName: "path",
	}
	flag := cmd.Flags.Int("flag", 0, "SAM flag bits to require, e.g. 4 for unmapped reads")
	flags := addCountFlags(cmd, true)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := oneArg("count-flagged", argv); err != nil {
			return err
		}
		out, err := counts.CountFlaggedReads(context.Background(), argv[0], *flag, *flags.paired, *flags.samtools, flags.opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, out)
		return nil
	})
	return cmd
}

func newCmdCountFailed() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "count-failed",
		Short:    "Count the reads of a SAM or BAM file that failed platform/vendor quality checks",
		ArgsName: "path",
	}
	flags := addCountFlags(cmd, true)
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := oneArg("count-failed", argv); err != nil {
			return err
		}
		n, err := counts.CountFailedReads(context.Background(), argv[0], *flags.paired, *flags.samtools, flags.opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, n)
		return nil
	})
	return cmd
}

func newCmdView() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "view",
		Short:    "Run samtools view with the given parameters and print its output",
		ArgsName: "path",
	}
	params := cmd.Flags.String("params", "", `Parameters for samtools view, e.g. "-c -f4". Split on blanks; quotes are not interpreted`)
	prog := cmd.Flags.String("samtools", samtools.DefaultProgram, "Path to the samtools executable")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := oneArg("view", argv); err != nil {
			return err
		}
		out, err := samtools.View(context.Background(), argv[0], samtools.SplitParams(*params), *prog)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, out)
		return nil
	})
	return cmd
}

func newCmdPeek() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "peek",
		Short:    "Estimate read lengths and paired-end status from the first records of a BAM file",
		ArgsName: "path",
	}
	sampleSize := cmd.Flags.Int("n", 1000, "Number of records to sample")
	opts := inspection.PeekOpts{}
	cmd.Flags.StringVar(&opts.ProgramPath, "samtools", samtools.DefaultProgram, "Path to the samtools executable")
	cmd.Flags.DurationVar(&opts.Timeout, "timeout", 0, "Abort sampling after this long; 0 means no limit")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if err := oneArg("peek", argv); err != nil {
			return err
		}
		r, err := inspection.PeekReadLengths(context.Background(), argv[0], *sampleSize, opts)
		if err != nil {
			return err
		}
		printPeek(env, r)
		return nil
	})
	return cmd
}

func printPeek(env *cmdline.Env, r inspection.PeekResult) {
	readType := "single"
	if r.IsPairedEnd() {
		readType = "paired"
	}
	fmt.Fprintf(env.Stdout, "sampled\t%d\n", r.Total())
	fmt.Fprintf(env.Stdout, "paired\t%d\n", r.Paired())
	fmt.Fprintf(env.Stdout, "read_length\t%d\n", r.ModeReadLength())
	fmt.Fprintf(env.Stdout, "read_type\t%s\n", readType)
	fmt.Fprintf(env.Stdout, "histogram\t%v\n", r)
}

func newCmdSize() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "size",
		Short: "Print the total size of the files in gigabytes",
		Long: `
Each argument is a path or a blank-separated list of paths. Missing files
count as zero unless -strict is given.`,
		ArgsName: "path...",
	}
	opts := inspection.SizeOpts{}
	cmd.Flags.BoolVar(&opts.Strict, "strict", false, "Fail if a file cannot be stat'ed")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		gb, err := inspection.TotalSizeGB(context.Background(), argv, opts)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, formatSize(gb))
		return nil
	})
	return cmd
}

func registerFileImplementations() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

// Run is the entry point of bio-ngstk.
func Run() {
	registerFileImplementations()
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(newCmdRoot())
}

func newCmdRoot() *cmdline.Command {
	return &cmdline.Command{
		Name:     "bio-ngstk",
		Short:    "Counting and inspection helpers for BAM, SAM and FASTQ files",
		LookPath: false,
		Children: []*cmdline.Command{
			newCmdFiletype(),
			newCmdCountLines(),
			newCmdCountReads(),
			newCmdCountFlagged(),
			newCmdCountFailed(),
			newCmdView(),
			newCmdPeek(),
			newCmdSize(),
		},
	}
}
