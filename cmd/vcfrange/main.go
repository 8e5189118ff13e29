package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chriskuehl/vcfrange/cmd/internal/cli"
	"github.com/chriskuehl/vcfrange/variants"
	"github.com/chriskuehl/vcfrange/variants/config"
	"github.com/chriskuehl/vcfrange/variants/config/loader"
	"github.com/chriskuehl/vcfrange/variants/logging"
	"github.com/chriskuehl/vcfrange/variants/reader"
	"github.com/chriskuehl/vcfrange/variants/record"
	"github.com/chriskuehl/vcfrange/variants/utils"
)

// This will be set by the linker for release builds.
var version = "(dev)"

type app struct {
	stdout      io.Writer
	stderr      io.Writer
	configPaths []string
}

func (a *app) config(cmd *cobra.Command) (*config.Config, error) {
	conf := variants.NewConfig()
	conf.Version = version
	paths := a.configPaths
	if extra, _ := cmd.Flags().GetString("config"); extra != "" {
		if _, err := os.Stat(extra); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", extra, err)
		}
		paths = append(paths, extra)
	}
	if err := cli.LoadConfig(conf, paths); err != nil {
		return nil, err
	}
	return conf, nil
}

func (a *app) logger(cmd *cobra.Command) logging.Logger {
	debugLogs, _ := cmd.Flags().GetBool("debug")
	return cli.NewLogger(a.stderr, debugLogs)
}

type jsonRecord struct {
	Object string `json:"object"`
	Contig string `json:"contig"`
	Pos    uint64 `json:"pos"`
	Ref    string `json:"ref"`
	Alt    string `json:"alt"`
}

func (a *app) queryCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "query url [url ...]",
		Short: "Print the records of one or more objects that fall inside a region",
		Long: `Print the records of one or more objects that fall inside a region.

Example usage:

    All records on contig 1 between 200 and 400 (inclusive):
        vcfrange query --contig 1 --start 200 --end 400 s3://my-bucket/vcf/chr1.bin

    Several contigs at once, as JSON lines:
        vcfrange query --start 1000 --end 2000 --json gs://b/chr1.bin#1 gs://b/chr2.bin#2
`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			contig, _ := cmd.Flags().GetString("contig")
			start, _ := cmd.Flags().GetUint64("start")
			end, _ := cmd.Flags().GetUint64("end")
			halfOpen, _ := cmd.Flags().GetBool("half-open")
			asJSON, _ := cmd.Flags().GetBool("json")

			conf, err := a.config(cmd)
			if err != nil {
				return err
			}
			if conf.StorageBackend == nil {
				backend, err := cli.BackendForURL(args[0])
				if err != nil {
					return err
				}
				conf.StorageBackend = backend
			}

			targets := make([]reader.Target, 0, len(args))
			for _, arg := range args {
				target, err := variants.ParseTarget(arg, contig)
				if err != nil {
					return fmt.Errorf("parsing %q: %w", arg, err)
				}
				targets = append(targets, target)
			}

			region := record.Region{Contig: contig, Start: start, End: end, Bounds: conf.Bounds}
			if halfOpen {
				region.Bounds = record.HalfOpen
			}

			results, err := variants.Query(ctx, a.logger(cmd), conf, targets, region)
			if err != nil {
				return err
			}

			out := bufio.NewWriter(a.stdout)
			enc := json.NewEncoder(out)
			if !asJSON {
				fmt.Fprintln(out, cli.Bold(a.stdout, "#contig\tpos\tref\talt"))
			}
			var matched, bytesRead int64
			for _, result := range results {
				bytesRead += result.Stats.BytesRead
				for _, rec := range result.Records {
					matched++
					if asJSON {
						if err := enc.Encode(jsonRecord{
							Object: result.Target.Locator.String(),
							Contig: rec.Contig,
							Pos:    rec.Pos,
							Ref:    rec.Ref,
							Alt:    rec.Alt,
						}); err != nil {
							return fmt.Errorf("encoding record: %w", err)
						}
					} else {
						fmt.Fprintf(out, "%s\t%d\t%s\t%s\n", rec.Contig, rec.Pos, rec.Ref, rec.Alt)
					}
				}
			}
			if err := out.Flush(); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}
			fmt.Fprintf(
				a.stderr, "%s matched in %s (%s read)\n",
				utils.CountNoun(matched, "record"),
				utils.CountNoun(int64(len(results)), "object"),
				utils.FormatBytes(bytesRead),
			)
			return nil
		},
	}
	command.Flags().String("contig", "", "contig to match; empty matches every contig")
	command.Flags().Uint64("start", 0, "first position of the region")
	command.Flags().Uint64("end", math.MaxUint64, "last position of the region")
	command.Flags().Bool("half-open", false, "exclude --end from the region")
	command.Flags().Bool("json", false, "print records as JSON lines")
	return command
}

// encodeTSV converts "pos<TAB>ref<TAB>alt" lines into the binary record format.
func encodeTSV(r io.Reader, w io.Writer) (int, error) {
	scanner := bufio.NewScanner(r)
	out := bufio.NewWriter(w)
	count := 0
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return count, fmt.Errorf("line %d: got %d fields, want 3", lineNo, len(fields))
		}
		pos, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return count, fmt.Errorf("line %d: parsing position: %w", lineNo, err)
		}
		if err := record.Encode(out, record.Record{Pos: pos, Ref: fields[1], Alt: fields[2]}); err != nil {
			return count, fmt.Errorf("line %d: %w", lineNo, err)
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("scanning: %w", err)
	}
	if err := out.Flush(); err != nil {
		return count, fmt.Errorf("flushing: %w", err)
	}
	return count, nil
}

func (a *app) encodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode in.tsv out.bin",
		Short: "Encode tab-separated pos/ref/alt lines as a binary variant object",
		Long: `Encode tab-separated pos/ref/alt lines as a binary variant object.

Use "-" as the input to read from stdin. Blank lines and lines starting with #
are skipped.
`,
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader
			if args[0] == "-" {
				in = os.Stdin
			} else {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening input: %w", err)
				}
				defer file.Close()
				in = file
			}
			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			n, err := encodeTSV(in, out)
			if closeErr := out.Close(); err == nil && closeErr != nil {
				err = fmt.Errorf("closing output: %w", closeErr)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "encoded %s\n", utils.CountNoun(int64(n), "record"))
			return nil
		},
	}
}

func (a *app) dumpConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:          "dump-config",
		Short:        "Print the effective configuration as TOML",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := a.config(cmd)
			if err != nil {
				return err
			}
			text, err := loader.DumpConfigTOML(conf)
			if err != nil {
				return err
			}
			fmt.Fprint(a.stdout, text)
			return nil
		},
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "vcfrange",
		Long:         cli.Description,
		SilenceUsage: true,
		Version:      version,
	}
	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		root.Version = fmt.Sprintf("%s/%s", version, buildInfo.GoVersion)
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	cli.AddCommonOpts(root)
	root.AddCommand(a.queryCommand(), a.encodeCommand(), a.dumpConfigCommand())
	return root
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	a := &app{
		stdout:      stdout,
		stderr:      stderr,
		configPaths: cli.ConfigPaths(),
	}
	root := a.rootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func main() {
	ctx := context.Background()
	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}
