package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/classforge/classforge"
	"github.com/classforge/classforge/internal/version"
)

func main() {
	doMain(os.Stdout, os.Stderr, os.Exit)
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer, exit func(code int)) {
	flag.CommandLine.SetOutput(stdErr)

	var help bool
	flag.BoolVar(&help, "h", false, "print usage")

	flag.Parse()

	if help || flag.NArg() == 0 {
		printUsage(stdErr)
		exit(0)
	}

	subCmd := flag.Arg(0)
	switch subCmd {
	case "gen":
		doGen(flag.Args()[1:], stdOut, stdErr, exit)
	case "version":
		fmt.Fprintln(stdOut, version.GetClassforgeVersion())
		exit(0)
	default:
		fmt.Fprintln(stdErr, "invalid command")
		printUsage(stdErr)
		exit(1)
	}
}

func doGen(args []string, stdOut, stdErr io.Writer, exit func(code int)) {
	flags := flag.NewFlagSet("gen", flag.ExitOnError)
	flags.SetOutput(stdErr)

	var help bool
	flags.BoolVar(&help, "h", false, "print usage")

	outDir := flags.String("o", ".", "Directory to write class files to.")
	jarPath := flags.String("jar", "", "Writes the class files to this jar instead of a directory.")
	major := flags.Int("target", 55, "Major class file version, such as 55 for Java 11.")

	var debug bool
	flags.BoolVar(&debug, "debug", false, "Logs code generation to stderr, "+
		"and keeps a copy of every class file under <o>/debug.")

	_ = flags.Parse(args)

	if help {
		printGenUsage(stdErr, flags)
		exit(0)
	}

	if flags.NArg() < 1 {
		fmt.Fprintln(stdErr, "missing path to manifest file")
		printGenUsage(stdErr, flags)
		exit(1)
	}

	m, err := loadManifest(flags.Arg(0))
	if err != nil {
		fmt.Fprintf(stdErr, "error reading manifest: %v\n", err)
		exit(1)
	}

	logger := newLogger(stdErr, debug)
	defer func() { _ = logger.Sync() }()

	cfg := classforge.NewConfig().WithLogger(logger).WithVersion(*major)
	if debug {
		cfg = cfg.WithDebugDir(filepath.Join(*outDir, "debug"))
	}

	classes, err := generate(context.Background(), cfg, m)
	if err != nil {
		fmt.Fprintf(stdErr, "error generating classes: %v\n", err)
		exit(1)
	}

	var out sink
	dest := *outDir
	if *jarPath != "" {
		if out, err = newJarSink(*jarPath); err != nil {
			fmt.Fprintf(stdErr, "error creating jar: %v\n", err)
			exit(1)
		}
		dest = *jarPath
	} else {
		out = &dirSink{dir: *outDir}
	}

	var total uint64
	for i, b := range classes {
		name := m.className(m.Classes[i])
		if err = out.write(name, b); err != nil {
			_ = out.close()
			fmt.Fprintf(stdErr, "error writing %s: %v\n", name, err)
			exit(1)
		}
		total += uint64(len(b))
	}
	if err = out.close(); err != nil {
		fmt.Fprintln(stdErr, err)
		exit(1)
	}

	fmt.Fprintf(stdOut, "wrote %d classes (%s) to %s\n", len(classes), humanize.Bytes(total), dest)
	exit(0)
}

// generate builds the classes of a manifest concurrently. Each class has its
// own Context, and the results keep the manifest order.
func generate(ctx context.Context, cfg *classforge.Config, m *Manifest) ([][]byte, error) {
	classes := make([][]byte, len(m.Classes))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range m.Classes {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			decl := m.Classes[i]
			b, err := dataClass(cfg, m, decl)
			if err != nil {
				return fmt.Errorf("%s: %w", m.className(decl), err)
			}
			classes[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return classes, nil
}

// newLogger logs everything from debug level in development format when
// debugging, otherwise only warnings in JSON.
func newLogger(w io.Writer, debug bool) *zap.Logger {
	if debug {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		return zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zapcore.DebugLevel), zap.Development())
	}
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	return zap.New(zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(w)), zapcore.WarnLevel))
}

func printUsage(stdErr io.Writer) {
	fmt.Fprintln(stdErr, "classforge CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  classforge <command>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Commands:")
	fmt.Fprintln(stdErr, "  gen\t\tGenerates data classes from a TOML manifest")
	fmt.Fprintln(stdErr, "  version\tDisplays the version of classforge CLI")
}

func printGenUsage(stdErr io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(stdErr, "classforge CLI")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Usage:\n  classforge gen <options> <path to manifest file>")
	fmt.Fprintln(stdErr)
	fmt.Fprintln(stdErr, "Options:")
	flags.PrintDefaults()
}
