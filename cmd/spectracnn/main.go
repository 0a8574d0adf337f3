// Package main provides the spectracnn command.
//
// Usage:
//
//	spectracnn [-config file] [-model-dir dir] train <learnFile> [validFile]
//	spectracnn [-config file] [-model-dir dir] net <learnFile> [validFile]
//	spectracnn [-config file] [-model-dir dir] predict <testFile>
//	spectracnn [-config file] [-model-dir dir] batch <folder>
//	spectracnn prune <learnFile> <minCount>
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/born-ml/spectra/internal/batch"
	"github.com/born-ml/spectra/internal/config"
	"github.com/born-ml/spectra/internal/dataset"
	"github.com/born-ml/spectra/internal/infer"
	"github.com/born-ml/spectra/internal/logging"
	"github.com/born-ml/spectra/internal/store"
	"github.com/born-ml/spectra/internal/train"
)

const version = "v0.1.0"

var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "spectracnn: %v\n", err)
		}
		os.Exit(1)
	}
}

// app carries what every subcommand needs.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("spectracnn", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "YAML configuration file (defaults are used when empty)")
	modelDir := fs.String("model-dir", "", "Directory holding model artifacts (overrides model_dir)")
	fs.Usage = func() { usage(stderr, fs) }
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errUsage
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}
	if *modelDir != "" {
		cfg.ModelDir = *modelDir
	}

	logger, err := logging.New(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}
	a := &app{cfg: cfg, logger: logger, out: stdout}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch {
	case cmd == "version":
		fmt.Fprintf(stdout, "spectracnn %s\n", version)
		return nil
	case cmd == "train" && (len(rest) == 1 || len(rest) == 2):
		return a.train(rest[0], optional(rest, 1))
	case cmd == "net" && (len(rest) == 1 || len(rest) == 2):
		return a.describe(rest[0], optional(rest, 1))
	case cmd == "predict" && len(rest) == 1:
		return a.predict(rest[0])
	case cmd == "batch" && len(rest) == 1:
		return a.batch(rest[0])
	case cmd == "prune" && len(rest) == 2:
		return a.prune(rest[0], rest[1])
	}
	fs.Usage()
	return errUsage
}

func usage(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  spectracnn [flags] train <learnFile> [validFile]   Train a model")
	fmt.Fprintln(w, "  spectracnn [flags] net <learnFile> [validFile]     Show the network without training")
	fmt.Fprintln(w, "  spectracnn [flags] predict <testFile>              Predict one file")
	fmt.Fprintln(w, "  spectracnn [flags] batch <folder>                  Predict every file in a folder")
	fmt.Fprintln(w, "  spectracnn prune <learnFile> <minCount>            Drop sparsely represented classes")
	fmt.Fprintln(w, "  spectracnn version                                 Show version")
	fmt.Fprintln(w, "\nFlags:")
	fs.PrintDefaults()
}

func optional(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func (a *app) store() *store.Store {
	return store.New(a.cfg.ModelDir, a.cfg.Task())
}

func (a *app) train(learnFile, validFile string) error {
	start := time.Now()
	res, err := train.New(a.cfg, a.store(), a.logger).Train(learnFile, validFile)
	if err != nil {
		return err
	}
	printTraining(a.out, a.cfg, res, time.Since(start))
	return nil
}

func (a *app) describe(learnFile, validFile string) error {
	net, err := train.New(a.cfg, a.store(), a.logger).Describe(learnFile, validFile)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, net.Summary())
	return nil
}

func (a *app) predict(testFile string) error {
	e, err := infer.Open(a.cfg, a.store(), a.logger)
	if err != nil {
		return err
	}
	preds, err := e.PredictFile(testFile)
	if err != nil {
		return err
	}
	printPredictions(a.out, e.Task(), preds)
	return nil
}

func (a *app) batch(folder string) error {
	e, err := infer.Open(a.cfg, a.store(), a.logger)
	if err != nil {
		return err
	}
	table, runErr := batch.New(e, a.cfg.BatchPattern, a.logger).Run(folder)
	if table == nil {
		return runErr
	}

	summary := filepath.Join(a.cfg.ModelDir, batch.SummaryName(e.Task()))
	if err := writeSummary(summary, table); err != nil {
		return errors.Join(runErr, err)
	}
	printBatch(a.out, table)
	fmt.Fprintf(a.out, "\nPrediction summary saved in: %s\n", summary)
	return runErr
}

func writeSummary(path string, table *batch.Table) error {
	//nolint:gosec // G304: output path is derived from the operator's folder
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := table.WriteCSV(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (a *app) prune(learnFile, minCount string) error {
	n, err := strconv.Atoi(minCount)
	if err != nil || n < 1 {
		return fmt.Errorf("prune: min count must be a positive integer, got %q", minCount)
	}
	ds, err := dataset.Load(learnFile, a.cfg.NumLabels)
	if err != nil {
		return err
	}
	pruned, dropped, err := ds.Prune(n)
	if err != nil {
		return err
	}

	ext := filepath.Ext(learnFile)
	outPath := fmt.Sprintf("%s_min%d%s", strings.TrimSuffix(learnFile, ext), n, ext)
	//nolint:gosec // G304: output path is derived from the operator's input
	f, err := os.Create(outPath)
	if err != nil {
		return err
	}
	if err := dataset.Write(f, pruned); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	for _, c := range dataset.ClassCounts(ds) {
		mark := ""
		for _, d := range dropped {
			if c.String() == d.String() {
				mark = "  EXCLUDED"
			}
		}
		fmt.Fprintf(a.out, "  Class %s%s\n", c, mark)
	}
	fmt.Fprintf(a.out, "\n  Original spectra:  %d\n", ds.Len())
	fmt.Fprintf(a.out, "  Included spectra:  %d\n", pruned.Len())
	fmt.Fprintf(a.out, "  Excluded spectra:  %d\n", ds.Len()-pruned.Len())
	fmt.Fprintf(a.out, "  Saved to: %s\n", outPath)
	return nil
}
