package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"trackrename/internal/config"
	"trackrename/internal/convert"
	"trackrename/internal/logger"
	"trackrename/internal/metadata"
	"trackrename/internal/pipeline"
	"trackrename/internal/progress"
	"trackrename/internal/prompt"
	"trackrename/internal/report"
	"trackrename/internal/shutdown"
	"trackrename/internal/trash"
)

var errChangesFailed = errors.New("some changes failed")

// options holds the raw flag values. Only flags the user set override the
// configuration file.
type options struct {
	configPath   string
	exclude      []string
	printOnly    bool
	force        bool
	tagsOnly     bool
	renameOnly   bool
	sort         bool
	verbose      bool
	debug        bool
	jobs         int
	noDuplicates bool
	similarity   float64
	acronymMax   int
	convert      bool
	logFailures  bool
	failureLog   string
	trashDir     string
	tagBackend   string
}

func newRootCommand() *cobra.Command {
	return buildRootCommand(&options{})
}

func buildRootCommand(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trackrename [directory]",
		Short: "Normalize artist and title tags and filenames of audio files",
		Long: "Scans a directory for audio files, formats artist and title to a\n" +
			"consistent style, renames files to \"Artist - Title\" and finds\n" +
			"duplicate tracks. Changes are confirmed one by one unless --force\n" +
			"or --print is given.",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, configPath, err := loadConfig(cmd, opts, args)
			if err != nil {
				return err
			}
			return runRename(cmd, cfg, configPath)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "Configuration file path (YAML or TOML)")
	pf.StringSliceVarP(&opts.exclude, "exclude", "e", nil, "File names or stems to skip")
	pf.BoolVarP(&opts.sort, "sort", "s", false, "Order changes by file name (case-insensitive) instead of full path")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "Verbose output")
	pf.BoolVarP(&opts.debug, "debug", "d", false, "Debug output (implies --verbose)")
	pf.IntVarP(&opts.jobs, "jobs", "j", 0, "Number of parallel tag readers")
	pf.StringVar(&opts.tagBackend, "tag-backend", "", "Tag reader: auto or taglib")

	f := rootCmd.Flags()
	f.BoolVarP(&opts.printOnly, "print", "p", false, "Only print changes, do not modify files")
	f.BoolVarP(&opts.force, "force", "f", false, "Apply changes without asking")
	f.BoolVarP(&opts.tagsOnly, "tags-only", "t", false, "Only fix tags, never rename")
	f.BoolVarP(&opts.renameOnly, "rename-only", "r", false, "Only rename files, never write tags")
	f.BoolVar(&opts.noDuplicates, "no-duplicates", false, "Skip duplicate detection")
	f.Float64Var(&opts.similarity, "similarity", 0, "Suggest near-duplicate titles above this score (0-1, 0 disables)")
	f.IntVar(&opts.acronymMax, "acronym-length", 0, "Longest all-caps word kept as an acronym")
	f.BoolVar(&opts.convert, "convert", false, "Convert MP3 files with unreadable tags to AIFF (needs ffmpeg)")
	f.BoolVarP(&opts.logFailures, "log-failures", "l", false, "Append unreadable files to a log")
	f.StringVar(&opts.failureLog, "failure-log", "", "Path of the unreadable-files log")
	f.StringVar(&opts.trashDir, "trash-dir", "", "Trash directory (default: XDG trash)")

	rootCmd.AddCommand(newPrintCommand(opts))
	rootCmd.AddCommand(newInitConfigCommand())

	return rootCmd
}

// loadConfig reads the configuration file and overlays the flags that were
// set on the command line.
func loadConfig(cmd *cobra.Command, opts *options, args []string) (config.Config, string, error) {
	cfg, err := config.LoadConfigFile(opts.configPath)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("failed to load config: %w", err)
	}
	configPath := opts.configPath
	if configPath == "" {
		configPath = config.FindConfigFile()
	}

	flags := cmd.Flags()
	changed := flags.Changed

	if changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, opts.exclude...)
	}
	if changed("print") {
		cfg.PrintOnly = opts.printOnly
	}
	if changed("force") {
		cfg.Force = opts.force
	}
	if changed("tags-only") {
		cfg.TagsOnly = opts.tagsOnly
	}
	if changed("rename-only") {
		cfg.RenameOnly = opts.renameOnly
	}
	if changed("sort") {
		cfg.Sort = opts.sort
	}
	if changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if changed("debug") {
		cfg.Debug = opts.debug
	}
	if changed("jobs") {
		cfg.Jobs = opts.jobs
	}
	if changed("no-duplicates") {
		cfg.FindDuplicates = !opts.noDuplicates
	}
	if changed("similarity") {
		cfg.SimilarityThreshold = opts.similarity
	}
	if changed("acronym-length") {
		cfg.AcronymMaxLength = opts.acronymMax
	}
	if changed("convert") {
		cfg.ConvertFailed = opts.convert
	}
	if changed("log-failures") {
		cfg.LogFailures = opts.logFailures
	}
	if changed("failure-log") {
		cfg.FailureLogPath = config.ExpandHome(opts.failureLog)
	}
	if changed("trash-dir") {
		cfg.TrashDir = config.ExpandHome(opts.trashDir)
	}
	if changed("tag-backend") {
		cfg.TagBackend = opts.tagBackend
	}

	if cfg.Debug {
		cfg.Verbose = true
	}
	if len(args) > 0 {
		cfg.Root = config.ExpandHome(args[0])
	}
	if abs, err := filepath.Abs(cfg.Root); err == nil {
		cfg.Root = abs
	}

	return cfg, configPath, nil
}

func runRename(cmd *cobra.Command, cfg config.Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	sh := shutdown.New()
	sh.Listen()
	defer sh.Shutdown()

	log := logger.New(cfg.Verbose)
	logFile := setupFileLog(log, cfg.Verbose)
	sh.AddCleanup(func() { log.Close() })
	sh.OnForce(func() {
		log.Warn("Forced exit, the current change may be incomplete")
		log.Close()
		os.Exit(130)
	})

	if configPath != "" {
		log.Debug("Loaded configuration from: %s", configPath)
	}

	out := cmd.OutOrStdout()
	deps := pipeline.Deps{
		Store:     metadata.NewTagStore(cfg.TagBackend),
		Trash:     trash.New(cfg.TrashDir).MoveToTrash,
		Prompter:  prompt.NewTerminal(cmd.InOrStdin(), out),
		Converter: convert.New(log),
		Out:       out,
		Color:     log.Color(),
	}

	var bar *progress.Bar
	var warnings atomic.Int32
	hooks := pipeline.Hooks{
		OnWarning: func(string) { warnings.Add(1) },
		OnScanStart: func(total int) {
			if !cfg.Verbose && total > 0 && logger.IsTerminal(os.Stdout) {
				bar = progress.New(os.Stdout, "Scanning", total)
				log.SetProgressBar(true)
			}
		},
		OnProgress: func() {
			if bar != nil {
				bar.Increment()
			}
		},
		OnScanDone: func() {
			if bar != nil {
				bar.Finish()
				log.SetProgressBar(false)
			}
		},
	}

	res, err := pipeline.Run(sh.Context(), cfg, log, deps, hooks)
	if err != nil {
		return err
	}
	if sh.Interrupted() {
		log.Warn("Interrupted, remaining changes were skipped")
	}

	printReport(out, res, cfg.Verbose)
	if n := warnings.Load(); n > 0 && logFile != "" {
		log.Info("%d warnings, details in %s", n, logFile)
	}
	if res.Report.ExitCode() != 0 {
		return errChangesFailed
	}
	return nil
}

func printReport(out io.Writer, res *pipeline.Result, verbose bool) {
	fmt.Fprint(out, report.Summary(res.Report))
	if failures := report.Failures(res.Report.Failures); failures != "" {
		fmt.Fprint(out, failures)
	}
	if verbose {
		if versions := report.TagVersions(res.Entries); versions != "" {
			fmt.Fprint(out, versions)
		}
		if exts := report.Extensions(res.Entries); exts != "" {
			fmt.Fprint(out, exts)
		}
	}
}

// setupFileLog keeps a log of every run when the terminal output is terse.
// It returns the log path, or "" when there is none.
func setupFileLog(log *logger.Logger, verbose bool) string {
	if verbose {
		return ""
	}
	logDir := config.GetDefaultLogPath()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		log.Warn("Failed to create log directory: %v", err)
		return ""
	}
	logFile := filepath.Join(logDir, fmt.Sprintf("trackrename_%s.log", time.Now().Format("2006-01-02_15-04-05")))
	if err := log.SetFileLog(logFile); err != nil {
		log.Warn("Failed to setup file logging: %v", err)
		return ""
	}
	log.Debug("Logging to file: %s", logFile)
	return logFile
}
