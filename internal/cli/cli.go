package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pfrederiksen/apod-api/internal/apod"
	"github.com/pfrederiksen/apod-api/internal/config"
	"github.com/pfrederiksen/apod-api/internal/logger"
	"github.com/pfrederiksen/apod-api/internal/scraper"
	"github.com/pfrederiksen/apod-api/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	ExitSuccess = 0
	ExitError   = 1
	ExitPartial = 2
)

// Version is set at build time with -ldflags "-X github.com/pfrederiksen/apod-api/internal/cli.Version=..."
var Version = "dev"

// errPartial signals that fetch --keep-going printed results but some days failed
var errPartial = errors.New("some days could not be fetched")

// flagKeys maps persistent flags onto config keys
var flagKeys = map[string]string{
	"log-level": "log.level",
	"base-url":  "scraper.base_url",
	"timeout":   "scraper.timeout",
	"extractor": "scraper.extractor",
	"port":      "server.port",
	"debug":     "server.debug",
}

// app holds state shared by the subcommands of one root command
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	a := &app{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "apod",
		Short: "Serve NASA's Astronomy Picture of the Day as JSON",
		Long: `apod scrapes apod.nasa.gov and returns the picture, credits and
explanation for a day or for the previous calendar week.

Run without a subcommand to start the HTTP API.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
		RunE: a.runServe,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "YAML config file")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.String("base-url", scraper.BaseURL, "APOD site base URL")
	pf.Duration("timeout", scraper.Timeout, "Per-page request timeout")
	pf.String("extractor", scraper.DefaultExtractorVersion, "Page layout extractor version")
	pf.Int("port", 8080, "HTTP listen port")
	pf.Bool("debug", false, "Enable gin debug mode")

	for name, key := range flagKeys {
		if err := a.v.BindPFlag(key, pf.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}

	cmd.AddCommand(a.newServeCmd())
	cmd.AddCommand(a.newFetchCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		// version needs no configuration and must work when it is invalid
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "apod version %s\n", Version)
		},
	})

	return cmd
}

// init loads configuration and installs the logger
func (a *app) init(logOut io.Writer) error {
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	a.log = logger.New(logger.ParseLevel(cfg.Log.Level), logOut)
	logger.SetDefault(a.log)
	return nil
}

// newScraper builds a scraper from the loaded configuration
func (a *app) newScraper() (*scraper.Scraper, error) {
	ext, err := scraper.Lookup(a.cfg.Scraper.Extractor)
	if err != nil {
		return nil, err
	}

	// A week request keeps one connection per day open to the same host
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = apod.WeekLength

	return scraper.New(
		scraper.WithHTTPClient(&http.Client{Transport: transport}),
		scraper.WithBaseURL(a.cfg.Scraper.BaseURL),
		scraper.WithTimeout(a.cfg.Scraper.Timeout),
		scraper.WithUserAgent(a.cfg.Scraper.UserAgent),
		scraper.WithExtractor(ext),
		scraper.WithLogger(a.log),
	), nil
}

func (a *app) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  a.runServe,
	}
}

// runServe starts the HTTP server and blocks until SIGINT or SIGTERM
func (a *app) runServe(cmd *cobra.Command, args []string) error {
	sc, err := a.newScraper()
	if err != nil {
		return fmt.Errorf("initializing scraper: %w", err)
	}

	srv := server.New(sc, server.Options{
		Addr:    a.cfg.Server.Addr(),
		Debug:   a.cfg.Server.Debug,
		Version: Version,
		Logger:  a.log,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Received shutdown signal", nil)
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		return err
	}
	return <-errCh
}

type fetchFlags struct {
	date      string
	mode      string
	format    string
	keepGoing bool
	verbose   bool
}

func (a *app) newFetchCmd() *cobra.Command {
	var f fetchFlags

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch a day or week of pictures and print them",
		Example: `  apod fetch --date 2023-01-01
  apod fetch --mode week --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFetch(cmd, f)
		},
	}

	cmd.Flags().StringVar(&f.date, "date", "", "Day to fetch as YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.mode, "mode", string(apod.ModeDay), "day or week")
	cmd.Flags().StringVar(&f.format, "format", string(FormatText), "Output format: text or json")
	cmd.Flags().BoolVar(&f.keepGoing, "keep-going", false, "Print the days that succeeded when others fail")
	cmd.Flags().BoolVar(&f.verbose, "verbose", false, "Include descriptions and author links")

	return cmd
}

// runFetch is the fetch command logic
func (a *app) runFetch(cmd *cobra.Command, f fetchFlags) error {
	mode, err := apod.ParseMode(f.mode)
	if err != nil {
		return err
	}

	format := OutputFormat(strings.ToLower(f.format))
	if format != FormatText && format != FormatJSON {
		return fmt.Errorf("invalid format: %s (must be 'text' or 'json')", f.format)
	}

	sc, err := a.newScraper()
	if err != nil {
		return fmt.Errorf("initializing scraper: %w", err)
	}

	opts := apod.Options{DateText: f.date, Mode: mode}
	result := &OutputResult{
		FetchedAt: time.Now().UTC(),
		Mode:      mode,
	}

	if f.keepGoing {
		for _, o := range sc.FetchPartial(cmd.Context(), opts) {
			if o.Err != nil {
				result.FailedDates = append(result.FailedDates, o.Date.Format(apod.DateLayout))
				continue
			}
			result.Results = append(result.Results, o.APOD)
		}
	} else {
		result.Results, err = sc.Fetch(cmd.Context(), opts)
		if err != nil {
			return fmt.Errorf("fetching pictures: %w", err)
		}
	}

	if err := WriteOutput(cmd.OutOrStdout(), result, format, f.verbose); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if len(result.FailedDates) > 0 {
		logger.Warn("Some days could not be fetched", logger.Fields{
			"failed":    result.FailedDates,
			"succeeded": len(result.Results),
		})
		return errPartial
	}
	return nil
}

// exitCode maps a command error onto a process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errPartial):
		return ExitPartial
	default:
		return ExitError
	}
}

// Execute runs the CLI
func Execute() {
	err := NewRootCmd().ExecuteContext(context.Background())
	if err != nil && !errors.Is(err, errPartial) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	_ = logger.Default().Sync()
	os.Exit(exitCode(err))
}
