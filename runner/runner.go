package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/pprof"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	svcMetric "github.com/rudderlabs/rudder-go-kit/stats/metric"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/visitor-log/internal/geolocation"
	"github.com/rudderlabs/visitor-log/internal/model"
	"github.com/rudderlabs/visitor-log/internal/page"
	"github.com/rudderlabs/visitor-log/internal/store"
	"github.com/rudderlabs/visitor-log/internal/visitorlog"
	"github.com/rudderlabs/visitor-log/jsonrs"
	"github.com/rudderlabs/visitor-log/rruntime"
)

const appName = "visitor-log"

// ReleaseInfo holds the release information
type ReleaseInfo struct {
	Version   string
	Commit    string
	BuildDate string
	BuiltBy   string
}

type loggerFactory interface {
	NewLogger() logger.Logger
	Sync()
}

// Runner is responsible for running the application
type Runner struct {
	releaseInfo ReleaseInfo
	conf        *config.Config
	logFactory  loggerFactory
	logger      logger.Logger
	stdout      io.Writer

	gracefulShutdownTimeout time.Duration
}

// New creates and initializes a new Runner
func New(releaseInfo ReleaseInfo) *Runner {
	return newRunner(config.New(config.WithEnvPrefix("VISITORLOG")), releaseInfo, os.Stdout)
}

func newRunner(conf *config.Config, releaseInfo ReleaseInfo, stdout io.Writer) *Runner {
	logFactory := logger.NewFactory(conf)
	return &Runner{
		releaseInfo:             releaseInfo,
		conf:                    conf,
		logFactory:              logFactory,
		logger:                  logFactory.NewLogger().Child("runner"),
		stdout:                  stdout,
		gracefulShutdownTimeout: conf.GetDurationVar(15, time.Second, "GracefulShutdownTimeout"),
	}
}

// Run runs the application and returns the exit code
func (r *Runner) Run(ctx context.Context, args []string) int {
	defer r.logFactory.Sync()

	app := &cli.App{
		Name:        appName,
		Usage:       "log page visitors and show where they came from",
		HideVersion: true,
		Writer:      r.stdout,
		Action:      r.serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "serve the visitor page",
				Action: r.serve,
			},
			{
				Name:   "once",
				Usage:  "log a single visit and print the rendered visitor list",
				Action: r.once,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "ip",
						Usage: "address of the visitor, empty for the address of this host",
					},
					&cli.BoolFlag{
						Name:  "table",
						Usage: "print the visitors as a table instead of the rendered line",
					},
				},
			},
			{
				Name:   "version",
				Usage:  "print version information",
				Action: r.printVersion,
			},
		},
	}

	if err := app.RunContext(ctx, args); err != nil {
		r.logger.Errorn("Terminal error", obskit.Error(err))
		return 1
	}
	return 0
}

type components struct {
	stats   stats.Stats
	service *visitorlog.Service
	close   func()
}

func (r *Runner) setup(ctx context.Context) (*components, error) {
	r.logConfig()
	jsonrs.Default = jsonrs.New(r.conf)

	statsFactory := stats.NewStats(r.conf, r.logFactory, svcMetric.Instance, statsOptions(r.releaseInfo)...)
	if err := statsFactory.Start(ctx, rruntime.GoRoutineFactory); err != nil {
		return nil, fmt.Errorf("starting stats: %w", err)
	}
	statsFactory.NewTaggedStat("visitor_log_config", stats.GaugeType, stats.Tags{
		"version":   r.releaseInfo.Version,
		"commit":    r.releaseInfo.Commit,
		"buildDate": r.releaseInfo.BuildDate,
		"builtBy":   r.releaseInfo.BuiltBy,
	}).Gauge(1)

	resolver, closeResolver, err := geolocation.New(r.conf, r.logger)
	if err != nil {
		statsFactory.Stop()
		return nil, fmt.Errorf("creating geolocation resolver: %w", err)
	}
	cleanup := func() {
		if err := closeResolver(); err != nil {
			r.logger.Warnn("Error closing geolocation resolver", obskit.Error(err))
		}
		statsFactory.Stop()
	}

	storeClient, err := store.New(r.conf, r.logger, statsFactory)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("creating store client: %w", err)
	}

	service, err := visitorlog.New(r.conf, r.logger, statsFactory, resolver, storeClient)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("creating visitor log: %w", err)
	}

	return &components{stats: statsFactory, service: service, close: cleanup}, nil
}

func (r *Runner) logConfig() {
	path, err := r.conf.ConfigFileUsed()
	if err != nil {
		r.logger.Warnn("Config: Failed to parse config file, using default values",
			logger.NewStringField("path", path),
			obskit.Error(err),
		)
	} else {
		r.logger.Infon("Config: Using config file", logger.NewStringField("path", path))
	}

	if err := r.conf.DotEnvLoaded(); err != nil {
		r.logger.Infon("Config: No .env file loaded", obskit.Error(err))
	} else {
		r.logger.Infon("Config: Loaded .env file")
	}
}

func (r *Runner) serve(c *cli.Context) error {
	ctx := c.Context
	comps, err := r.setup(ctx)
	if err != nil {
		return err
	}
	defer comps.close()

	p := page.New()
	session := comps.service.NewSession(ctx, r.conf, p.Visitors)
	session.Start()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return page.NewServer(r.conf, r.logger, comps.stats, p, session).Start(ctx)
	})

	var terminalErr error
	shutdownDone := make(chan struct{})
	go func() {
		if err := g.Wait(); err != nil {
			terminalErr = err
		}
		r.logger.Infon("Attempting to shutdown gracefully")
		session.Stop()
		close(shutdownDone)
	}()

	<-ctx.Done()
	ctxDoneTime := time.Now()

	select {
	case <-shutdownDone:
		r.logger.Infon("Graceful termination",
			logger.NewDurationField("after", time.Since(ctxDoneTime)),
			logger.NewIntField("goroutines", int64(runtime.NumGoroutine())),
		)
		return terminalErr
	case <-time.After(r.gracefulShutdownTimeout):
		// Assume graceful shutdown failed, log remaining goroutines
		r.logger.Errorn("Graceful termination failed, goroutine dump follows",
			logger.NewDurationField("after", time.Since(ctxDoneTime)),
		)
		_, _ = fmt.Fprint(r.stdout, "\n\n")
		_ = pprof.Lookup("goroutine").WriteTo(r.stdout, 1)
		_, _ = fmt.Fprint(r.stdout, "\n\n")
		return errors.New("graceful termination timed out")
	}
}

func (r *Runner) once(c *cli.Context) error {
	comps, err := r.setup(c.Context)
	if err != nil {
		return err
	}
	defer comps.close()

	comps.service.LogVisit(c.Context, c.String("ip"))

	if c.Bool("table") {
		entries, err := comps.service.Entries(c.Context)
		if err != nil {
			return fmt.Errorf("fetching entries: %w", err)
		}
		printEntries(c.App.Writer, entries, comps.service.Location())
		return nil
	}

	p := page.New()
	comps.service.Refresh(c.Context, p.Visitors)
	_, err = fmt.Fprintln(c.App.Writer, p.Visitors.Text())
	return err
}

func printEntries(w io.Writer, entries []model.Entry, loc *time.Location) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "IP", "City", "Country"})
	table.SetAutoFormatHeaders(false)
	for _, e := range entries {
		e = e.WithDefaults()
		table.Append([]string{visitorlog.FormatTimestamp(e, loc), e.IP, e.City, e.Country})
	}
	table.Render()
}

func (r *Runner) versionInfo() map[string]any {
	return map[string]any{
		"Version":   r.releaseInfo.Version,
		"Commit":    r.releaseInfo.Commit,
		"BuildDate": r.releaseInfo.BuildDate,
		"BuiltBy":   r.releaseInfo.BuiltBy,
	}
}

func (r *Runner) printVersion(c *cli.Context) error {
	versionFormatted, err := jsonrs.Marshal(r.versionInfo())
	if err != nil {
		return fmt.Errorf("marshalling version info: %w", err)
	}
	_, err = fmt.Fprintf(c.App.Writer, "Version Info %s\n", versionFormatted)
	return err
}
