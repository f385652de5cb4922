package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"racesched/internal/config"
	"racesched/internal/fetch"
	"racesched/internal/ics"
	appLog "racesched/internal/log"
	"racesched/internal/pipeline"
	"racesched/internal/schedule"
	"racesched/internal/store"
	"racesched/internal/web"
)

type flagConfig struct {
	configPath string
	listen     string
	logLevel   string
	year       int
	once       bool
}

func main() {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	level := conf.LogLevel
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	if l, ok := appLog.ParseLevel(level); ok {
		appLog.SetLevel(l)
	} else {
		appLog.Warn("unknown log level; using INFO", "log_level", level)
	}

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	years := conf.Years(time.Now())
	if flags.year != 0 {
		years = []int{flags.year}
	}

	appLog.Info("racesched starting",
		"listen", conf.Listen,
		"seasons", years,
		"refresh", conf.RefreshCron,
		"on_error", conf.OnError,
		"output_dir", conf.Output.Dir,
		"calendar", conf.Output.Calendar,
		"s3", conf.S3 != nil,
		"once", flags.once,
	)

	p, err := buildPipeline(conf)
	if err != nil {
		appLog.Error("failed to build pipeline", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flags.once {
		if _, err := p.RunAll(ctx, years); err != nil {
			appLog.Error("sync finished with errors", err)
			os.Exit(1)
		}
		appLog.Info("sync finished")
		return
	}

	p.Preload(conf.Output.Dir, years)

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(conf.RefreshCron, func() {
		if _, err := p.RunAll(ctx, years); err != nil {
			appLog.Error("scheduled sync finished with errors", err)
		}
	}); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		os.Exit(1)
	}
	c.Start()
	defer func() {
		<-c.Stop().Done()
	}()

	go func() {
		if _, err := p.RunAll(ctx, years); err != nil {
			appLog.Error("initial sync finished with errors", err)
		}
	}()

	srv := web.NewServer(conf, p.Catalog(), p, years)
	if err := srv.ListenAndServe(ctx); err != nil {
		appLog.Error("http server stopped", err)
		cancel()
		return
	}
	appLog.Info("racesched exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./racesched.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.IntVar(&cfg.year, "year", 0, "Sync only this season instead of the configured ones")
	flag.BoolVar(&cfg.once, "once", false, "Sync once and exit instead of running the scheduler and API")

	flag.Parse()

	return cfg
}

func buildPipeline(conf *config.Config) (*pipeline.Pipeline, error) {
	policy, err := schedule.ParsePolicy(conf.OnError)
	if err != nil {
		return nil, err
	}

	fetcher := fetch.NewFetcher(fetch.Options{
		CacheDir:   conf.Source.CacheDir,
		Timeout:    conf.Source.Timeout(),
		Retries:    conf.Source.Retries,
		RetryDelay: conf.Source.RetryDelay(),
		UserAgent:  conf.Source.UserAgent,
	})

	sinks, err := buildSinks(conf)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Deps{
		Fetcher:     fetcher,
		Sink:        sinks,
		Transformer: schedule.Transformer{Policy: policy},
		URLTemplate: conf.Source.URL,
	})
}

// buildSinks orders the local season file last: it is what Preload reads on
// restart, so it only changes once every other sink accepted the season.
func buildSinks(conf *config.Config) (store.MultiSink, error) {
	var sinks store.MultiSink
	if conf.Output.Calendar {
		sinks = append(sinks, &ics.CalendarSink{Dir: conf.Output.Dir})
	}
	if conf.S3 != nil {
		s3, err := store.NewMinIOSink(*conf.S3, conf.Output.Indent)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s3)
	}
	return append(sinks, &store.FileSink{Dir: conf.Output.Dir, Indent: conf.Output.Indent}), nil
}
