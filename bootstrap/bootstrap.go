package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"subuk/gamemango/aws"
	"subuk/gamemango/compute"
	"subuk/gamemango/config"
	"subuk/gamemango/discord"
	"subuk/gamemango/hooks"
	"subuk/gamemango/lifecycle"
	"subuk/gamemango/manager"
	"subuk/gamemango/messages"
	"subuk/gamemango/metrics"
	"subuk/gamemango/ping"
	"subuk/gamemango/remote"
	"subuk/gamemango/schedule"
	"subuk/gamemango/util"
	"subuk/gamemango/web"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

const (
	sshDialTimeout     = 15 * time.Second
	webShutdownTimeout = 5 * time.Second
)

// newLogger writes human readable lines to stderr and, when a log file is
// configured, JSON lines to that file.
func newLogger(cfg *config.Config, stderr *os.File) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Nop(), nil, util.NewError(err, "invalid log level")
	}
	console := zerolog.ConsoleWriter{Out: stderr, NoColor: !term.IsTerminal(int(stderr.Fd()))}
	if cfg.LogFile == "" {
		return zerolog.New(console).Level(level).With().Timestamp().Logger(), nil, nil
	}
	filename, err := util.ExpandHomeDir(cfg.LogFile)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
	if err != nil {
		return zerolog.Nop(), nil, util.NewError(err, "cannot open log file")
	}
	writer := zerolog.MultiLevelWriter(console, file)
	return zerolog.New(writer).Level(level).With().Timestamp().Logger(), file, nil
}

func newRegistry(cfg *config.Config, creds config.Credentials, logger zerolog.Logger, collector *metrics.Metrics) (*manager.Registry, error) {
	factory := &manager.Factory{
		Logger:        &logger,
		CheckInterval: cfg.CheckIntervalDuration(),
		Credentials:   creds,
		Timings: manager.Timings{
			PingTimeout:   cfg.PingTimeoutDuration(),
			ShutdownGrace: cfg.ShutdownGraceDuration(),
			CloseTimeout:  cfg.CloseTimeoutDuration(),
		},
		Instances: func(server *config.ServerConfig) (compute.InstanceRepository, error) {
			return aws.New(server.Region, creds.AWSAccessKeyId, creds.AWSSecretAccessKey, logger)
		},
		Pinger:   ping.NewMinecraftPinger(cfg.PingTimeoutDuration()),
		Executor: remote.NewSSHExecutor(sshDialTimeout, logger),
		Metrics:  collector,
	}
	return manager.NewRegistry(factory, cfg.Servers)
}

// Run starts every configured frontend and blocks until SIGINT or SIGTERM.
func Run(configFilename, envFilename string) error {
	creds, err := config.LoadCredentials(envFilename)
	if err != nil {
		return err
	}
	cfg, err := config.Parse(configFilename)
	if err != nil {
		return err
	}
	logger, logFile, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}
	if creds.DiscordToken == "" && cfg.Web.Listen == "" {
		return errors.New("nothing to run: set TOKEN for discord or web.listen for the http api")
	}
	if cfg.Web.Listen != "" && creds.APIToken == "" {
		return errors.New("web.listen is set but GAMEMANGO_API_TOKEN is empty")
	}

	catalog, err := messages.Load(cfg.LanguagesDir, cfg.Language)
	if err != nil {
		return err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.New(promRegistry)

	registry, err := newRegistry(cfg, creds, logger, collector)
	if err != nil {
		return err
	}
	options := lifecycle.WatchOptions{
		InstancePoll:     cfg.Watch.InstancePollDuration(),
		ServicePoll:      cfg.Watch.ServicePollDuration(),
		MaxInstancePolls: cfg.Watch.MaxInstancePolls,
		MaxServicePolls:  cfg.Watch.MaxServicePolls,
	}
	service := lifecycle.NewService(registry, schedule.Real(), options, logger, collector)
	defer service.Shutdown()

	if len(cfg.Hooks) > 0 {
		scripts := hooks.NewScriptNotifier(cfg.HookTimeoutDuration(), logger)
		for _, hook := range cfg.Hooks {
			scripts.Subscribe(hook.Notice, hook.Script)
		}
		service.Observe(scripts)
		defer scripts.Wait()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 2)

	if cfg.Web.Listen != "" {
		server := &http.Server{
			Addr:    cfg.Web.Listen,
			Handler: web.New(&cfg.Web, creds.APIToken, logger, service, catalog, promRegistry),
		}
		go func() {
			logger.Info().Str("addr", server.Addr).Msg("starting server")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- util.NewError(err, "serve failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), webShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("http server shutdown failed")
			}
		}()
	}

	if creds.DiscordToken != "" {
		bot, err := discord.New(creds.DiscordToken, service, catalog, cfg.Discord.Activity, logger)
		if err != nil {
			return err
		}
		if err := bot.Open(); err != nil {
			return err
		}
		defer func() {
			if err := bot.Close(); err != nil {
				logger.Warn().Err(err).Msg("discord close failed")
			}
		}()
	}

	service.Resume(ctx)
	logger.Info().Strs("servers", registry.Names()).Msg("ready")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
		return nil
	case err := <-errs:
		return err
	}
}

// Main is the process entry point shared by the binaries.
func Main(configFilename, envFilename string) {
	if err := Run(configFilename, envFilename); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
