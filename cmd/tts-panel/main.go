// main package for tts-panel, the synthesis control panel service.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/unicorn-commander/tts-panel/internal/config"
	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/engine"
	"github.com/unicorn-commander/tts-panel/internal/jobs"
	"github.com/unicorn-commander/tts-panel/internal/objectstore"
	"github.com/unicorn-commander/tts-panel/internal/server"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	bootstrapLog, err := logger.New(os.TempDir(), "tts-panel-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	fileLog, err := logger.New(cfg.Paths.BaseLogsDir, "tts-panel.log")
	if err != nil {
		bootstrapLog.Error("Failed to create service logger: %v", err)

		return fmt.Errorf("failed to create service logger: %w", err)
	}

	defer func() {
		closeErr := fileLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	return serve(cfg, fileLog)
}

func serve(cfg *config.Config, fileLog *logger.Logger) error {
	buffer := weblog.NewBuffer(weblog.HistoryCapacity)
	log := weblog.New(fileLog, buffer, "panel")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, hub, cleanup, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	defer cleanup()

	settings := server.NewSettingsStore(cfg.Paths.SettingsFile, log.Named("settings"))
	log.SetLevel(settings.Get().LogLevel)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	srv := server.New(server.Config{
		Addr:     addr,
		AudioDir: cfg.Paths.AudioDir,
		Mode:     cfg.Engine.ExecutionMode,
	}, eng, settings, hub, log.Named("http"))

	go hub.Run()

	janitor := server.NewJanitor(cfg.Paths.AudioDir, 0, 0, log.Named("janitor"))
	go janitor.Run(ctx)

	natsCleanup, err := startJobWorker(ctx, cfg, eng, log)
	if err != nil {
		return err
	}

	defer natsCleanup()

	go func() {
		<-ctx.Done()

		shutdownErr := srv.Shutdown(context.Background())
		if shutdownErr != nil {
			log.Error("Shutdown failed: %v", shutdownErr)
		}
	}()

	fileLog.System("tts-panel listening on %s (mode %s)", addr, cfg.Engine.ExecutionMode)

	return srv.Run()
}

// buildEngine assembles the synthesis engine for the configured execution
// mode and returns the stream hub its metrics feed.
func buildEngine(cfg *config.Config, log *weblog.Log) (*engine.Engine, *server.Hub, func(), error) {
	hub := server.NewHub(log.Buffer(), log.Named("ws"))
	cleanup := func() {}

	modelConfig, err := engine.LoadModelConfig(cfg.Engine.ModelConfigPath)
	if err != nil {
		return nil, nil, nil, err
	}

	styles, err := engine.LoadStyleTable(cfg.Engine.VoicesPath)
	if err != nil {
		return nil, nil, nil, err
	}

	prober := engine.NewHostProber(
		[]string{cfg.Engine.ModelPath, cfg.Engine.AcceleratedModelPath},
		cfg.Engine.VoicesPath,
		len(styles.Voices()),
		log.Named("probe"),
	)

	opts := engine.Options{
		Mode: cfg.Engine.ExecutionMode,
		Tokenizer: engine.NewTokenizer(
			engine.NewEspeakPhonemizer(cfg.Engine.EspeakBinary, log.Named("espeak")),
			modelConfig,
			log.Named("tokenizer"),
		),
		Styles:     styles,
		Capability: engine.NewCapabilityCache(prober.Probe),
		Profile:    engine.ResolveProfile(cfg.Engine.ModelProfile),
		SampleRate: cfg.Engine.SampleRate,
		Language:   cfg.Engine.Language,
		Sink:       hub.PublishMetric,
	}

	if cfg.Engine.ExecutionMode == engine.ModeInProcess {
		runner, runnerErr := engine.NewModelRunner(engine.RunnerConfig{
			OnnxRuntimeLibPath: cfg.Engine.OnnxRuntimeLibPath,
			ModelPath:          cfg.Engine.ModelPath,
			ModelProfile:       cfg.Engine.ModelProfile,
			SampleRate:         cfg.Engine.SampleRate,
		}, log.Named("runner"))
		if runnerErr != nil {
			return nil, nil, nil, runnerErr
		}

		cleanup = runner.Close

		executor := runner.Executor()
		if cfg.Engine.AcceleratorCommand != "" {
			executor = engine.WithAcceleration(
				executor,
				engine.NewCommandAccelerator(cfg.Engine.AcceleratorCommand, log.Named("accel")),
				log.Named("accel"),
			)
		}

		opts.Executor = executor
	} else {
		opts.Launcher = engine.NewWorkerLauncher(engine.WorkerConfig{
			Binary:               cfg.Engine.WorkerBinary,
			ModelPath:            cfg.Engine.ModelPath,
			AcceleratedModelPath: cfg.Engine.AcceleratedModelPath,
			ModelConfigPath:      cfg.Engine.ModelConfigPath,
			VoicesPath:           cfg.Engine.VoicesPath,
			OnnxRuntimeLibPath:   cfg.Engine.OnnxRuntimeLibPath,
			EspeakBinary:         cfg.Engine.EspeakBinary,
			AcceleratorCommand:   cfg.Engine.AcceleratorCommand,
			ModelProfile:         cfg.Engine.ModelProfile,
			Timeout:              cfg.Engine.WorkerTimeout(),
		}, log.Named("worker"))
	}

	return engine.New(opts, log.Named("engine")), hub, cleanup, nil
}

// startJobWorker connects the optional NATS job intake. An empty URL disables
// it.
func startJobWorker(
	ctx context.Context,
	cfg *config.Config,
	eng core.SpeechEngine,
	log *weblog.Log,
) (func(), error) {
	if cfg.NATS.URL == "" {
		return func() {}, nil
	}

	conn, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	jetstreamContext, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to open JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		conn.Close()

		return nil, err
	}

	worker := jobs.NewWorker(conn, cfg.NATS.SynthesisJobSubject, store, eng, log.Named("jobs"))

	go func() {
		runErr := worker.Run(ctx)
		if runErr != nil {
			log.Error("Job worker stopped: %v", runErr)
		}
	}()

	return conn.Close, nil
}
