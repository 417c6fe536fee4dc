// Package main provides the quarryagent CLI entrypoint: the long-running
// agent process that polls for work, drives each acquired job's tasks
// against a BrowserDriver subprocess, merges and uploads results, and
// reports health/diagnostics back to its coordinator.
//
// Usage:
//
//	quarryagent run --config quarry-agent.yaml [flags...]
//
// Exit codes:
//   - 0: clean shutdown (first signal drained in-flight work, or ctx done)
//   - 1: fatal startup error (bad config, unreachable dependency)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/wptagent/agent/adapter"
	adapterredis "github.com/wptagent/agent/adapter/redis"
	"github.com/wptagent/agent/adapter/webhook"
	"github.com/wptagent/agent/assembler"
	"github.com/wptagent/agent/bodyfetcher"
	"github.com/wptagent/agent/config"
	"github.com/wptagent/agent/dispatch"
	"github.com/wptagent/agent/executor"
	"github.com/wptagent/agent/health"
	"github.com/wptagent/agent/log"
	"github.com/wptagent/agent/shaper"
	"github.com/wptagent/agent/types"
)

const exitFatal = 1

func main() {
	app := &cli.App{
		Name:           "quarryagent",
		Usage:          "Distributed web-performance measurement agent",
		Version:        types.Version,
		Commands:       []*cli.Command{runCommand()},
		ExitErrHandler: exitErrHandler,
	}

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitFatal)
	}
}

func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		if msg := exitCoder.Error(); msg != "" {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(exitCoder.ExitCode())
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitFatal)
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Poll for work and drive jobs until stopped",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "Path to quarry-agent.yaml"},
			&cli.StringFlag{Name: "server", Usage: "Work server origin URL"},
			&cli.StringSliceFlag{Name: "servers", Usage: "Additional work server origin URLs"},
			&cli.StringFlag{Name: "location", Usage: "This agent's configured location/browser label"},
			&cli.StringFlag{Name: "key", Usage: "API key sent with polls and workdone uploads"},
			&cli.StringFlag{Name: "scheduler-url", Usage: "Scheduler node URL, overrides --server"},
			&cli.StringFlag{Name: "scheduler-salt", Usage: "Scheduler node auth salt"},
			&cli.StringFlag{Name: "scheduler-node", Usage: "Scheduler node identity"},
			&cli.StringFlag{Name: "driver-path", Usage: "Path to the BrowserDriver executable or .tar.gz bundle"},
			&cli.StringFlag{Name: "work-dir", Usage: "Root directory for task working directories", Value: "./work"},
			&cli.StringFlag{Name: "instance-id", Usage: "Instance identifier surfaced in health diagnostics"},
			&cli.StringFlag{Name: "liveness-file", Usage: "Path touched with a diagnostics snapshot on every health beat"},
			&cli.StringFlag{Name: "liveness-addr", Usage: "Optional HTTP address (host:port) to serve /alive, disabled if empty"},
			&cli.StringFlag{Name: "shaper-iface", Usage: "Outbound network interface for traffic shaping, auto-detected if empty"},
			&cli.StringFlag{Name: "shaper-in-iface", Usage: "Inbound (ifb) interface for traffic shaping"},
			&cli.BoolFlag{Name: "suppress-ua-identity", Usage: "Omit the agent identity suffix from the effective user agent"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	applyFlagOverrides(cfg, c)

	driverPath, err := executor.EnsureBundle(cfg.DriverPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("resolve browser driver: %v", err), exitFatal)
	}

	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return cli.Exit(fmt.Sprintf("create work dir %s: %v", cfg.WorkDir, err), exitFatal)
	}

	logger := log.NewLogger(&types.JobLineage{RunID: "quarryagent", JobID: "startup", Attempt: 1})
	clients := config.NewHTTPClients()

	dispatcher := dispatch.New(cfg, clients, types.Version, logger)

	instanceID := c.String("instance-id")
	if instanceID == "" {
		// No persistent instance identity was configured; mint one for
		// this process's lifetime so diagnostics beats are attributable
		// across a single run even without an operator-assigned id.
		instanceID = uuid.NewString()
	}

	reporter := health.New(health.Config{
		Client:       clients.Health,
		Version:      types.Version,
		InstanceID:   instanceID,
		WorkDir:      cfg.WorkDir,
		Routing:      dispatcher.Routing,
		LivenessPath: cfg.LivenessFile,
		Logger:       logger,
	})

	assemblerClient, pubsub, blob, err := buildDeliveryBackends(c.Context, cfg, clients)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	if pubsub != nil {
		defer func() { _ = pubsub.Close() }()
	}

	resultAssembler := &assembler.ResultAssembler{
		Upload:         assemblerClient,
		Blob:           blob,
		PubSub:         pubsub,
		Key:            cfg.Key,
		Location:       cfg.Location,
		FallbackOrigin: cfg.Server,
		Logger:         logger,
	}

	netShaper := buildShaper(c.String("shaper-iface"), c.String("shaper-in-iface"))
	fetcher := bodyfetcher.NewFetcher(clients.Upload)

	notifier, err := buildEventAdapter(cfg.Adapter)
	if err != nil {
		return cli.Exit(err.Error(), exitFatal)
	}
	if notifier != nil {
		defer func() { _ = notifier.Close() }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	installForceExit()

	handler := newJobHandler(&jobHandlerDeps{
		cfg:        cfg,
		driverPath: driverPath,
		logger:     logger,
		shaper:     netShaper,
		fetcher:    fetcher,
		assembler:  resultAssembler,
		notifier:   notifier,
	})

	go reporter.Run(ctx)
	if addr := c.String("liveness-addr"); addr != "" {
		liveness := health.NewLivenessServer(addr, reporter)
		go func() {
			if err := liveness.Serve(ctx); err != nil {
				logger.Warn("liveness server stopped", map[string]any{"error": err.Error()})
			}
		}()
	}

	if err := dispatcher.Run(ctx, handler); err != nil {
		return cli.Exit(fmt.Sprintf("dispatcher stopped: %v", err), exitFatal)
	}
	return nil
}

// installForceExit arranges for a second SIGINT/SIGTERM (after the first
// has already canceled the run context and Dispatcher.Run started
// draining the in-flight job) to terminate immediately instead of
// waiting for that drain to finish.
func installForceExit() {
	force := make(chan os.Signal, 1)
	signal.Notify(force, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-force
		<-force
		os.Exit(130)
	}()
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	return config.Load(path)
}

func applyFlagOverrides(cfg *config.Config, c *cli.Context) {
	if v := c.String("server"); v != "" {
		cfg.Server = v
	}
	if v := c.StringSlice("servers"); len(v) > 0 {
		cfg.Servers = v
	}
	if v := c.String("location"); v != "" {
		cfg.Location = v
	}
	if v := c.String("key"); v != "" {
		cfg.Key = v
	}
	if v := c.String("scheduler-url"); v != "" {
		cfg.Scheduler.URL = v
	}
	if v := c.String("scheduler-salt"); v != "" {
		cfg.Scheduler.Salt = v
	}
	if v := c.String("scheduler-node"); v != "" {
		cfg.Scheduler.Node = v
	}
	if v := c.String("driver-path"); v != "" {
		cfg.DriverPath = v
	}
	if v := c.String("work-dir"); v != "" {
		cfg.WorkDir = v
	}
	if v := c.String("liveness-file"); v != "" {
		cfg.LivenessFile = v
	}
	if c.Bool("suppress-ua-identity") {
		cfg.SuppressUAIdentity = true
	}
}

// buildDeliveryBackends wires ResultAssembler's upload client and optional
// blob/pubsub backends from cfg. A missing storage bucket or redis address
// simply leaves that backend nil; ResultAssembler falls back to the
// workdone HTTP upload path per spec.
func buildDeliveryBackends(ctx context.Context, cfg *config.Config, clients *config.HTTPClients) (*http.Client, *assembler.PubSub, assembler.BlobStore, error) {
	var blob assembler.BlobStore
	if cfg.Storage.Bucket != "" {
		s3Blob, err := assembler.NewS3BlobStore(ctx, assembler.S3Config{
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			Endpoint:  cfg.Storage.Endpoint,
			PathStyle: cfg.Storage.S3PathStyle,
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build s3 blob store: %w", err)
		}
		blob = s3Blob
	}

	var pubsub *assembler.PubSub
	if cfg.Adapter.RedisAddr != "" {
		addr := cfg.Adapter.RedisAddr
		if !strings.Contains(addr, "://") {
			addr = "redis://" + addr
		}
		ps, err := assembler.NewPubSub(addr)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("build pubsub: %w", err)
		}
		pubsub = ps
	}

	return clients.Upload, pubsub, blob, nil
}

// buildEventAdapter wires an optional downstream run-completed notifier
// from cfg: a webhook POST when WebhookURL is set, otherwise a Redis
// PUBLISH when RedisAddr is set. Neither configured leaves it nil, and
// jobhandler skips the notification entirely.
func buildEventAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	if cfg.WebhookURL != "" {
		headers := make(map[string]string, len(cfg.WebhookHeaders))
		for _, h := range cfg.WebhookHeaders {
			k, v, ok := strings.Cut(h, ":")
			if !ok {
				continue
			}
			headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
		retries := webhook.DefaultRetries
		if cfg.WebhookRetries != nil {
			retries = *cfg.WebhookRetries
		}
		a, err := webhook.New(webhook.Config{
			URL:     cfg.WebhookURL,
			Headers: headers,
			Timeout: cfg.WebhookTimeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, fmt.Errorf("build webhook adapter: %w", err)
		}
		return a, nil
	}

	if cfg.RedisAddr != "" {
		url := cfg.RedisAddr
		if !strings.Contains(url, "://") {
			url = "redis://" + url
		}
		a, err := adapterredis.New(adapterredis.Config{URL: url})
		if err != nil {
			return nil, fmt.Errorf("build redis event adapter: %w", err)
		}
		return a, nil
	}

	return nil, nil
}

// buildShaper returns a tracked Linux tc/netem shaper on Linux, or a
// no-op on platforms without a shaping backend.
func buildShaper(iface, inIface string) shaper.TrafficShaper {
	if runtime.GOOS != "linux" {
		return shaper.NoopShaper{}
	}
	return shaper.NewTracked(shaper.NewNetEmShaper(iface, inIface))
}
