// topcons-job submits one sequence to the TOPCONS service, waits for the
// result, and writes the predicted topology block to a .octopus file.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cmutils/internal/api"
	"cmutils/internal/apperrors"
	"cmutils/internal/cli"
	"cmutils/internal/config"
	"cmutils/internal/health"
	"cmutils/internal/launcher"
	"cmutils/internal/notify"
	"cmutils/internal/observability"
	"cmutils/internal/pipeline"
	"cmutils/internal/runner"
	"cmutils/internal/runner/docker"
)

func main() {
	defaults := config.LoadDefaults()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: defaults.LogLevel})))

	inv, err := cli.ParseInvocation(os.Args[1:], defaults)
	if err != nil {
		if cli.ExitCode(err) == apperrors.ExitSuccess {
			fmt.Fprint(os.Stdout, err.Error())
			os.Exit(apperrors.ExitSuccess)
		}
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(cli.ExitCode(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	report, err := run(ctx, inv)
	stop()
	if err != nil {
		slog.Error("Run failed", "error", err, "jobId", report.JobID, "state", report.State)
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}

	switch {
	case report.OutputPath != "":
		fmt.Fprintln(os.Stdout, report.OutputPath)
	default:
		fmt.Fprintln(os.Stdout, report.ExtractDir)
	}
}

func run(ctx context.Context, inv *cli.Invocation) (*pipeline.Report, error) {
	r, closeRunner, err := newRunner(inv)
	if err != nil {
		return &pipeline.Report{}, err
	}
	defer closeRunner()

	client, err := launcher.New(r, launcher.Config{Script: inv.Launcher, Interpreter: inv.Interpreter})
	if err != nil {
		return &pipeline.Report{}, err
	}

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return &pipeline.Report{}, apperrors.Internal("metrics.init", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if inv.CallbackURL != "" {
		notifier = notify.NewCallback(notify.CallbackConfig{
			URL:     inv.CallbackURL,
			Key:     inv.CallbackKey,
			Metrics: metrics,
		})
		slog.Info("Lifecycle callbacks enabled", "url", inv.CallbackURL, "signed", inv.CallbackKey != "")
	}

	progress := pipeline.NewProgress()

	if inv.StatusAddr != "" {
		checker := health.NewChecker(map[string]health.ReadinessChecker{"runner": r})
		shutdown := serveStatus(inv.StatusAddr, api.NewRouter(api.RouterConfig{
			HealthChecker:  checker,
			Progress:       progress,
			Metrics:        metrics,
			MetricsHandler: metricsHandler,
		}))
		defer func() {
			checker.SetShuttingDown()
			shutdown(5 * time.Second)
		}()
	}

	orch := pipeline.New(inv.PipelineConfig(), pipeline.Deps{
		Client:   client,
		Metrics:  metrics,
		Notifier: notifier,
		Progress: progress,
	})
	return orch.Run(ctx)
}

func newRunner(inv *cli.Invocation) (runner.Runner, func(), error) {
	if inv.Runner != config.RunnerDocker {
		return runner.NewExec(), func() {}, nil
	}

	r, err := docker.New(docker.Config{Image: inv.DockerImage})
	if err != nil {
		return nil, nil, apperrors.Internal("runner.docker", err)
	}
	slog.Info("Using docker runner", "image", inv.DockerImage)
	return r, func() {
		if err := r.Close(); err != nil {
			slog.Warn("Failed to close docker client", "error", err)
		}
	}, nil
}

// serveStatus starts the status server in the background and returns its
// shutdown function.
func serveStatus(addr string, handler http.Handler) func(time.Duration) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("Starting status server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Status server failed", "error", err)
		}
	}()

	return func(timeout time.Duration) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Status server shutdown error", "error", err)
		}
	}
}
