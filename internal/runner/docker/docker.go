// Package docker implements runner.Runner using the Docker API.
// Each command runs in a fresh container on the host Docker daemon with the
// paths it touches bind-mounted at identical locations.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"cmutils/internal/runner"
)

// DefaultImage is the container image the launcher runs in when none is configured.
const DefaultImage = "python:3.12-slim"

// Runner implements runner.Runner using Docker.
type Runner struct {
	client *client.Client
	image  string
	user   string
}

// Config holds configuration for the Docker runner.
type Config struct {
	Image string // image with the launcher's interpreter installed
	User  string // container user, defaults to the calling uid:gid so outputs stay owned by the caller
}

// New creates a Docker runner from the environment's daemon settings.
func New(cfg Config) (*Runner, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	img := cfg.Image
	if img == "" {
		img = DefaultImage
	}
	user := cfg.User
	if user == "" {
		user = fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
	}

	return &Runner{client: dockerClient, image: img, user: user}, nil
}

// Run implements runner.Runner: create, start, wait, collect logs, remove.
func (r *Runner) Run(ctx context.Context, c runner.Command) (*runner.Output, error) {
	if len(c.Args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if err := r.pullImageIfNeeded(ctx); err != nil {
		return nil, fmt.Errorf("failed to pull image %s: %w", r.image, err)
	}

	name := "topcons-" + uuid.NewString()
	logger := slog.With("container", name, "image", r.image)

	cfg, hostCfg, err := containerSpec(r.image, r.user, c)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.ContainerCreate(ctx, cfg, hostCfg, nil, nil, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}
	// Removal must survive a cancelled run context.
	defer func() {
		if err := r.client.ContainerRemove(context.WithoutCancel(ctx), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			logger.Warn("Failed to remove container", "error", err)
		}
	}()

	if err := r.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}
	logger.Debug("Container started", "command", strings.Join(c.Args, " "))

	exitCode, err := r.waitForExit(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for container: %w", err)
	}

	out, err := r.collectLogs(ctx, resp.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read container logs: %w", err)
	}
	out.ExitCode = exitCode
	logger.Debug("Container exited", "exitCode", exitCode)

	if exitCode != 0 {
		return out, &runner.ExitError{Code: exitCode, Stdout: out.Stdout, Stderr: out.Stderr}
	}
	return out, nil
}

// Ready checks if the Docker daemon is reachable and responsive.
func (r *Runner) Ready(ctx context.Context) error {
	_, err := r.client.Ping(ctx)
	return err
}

// Close releases the Docker client.
func (r *Runner) Close() error {
	return r.client.Close()
}

func (r *Runner) waitForExit(ctx context.Context, containerID string) (int, error) {
	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	select {
	case <-ctx.Done():
		return -1, ctx.Err()
	case err := <-errCh:
		return -1, err
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("%s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	}
}

func (r *Runner) collectLogs(ctx context.Context, containerID string) (*runner.Output, error) {
	logs, err := r.client.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return nil, err
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil && err != io.EOF {
		return nil, err
	}
	return &runner.Output{Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

func (r *Runner) pullImageIfNeeded(ctx context.Context) error {
	_, err := r.client.ImageInspect(ctx, r.image)
	if err == nil {
		return nil
	}

	slog.Info("Pulling image", "image", r.image)
	reader, err := r.client.ImagePull(ctx, r.image, image.PullOptions{})
	if err != nil {
		return err
	}
	defer reader.Close()

	_, err = io.Copy(io.Discard, reader)
	return err
}

// containerSpec builds the container definition for a command. Mounted paths
// are made absolute and deduplicated; nested mounts are kept since Docker
// accepts them.
func containerSpec(img, user string, c runner.Command) (*container.Config, *container.HostConfig, error) {
	seen := make(map[string]bool)
	var mounts []mount.Mount
	for _, p := range c.Mounts {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve mount %s: %w", p, err)
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: abs,
			Target: abs,
		})
	}
	sort.Slice(mounts, func(i, j int) bool { return mounts[i].Target < mounts[j].Target })

	workDir := c.Dir
	if workDir != "" {
		abs, err := filepath.Abs(workDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve working dir %s: %w", workDir, err)
		}
		workDir = abs
	}

	cfg := &container.Config{
		Image:      img,
		Cmd:        c.Args,
		Env:        c.Env,
		WorkingDir: workDir,
		User:       user,
		Labels: map[string]string{
			"managed-by": "topcons-job",
		},
	}
	hostCfg := &container.HostConfig{
		Mounts: mounts,
	}
	return cfg, hostCfg, nil
}

var _ runner.Runner = (*Runner)(nil)
