package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"

	"incident-service/pkg/models"
)

// Client wraps the Docker engine API with the narrow surface the incident
// orchestrator needs: listing managed containers, point-in-time snapshots,
// restarts and log tails.
type Client struct {
	cli *client.Client
}

func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, err
	}

	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Ping verifies the runtime is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.cli.Ping(ctx)
	return err
}

// ListManaged returns fresh snapshots of every container (running or not)
// carrying the given label, e.g. environment=production.
func (c *Client) ListManaged(ctx context.Context, labelKey, labelValue string) ([]models.ContainerSnapshot, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", labelKey+"="+labelValue)),
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	snapshots := make([]models.ContainerSnapshot, 0, len(containers))
	for _, ct := range containers {
		snap, err := c.Snapshot(ctx, ct.ID)
		if err != nil {
			// The container may have been removed between list and inspect.
			continue
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

// Snapshot inspects a single container and converts its state to an
// immutable snapshot.
func (c *Client) Snapshot(ctx context.Context, containerID string) (models.ContainerSnapshot, error) {
	inspect, err := c.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return models.ContainerSnapshot{}, fmt.Errorf("inspect container %s: %w", containerID, err)
	}

	return snapshotFromInspect(inspect), nil
}

// Restart issues a restart with the given stop timeout. It returns as soon
// as the engine accepts the restart; callers poll Snapshot for readiness.
func (c *Client) Restart(ctx context.Context, containerID string, stopTimeout time.Duration) error {
	secs := int(stopTimeout.Seconds())
	if err := c.cli.ContainerRestart(ctx, containerID, container.StopOptions{Timeout: &secs}); err != nil {
		return fmt.Errorf("restart container %s: %w", containerID, err)
	}
	return nil
}

// LogTail returns the last n log lines of a container.
func (c *Client) LogTail(ctx context.Context, containerID string, lines int) ([]string, error) {
	options := container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Tail:       fmt.Sprintf("%d", lines),
	}

	logs, err := c.cli.ContainerLogs(ctx, containerID, options)
	if err != nil {
		return nil, fmt.Errorf("container logs %s: %w", containerID, err)
	}
	defer logs.Close()

	// Docker multiplexes streams with an 8-byte frame header.
	var logLines []string
	buf := make([]byte, 4096)
	for {
		n, err := logs.Read(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		if n > 8 {
			for _, line := range strings.Split(strings.TrimRight(string(buf[8:n]), "\n"), "\n") {
				if line != "" {
					logLines = append(logLines, line)
				}
			}
		}
	}

	if len(logLines) > lines {
		logLines = logLines[len(logLines)-lines:]
	}

	return logLines, nil
}

func snapshotFromInspect(inspect types.ContainerJSON) models.ContainerSnapshot {
	snap := models.ContainerSnapshot{
		ID:     inspect.ID,
		Name:   strings.TrimPrefix(inspect.Name, "/"),
		Labels: map[string]string{},
	}

	if inspect.Config != nil {
		snap.Image = inspect.Config.Image
		for k, v := range inspect.Config.Labels {
			snap.Labels[k] = v
		}
	}

	if inspect.State == nil {
		snap.Status = models.StatusUnknown
		return snap
	}

	switch inspect.State.Status {
	case "running":
		snap.Status = models.StatusRunning
	case "exited", "dead":
		snap.Status = models.StatusExited
	case "restarting":
		snap.Status = models.StatusRestarting
	default:
		snap.Status = models.StatusUnknown
	}

	snap.Healthy = snap.Status == models.StatusRunning
	if inspect.State.Health != nil && inspect.State.Health.Status == "unhealthy" {
		snap.Healthy = false
	}

	if snap.Status == models.StatusExited {
		code := inspect.State.ExitCode
		snap.ExitCode = &code
	}

	if snap.Status == models.StatusRunning {
		snap.TransitionAt = parseDockerTime(inspect.State.StartedAt)
	} else {
		snap.TransitionAt = parseDockerTime(inspect.State.FinishedAt)
	}

	return snap
}

func parseDockerTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
