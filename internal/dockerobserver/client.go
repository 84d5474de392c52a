// Package dockerobserver implements the C5 container observer: discovery,
// lifecycle event reactions, and per-container log/metrics pumps.
package dockerobserver

import (
	"context"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	dockerclient "github.com/docker/docker/client"
)

// MonitorLabel is the selector label that opts a container into
// monitoring (§4.5 "Discovery").
const MonitorLabel = "sre-sentinel.monitor=true"

// DockerClient is the narrow surface this package depends on. It is
// satisfied by *dockerclient.Client and by fakes in tests.
type DockerClient interface {
	ContainerList(ctx context.Context, opts container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error)
	ContainerStatsOneShot(ctx context.Context, id string) (container.StatsResponseReader, error)
	ContainerLogs(ctx context.Context, id string, opts container.LogsOptions) (io.ReadCloser, error)
	Events(ctx context.Context, opts events.ListOptions) (<-chan events.Message, <-chan error)
	Close() error
}

// newDockerClientFn is overridden in tests to avoid dialing a real
// daemon socket.
var newDockerClientFn = func(opts ...dockerclient.Opt) (DockerClient, error) {
	return dockerclient.NewClientWithOpts(opts...)
}

// NewRealClient dials the local Docker daemon using the standard
// environment-derived connection options with API version negotiation.
func NewRealClient() (DockerClient, error) {
	return newDockerClientFn(dockerclient.FromEnv, dockerclient.WithAPIVersionNegotiation())
}
