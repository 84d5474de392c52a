package dockerobserver

import (
	"bufio"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aryan877/sre-sentinel/internal/domain"
	"github.com/aryan877/sre-sentinel/internal/eventbus"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/events"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	metricsSampleInterval = 5 * time.Second
	logCheckLines         = 20
	logCheckInterval      = 5 * time.Second

	eventStreamBackoff       = 5 * time.Second
	eventStreamUnknownBackoff = 10 * time.Second
	monitorRestartBackoff    = 10 * time.Second

	defaultLogBufferCapacity = 2000
)

// AnomalyChecker is invoked with accumulated log lines for a container
// every logCheckLines lines or logCheckInterval, whichever first
// (§4.5 "Log pump"). Implemented by the incident pipeline's fast-path
// trigger.
type AnomalyChecker interface {
	CheckLogs(ctx context.Context, service, containerID string, lines []string)
}

// Observer implements C5: it discovers labeled containers, reacts to
// lifecycle events, and runs a log pump + metrics sampler per tracked
// container.
type Observer struct {
	docker   DockerClient
	bus      *eventbus.Bus
	checker  AnomalyChecker
	log      zerolog.Logger

	mu       sync.Mutex
	monitors map[string]context.CancelFunc
	buffers  map[string]*logBuffer

	composeMu    sync.Mutex
	composeCache map[string]string

	samplesMu sync.RWMutex
	samples   map[string]domain.ContainerSample
}

// New constructs an Observer.
func New(docker DockerClient, bus *eventbus.Bus, checker AnomalyChecker, log zerolog.Logger) *Observer {
	return &Observer{
		docker:       docker,
		bus:          bus,
		checker:      checker,
		log:          log,
		monitors:     make(map[string]context.CancelFunc),
		buffers:      make(map[string]*logBuffer),
		composeCache: make(map[string]string),
		samples:      make(map[string]domain.ContainerSample),
	}
}

// SetChecker rebinds the anomaly checker after construction, so the
// observer and the incident pipeline that consumes it (which in turn
// depends on the observer as its ContainerInspector) can be wired
// without a constructor cycle.
func (o *Observer) SetChecker(checker AnomalyChecker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.checker = checker
}

// Snapshot returns the last known sample for every tracked container,
// for use by the REST/WebSocket telemetry surface (§5 "Container-state
// map ... multi-reader; snapshots are immutable copies").
func (o *Observer) Snapshot() []domain.ContainerSample {
	o.samplesMu.RLock()
	defer o.samplesMu.RUnlock()

	out := make([]domain.ContainerSample, 0, len(o.samples))
	for _, s := range o.samples {
		out = append(out, s)
	}
	return out
}

func (o *Observer) recordSample(sample domain.ContainerSample) {
	o.samplesMu.Lock()
	o.samples[sample.ID] = sample
	o.samplesMu.Unlock()
}

// LogLines returns a snapshot of the buffered log lines for a container,
// oldest first, for use as incident context (§4.6 stage 2). Returns nil
// if the container has no active buffer.
func (o *Observer) LogLines(id string) []string {
	o.mu.Lock()
	buf, ok := o.buffers[id]
	o.mu.Unlock()
	if !ok {
		return nil
	}

	entries := buf.snapshot()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line
	}
	return lines
}

// ContainerEnv parses the container's declared environment from its
// inspect data into a KEY=VALUE map (§4.6 stage 2).
func (o *Observer) ContainerEnv(ctx context.Context, id string) (map[string]string, error) {
	inspection, err := o.docker.ContainerInspect(ctx, id)
	if err != nil {
		return nil, err
	}
	env := make(map[string]string)
	if inspection.Config == nil {
		return env, nil
	}
	for _, kv := range inspection.Config.Env {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			continue
		}
		env[key] = value
	}
	return env, nil
}

// ContainerStatsInfo returns the status/restart-count/creation/exit-code
// struct named in §4.6 stage 2, rendered as a generic map for direct use
// in the deep-analyzer prompt.
func (o *Observer) ContainerStatsInfo(ctx context.Context, id string) (map[string]interface{}, error) {
	inspection, err := o.docker.ContainerInspect(ctx, id)
	if err != nil {
		return nil, err
	}

	info := map[string]interface{}{
		"restart_count": inspection.RestartCount,
		"created":       inspection.Created,
	}
	if inspection.State != nil {
		info["status"] = inspection.State.Status
		info["exit_code"] = inspection.State.ExitCode
	}
	return info, nil
}

// ContainerStatus returns the runtime-reported status string for a
// container, used by the pipeline's verify stage (§4.6 stage 7).
func (o *Observer) ContainerStatus(ctx context.Context, id string) (string, error) {
	inspection, err := o.docker.ContainerInspect(ctx, id)
	if err != nil {
		return "", err
	}
	if inspection.State == nil {
		return "", nil
	}
	return inspection.State.Status, nil
}

// ComposeSnippet returns the value of the container's
// com.docker.compose.project.config_files label, that is the compose
// config file paths, or "" for a container without the label; the files'
// contents are not read. The result is cached per container id after the
// first read (§4.6 stage 2 "cached on first read").
func (o *Observer) ComposeSnippet(ctx context.Context, id string) (string, error) {
	o.composeMu.Lock()
	if cached, ok := o.composeCache[id]; ok {
		o.composeMu.Unlock()
		return cached, nil
	}
	o.composeMu.Unlock()

	inspection, err := o.docker.ContainerInspect(ctx, id)
	if err != nil {
		return "", err
	}

	snippet := ""
	if inspection.Config != nil {
		snippet = inspection.Config.Labels["com.docker.compose.project.config_files"]
	}

	o.composeMu.Lock()
	o.composeCache[id] = snippet
	o.composeMu.Unlock()
	return snippet, nil
}

// Run discovers already-running labeled containers, starts monitors for
// them, then blocks consuming the lifecycle event stream until ctx is
// canceled.
func (o *Observer) Run(ctx context.Context) error {
	if err := o.discover(ctx); err != nil {
		o.log.Error().Err(err).Msg("initial container discovery failed")
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := o.consumeEvents(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			backoff := eventStreamUnknownBackoff
			if client.IsErrConnectionFailed(err) {
				backoff = eventStreamBackoff
			}
			o.log.Warn().Err(err).Dur("backoff", backoff).Msg("event stream disconnected, reconnecting")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
}

// discover enumerates containers carrying MonitorLabel and starts a
// monitor for each one not already tracked.
func (o *Observer) discover(ctx context.Context) error {
	summaries, err := o.docker.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", MonitorLabel)),
	})
	if err != nil {
		return err
	}

	for _, summary := range summaries {
		o.startMonitor(ctx, summary.ID, containerDisplayName(summary.Names), serviceLabel(summary.Labels, summary.Names))
	}
	return nil
}

func (o *Observer) consumeEvents(ctx context.Context) error {
	msgCh, errCh := o.docker.Events(ctx, events.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", MonitorLabel), filters.Arg("type", "container")),
	})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			return err
		case msg, ok := <-msgCh:
			if !ok {
				return nil
			}
			o.handleEvent(ctx, msg)
		}
	}
}

func (o *Observer) handleEvent(ctx context.Context, msg events.Message) {
	id := msg.Actor.ID
	name := msg.Actor.Attributes["name"]
	service := serviceLabel(msg.Actor.Attributes, []string{name})

	switch msg.Action {
	case events.ActionStart, events.ActionRestart:
		o.startMonitor(ctx, id, name, service)
	case events.ActionStop, events.ActionDie, events.ActionKill, events.ActionPause:
		o.log.Info().Str("container_id", id).Str("action", string(msg.Action)).Msg("container lifecycle event")
	case events.ActionDestroy:
		o.stopMonitor(id)
	}
}

func (o *Observer) startMonitor(ctx context.Context, id, name, service string) {
	o.mu.Lock()
	if _, tracked := o.monitors[id]; tracked {
		o.mu.Unlock()
		return
	}
	monitorCtx, cancel := context.WithCancel(ctx)
	o.monitors[id] = cancel
	o.mu.Unlock()

	go o.runMonitorWithRestart(monitorCtx, id, name, service)
}

func (o *Observer) stopMonitor(id string) {
	o.mu.Lock()
	cancel, tracked := o.monitors[id]
	delete(o.monitors, id)
	o.mu.Unlock()
	if tracked {
		cancel()
	}
}

// runMonitorWithRestart implements the failure policy: an uncaught
// error logs, waits 10s, and restarts against a freshly re-fetched
// container, unless the runtime reports NotFound (§4.5 "Failure
// policy").
func (o *Observer) runMonitorWithRestart(ctx context.Context, id, name, service string) {
	for {
		err := o.monitorContainer(ctx, id, name, service)
		if ctx.Err() != nil {
			return
		}
		if client.IsErrNotFound(err) {
			o.publishOffline(ctx, id, name, service)
			return
		}
		o.log.Error().Err(err).Str("container_id", id).Msg("container monitor failed, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(monitorRestartBackoff):
		}
	}
}

func (o *Observer) publishOffline(ctx context.Context, id, name, service string) {
	sample := domain.ContainerSample{ID: id, Name: name, Service: service, Status: "offline", Timestamp: time.Now()}
	o.recordSample(sample)
	o.bus.Publish(ctx, domain.Event{Type: domain.EventContainerUpdate, Container: &sample})
}

// monitorContainer runs the log pump and metrics sampler for one
// container concurrently, returning when either fails or ctx is
// canceled. The errgroup's derived context cancels the sibling task as
// soon as one of them exits.
func (o *Observer) monitorContainer(ctx context.Context, id, name, service string) error {
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return o.pumpLogs(groupCtx, id, name, service) })
	group.Go(func() error { return o.sampleMetrics(groupCtx, id, name, service) })
	return group.Wait()
}

// pumpLogs streams container logs, timestamping, buffering, and
// publishing each line, and triggers an anomaly check every
// logCheckLines lines or logCheckInterval, whichever first (§4.5
// "Log pump").
func (o *Observer) pumpLogs(ctx context.Context, id, name, service string) error {
	stream, err := o.docker.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Timestamps: false,
	})
	if err != nil {
		return err
	}
	defer stream.Close()

	lineCh := make(chan string, 64)
	go func() {
		defer close(lineCh)
		scanner := bufio.NewScanner(stream)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lineCh <- stripDockerLogHeader(scanner.Text())
		}
	}()

	buffer := newLogBuffer(defaultLogBufferCapacity)
	o.mu.Lock()
	o.buffers[id] = buffer
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.buffers, id)
		o.mu.Unlock()
	}()

	var pending []string
	ticker := time.NewTicker(logCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lineCh:
			if !ok {
				return nil
			}
			entry := domain.LogEntry{Timestamp: time.Now(), Line: line}
			buffer.append(entry)
			o.bus.Publish(ctx, domain.Event{
				Type:         domain.EventLog,
				LogService:   service,
				LogTimestamp: entry.Timestamp,
				LogMessage:   line,
			})
			pending = append(pending, line)
			if len(pending) >= logCheckLines {
				o.checkAndReset(ctx, id, service, &pending)
			}
		case <-ticker.C:
			if len(pending) > 0 {
				o.checkAndReset(ctx, id, service, &pending)
			}
		}
	}
}

func (o *Observer) checkAndReset(ctx context.Context, id, service string, pending *[]string) {
	if o.checker != nil {
		batch := make([]string, len(*pending))
		copy(batch, *pending)
		o.checker.CheckLogs(ctx, service, id, batch)
	}
	*pending = (*pending)[:0]
}

// sampleMetrics snapshots runtime stats every 5s and publishes a
// derived sample, tracking the previous snapshot for rate math. On
// NotFound it publishes a terminal offline sample and returns cleanly
// (§4.5 "Metrics sampler").
func (o *Observer) sampleMetrics(ctx context.Context, id, name, service string) error {
	ticker := time.NewTicker(metricsSampleInterval)
	defer ticker.Stop()

	var prev *domain.ContainerStatsSnapshot
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snapshot, status, restarts, err := o.fetchSnapshot(ctx, id)
			if err != nil {
				if client.IsErrNotFound(err) {
					o.publishOffline(ctx, id, name, service)
					return nil
				}
				return err
			}
			snapshot.Status = status
			snapshot.RestartCount = restarts

			sample := deriveSample(id, name, service, snapshot, prev)
			prevCopy := snapshot
			prev = &prevCopy

			o.recordSample(sample)
			o.bus.Publish(ctx, domain.Event{Type: domain.EventContainerUpdate, Container: &sample})
		}
	}
}

func (o *Observer) fetchSnapshot(ctx context.Context, id string) (domain.ContainerStatsSnapshot, string, int, error) {
	inspection, err := o.docker.ContainerInspect(ctx, id)
	if err != nil {
		return domain.ContainerStatsSnapshot{}, "", 0, err
	}

	reader, err := o.docker.ContainerStatsOneShot(ctx, id)
	if err != nil {
		return domain.ContainerStatsSnapshot{}, "", 0, err
	}
	defer reader.Body.Close()

	snapshot, err := decodeStats(reader.Body)
	if err != nil {
		return domain.ContainerStatsSnapshot{}, "", 0, err
	}

	status := ""
	restarts := 0
	if inspection.State != nil {
		status = inspection.State.Status
	}
	restarts = inspection.RestartCount
	return snapshot, status, restarts, nil
}

func containerDisplayName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func serviceLabel(labels map[string]string, names []string) string {
	if svc, ok := labels["com.docker.compose.service"]; ok && svc != "" {
		return svc
	}
	return containerDisplayName(names)
}

// stripDockerLogHeader removes the 8-byte multiplexed stream header
// Docker prepends to each line when the container has no TTY. Lines
// without a recognizable header (TTY-attached containers) pass through
// unchanged.
func stripDockerLogHeader(line string) string {
	if len(line) >= 8 {
		switch line[0] {
		case 0, 1, 2:
			return line[8:]
		}
	}
	return line
}
