package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/infra/confloader"
	"github.com/yndnr/converge/internal/telemetry/tracer"
)

// LoadNodeStateFile reads a YAML node state document. A blank hostname
// is replaced by defaultHostname.
func LoadNodeStateFile(path, defaultHostname string) (*domain.NodeState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node state file: %w", err)
	}

	var ns domain.NodeState
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ns); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.ErrNodeStateInvalid.Wrap(fmt.Errorf("%s: %w", path, err))
	}
	if ns.Hostname == "" {
		ns.Hostname = defaultHostname
	}
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	return &ns, nil
}

// FileAgent reports the node state kept in a YAML file and logs every
// cluster update it receives. It does not reconcile anything.
type FileAgent struct {
	path     string
	hostname string
	logger   *slog.Logger

	mu            sync.Mutex
	client        *Client
	configuration *domain.Deployment
	state         *domain.Deployment
	updates       int
}

// NewFileAgent creates an agent for the node state file at path.
func NewFileAgent(path, hostname string, logger *slog.Logger) *FileAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileAgent{path: path, hostname: hostname, logger: logger.With("node_state_file", path)}
}

// Connected reports the node state in the background.
func (f *FileAgent) Connected(c *Client) {
	f.mu.Lock()
	f.client = c
	f.mu.Unlock()

	go func() {
		if err := f.Report(context.Background()); err != nil {
			f.logger.Error("failed to report node state", "error", err)
		}
	}()
}

// Disconnected forgets the client.
func (f *FileAgent) Disconnected() {
	f.mu.Lock()
	f.client = nil
	f.mu.Unlock()
	f.logger.Info("disconnected from control service")
}

// ClusterUpdated records and logs the pushed pair.
func (f *FileAgent) ClusterUpdated(ctx context.Context, configuration, state *domain.Deployment) {
	f.mu.Lock()
	f.configuration, f.state = configuration, state
	f.updates++
	n := f.updates
	f.mu.Unlock()

	l := f.logger
	if a := tracer.FromContext(ctx); a != nil {
		l = a.Logger()
	}
	l.Info("cluster updated",
		"update", n,
		"desired_nodes", len(configuration.Nodes),
		"desired_applications", configuration.ApplicationCount(),
		"reported_nodes", len(state.Nodes),
	)
}

// Report loads the file and sends it. It fails if not connected.
func (f *FileAgent) Report(ctx context.Context) error {
	f.mu.Lock()
	c := f.client
	f.mu.Unlock()
	if c == nil {
		return domain.ErrConnectionClosed.WithDetails("not connected")
	}

	ns, err := LoadNodeStateFile(f.path, f.hostname)
	if err != nil {
		return err
	}
	return c.ReportNodeState(ctx, ns)
}

// Watch re-reports the file whenever it changes until ctx is done.
func (f *FileAgent) Watch(ctx context.Context) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(f.logger))
	if err != nil {
		return err
	}
	if err := w.Watch(f.path); err != nil {
		w.Stop()
		return err
	}
	w.OnChange(func(string) {
		if err := f.Report(ctx); err != nil {
			f.logger.Warn("failed to report changed node state", "error", err)
		}
	})
	w.StartAsync()

	<-ctx.Done()
	return w.Stop()
}

// Last returns the most recent pair and how many updates were received.
func (f *FileAgent) Last() (configuration, state *domain.Deployment, updates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configuration, f.state, f.updates
}
