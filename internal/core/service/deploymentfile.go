package service

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

	"github.com/yndnr/converge/internal/codec"
	"github.com/yndnr/converge/internal/core/domain"
	"github.com/yndnr/converge/internal/infra/confloader"
)

// LoadDeploymentFile reads a YAML deployment document. Unknown fields are
// rejected. Blank hostnames, application names and dataset IDs are filled
// from their map keys before validation. An empty file is an empty
// deployment.
func LoadDeploymentFile(path string) (*domain.Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployment file: %w", err)
	}

	d := domain.NewDeployment()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(d); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.ErrDeploymentInvalid.Wrap(fmt.Errorf("%s: %w", path, err))
	}

	d.Normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// DeploymentFile keeps the configuration service in step with a YAML
// file on disk.
type DeploymentFile struct {
	path    string
	configs *ConfigurationService
	logger  *slog.Logger

	mu sync.Mutex
}

// NewDeploymentFile binds path to configs.
func NewDeploymentFile(path string, configs *ConfigurationService, logger *slog.Logger) *DeploymentFile {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeploymentFile{
		path:    path,
		configs: configs,
		logger:  logger.With("deployment_file", path),
	}
}

// Sync loads the file and saves it when it differs from the current
// configuration. It reports whether a new revision was saved.
func (f *DeploymentFile) Sync(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	d, err := LoadDeploymentFile(f.path)
	if err != nil {
		return false, err
	}

	same, err := sameDeployment(d, f.configs.Get())
	if err != nil {
		return false, err
	}
	if same {
		f.logger.Debug("deployment file unchanged")
		return false, nil
	}

	rev, err := f.configs.Save(ctx, d)
	if err != nil {
		return false, err
	}
	f.logger.Info("deployment file applied", "revision", rev.Seq)
	return true, nil
}

// Watch re-syncs the file on every change until ctx is done. A file that
// fails to load is logged and the current configuration is kept.
func (f *DeploymentFile) Watch(ctx context.Context) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(f.logger))
	if err != nil {
		return err
	}
	if err := w.Watch(f.path); err != nil {
		w.Stop()
		return err
	}

	w.OnChange(func(string) {
		if _, err := f.Sync(ctx); err != nil {
			f.logger.Error("failed to apply deployment file", "error", err)
		}
	})
	w.StartAsync()

	<-ctx.Done()
	return w.Stop()
}

// sameDeployment compares deterministic encodings.
func sameDeployment(a, b *domain.Deployment) (bool, error) {
	if a == nil || b == nil {
		return a == b, nil
	}
	ea, err := codec.Deployment.Encode(a)
	if err != nil {
		return false, err
	}
	eb, err := codec.Deployment.Encode(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ea, eb), nil
}
