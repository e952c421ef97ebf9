package folder

import (
	"context"
	"fmt"
	"time"

	"github.com/vertextoedge/owncloud-controlled-link/internal/domain"
	"github.com/vertextoedge/owncloud-controlled-link/internal/domain/vo"
	"github.com/vertextoedge/owncloud-controlled-link/internal/port"
	"go.uber.org/zap"
)

// Config holds ensurer configuration
type Config struct {
	// CallTimeout bounds every single existence check and create call
	CallTimeout time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		CallTimeout: 30 * time.Second,
	}
}

// Ensurer makes sure a folder path exists on a remote store.
// It is the only component that checks for and creates collections.
type Ensurer struct {
	config  Config
	metrics port.ProvisionMetrics
	logger  *zap.Logger
}

// NewEnsurer creates a new folder path ensurer. metrics may be nil.
func NewEnsurer(cfg Config, metrics port.ProvisionMetrics, logger *zap.Logger) *Ensurer {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultConfig().CallTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ensurer{
		config:  cfg,
		metrics: metrics,
		logger:  logger,
	}
}

// Ensure walks base+segments from the shallowest ancestor to the full path,
// creating every collection that does not exist yet.
//
// The result always carries the full target path. Success is false when the
// store refused a create; the walk stops there. A non-nil error means a
// check or create could not be completed at all.
func (e *Ensurer) Ensure(ctx context.Context, base vo.RemotePath, segments []string, store port.RemoteStore) (domain.FolderEnsureResult, error) {
	fullPath, err := base.Append(segments...)
	if err != nil {
		return domain.FolderEnsureResult{FullPath: base}, fmt.Errorf("invalid folder segments %q: %v: %w", segments, err, domain.ErrInvalidInput)
	}

	result := domain.FolderEnsureResult{FullPath: fullPath}
	created := 0

	for _, dir := range fullPath.Ancestors() {
		exists, err := e.isDir(ctx, store, dir)
		if err != nil {
			return result, fmt.Errorf("failed to check %s: %w", dir, err)
		}
		if exists {
			continue
		}

		status, err := e.makeCollection(ctx, store, dir)
		if err != nil {
			return result, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if !status.Ok() {
			e.logger.Warn("remote refused to create folder",
				zap.String("path", dir.String()),
				zap.String("target", fullPath.String()))
			return result, nil
		}
		if status == domain.CollectionCreated {
			created++
		}
	}

	result.Success = true
	e.logger.Debug("folder path ensured",
		zap.String("path", fullPath.String()),
		zap.Int("created", created))

	return result, nil
}

func (e *Ensurer) isDir(ctx context.Context, store port.RemoteStore, dir vo.RemotePath) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	exists, err := store.IsDir(callCtx, dir)
	if e.metrics != nil {
		e.metrics.RecordRemoteCall("is_dir", err != nil)
	}
	return exists, err
}

func (e *Ensurer) makeCollection(ctx context.Context, store port.RemoteStore, dir vo.RemotePath) (domain.CollectionStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	status, err := store.MakeCollection(callCtx, dir)
	if e.metrics != nil {
		e.metrics.RecordRemoteCall("mkcol", err != nil)
		if err == nil {
			e.metrics.RecordCollection(status.String())
		}
	}
	return status, err
}
