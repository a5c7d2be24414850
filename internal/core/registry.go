package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
)

// FeatureStatus is the public view of a registered feature
type FeatureStatus struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Running     bool   `json:"running"`
}

// Registry holds features in registration order. Features start in that
// order and stop in reverse.
type Registry struct {
	mu       sync.RWMutex
	features []Feature
	running  map[string]bool
	logger   *Logger
}

// NewRegistry creates an empty feature registry
func NewRegistry(logger *Logger) *Registry {
	return &Registry{
		running: make(map[string]bool),
		logger:  logger,
	}
}

// Register adds a feature; names must be unique
func (r *Registry) Register(feature Feature) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.features {
		if existing.Name() == feature.Name() {
			return fmt.Errorf("feature %s already registered", feature.Name())
		}
	}

	r.features = append(r.features, feature)
	r.logger.Info("Registered feature", "name", feature.Name(), "enabled", feature.Enabled())
	return nil
}

func (r *Registry) enabled() []Feature {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Filter(r.features, func(f Feature, _ int) bool { return f.Enabled() })
}

// InitAll starts enabled features in order. When one fails, the features
// started before it are shut down again.
func (r *Registry) InitAll(ctx context.Context) error {
	features := r.enabled()
	r.logger.Info("Initializing features", "count", len(features))

	for i, feature := range features {
		if err := feature.Init(ctx); err != nil {
			initErr := fmt.Errorf("failed to initialize feature %s: %w", feature.Name(), err)
			return errors.Join(initErr, r.shutdown(ctx, features[:i]))
		}
		r.setRunning(feature.Name(), true)
	}

	return nil
}

// ShutdownAll stops running features in reverse order and joins their errors
func (r *Registry) ShutdownAll(ctx context.Context) error {
	running := lo.Filter(r.enabled(), func(f Feature, _ int) bool { return r.isRunning(f.Name()) })
	r.logger.Info("Shutting down features", "count", len(running))
	return r.shutdown(ctx, running)
}

func (r *Registry) shutdown(ctx context.Context, features []Feature) error {
	var errs []error
	for i := len(features) - 1; i >= 0; i-- {
		feature := features[i]
		if err := feature.Shutdown(ctx); err != nil {
			r.logger.Error("Failed to shut down feature", "name", feature.Name(), "error", err)
			errs = append(errs, fmt.Errorf("shutdown %s: %w", feature.Name(), err))
		}
		r.setRunning(feature.Name(), false)
	}
	return errors.Join(errs...)
}

func (r *Registry) setRunning(name string, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.running[name] = running
}

func (r *Registry) isRunning(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running[name]
}

// Mount registers the routes of every enabled feature on router
func (r *Registry) Mount(router chi.Router) {
	for _, feature := range r.enabled() {
		for _, route := range feature.Routes() {
			router.Method(route.Method, route.Path, route.Handler)
		}
	}
}

// GetFeatureStatus reports every registered feature by name
func (r *Registry) GetFeatureStatus() map[string]FeatureStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := make(map[string]FeatureStatus, len(r.features))
	for _, feature := range r.features {
		status[feature.Name()] = FeatureStatus{
			Name:        feature.Name(),
			Description: feature.Description(),
			Enabled:     feature.Enabled(),
			Running:     r.running[feature.Name()],
		}
	}
	return status
}
