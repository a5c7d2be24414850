package core

import (
	"context"
	"net/http"
)

// Feature is a mountable part of the service with its own routes and lifecycle
type Feature interface {
	Name() string
	Description() string
	Enabled() bool
	Init(ctx context.Context) error
	Routes() []Route
	Shutdown(ctx context.Context) error
}

// Route binds a handler to a method and a chi pattern
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// BaseFeature carries the identity and logger every feature needs.
// Features embed it and override Init, Routes and Shutdown.
type BaseFeature struct {
	name        string
	description string
	enabled     bool
	logger      *Logger
}

// NewBaseFeature creates a base feature logging under name
func NewBaseFeature(name, description string, enabled bool, logger *Logger) *BaseFeature {
	return &BaseFeature{
		name:        name,
		description: description,
		enabled:     enabled,
		logger:      logger.ForFeature(name),
	}
}

func (f *BaseFeature) Name() string        { return f.name }
func (f *BaseFeature) Description() string { return f.description }
func (f *BaseFeature) Enabled() bool       { return f.enabled }

// Logger returns the feature logger
func (f *BaseFeature) Logger() *Logger { return f.logger }

func (f *BaseFeature) Init(context.Context) error {
	f.logger.Debug("Initializing feature")
	return nil
}

func (f *BaseFeature) Routes() []Route { return nil }

func (f *BaseFeature) Shutdown(context.Context) error {
	f.logger.Debug("Feature stopped")
	return nil
}
