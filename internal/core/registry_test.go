package core

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingFeature struct {
	*BaseFeature
	events  *[]string
	initErr error
}

func newRecordingFeature(name string, enabled bool, events *[]string) *recordingFeature {
	return &recordingFeature{
		BaseFeature: NewBaseFeature(name, name+" feature", enabled, NewLoggerWithLevel("error")),
		events:      events,
	}
}

func (f *recordingFeature) Init(ctx context.Context) error {
	*f.events = append(*f.events, "init "+f.Name())
	return f.initErr
}

func (f *recordingFeature) Shutdown(ctx context.Context) error {
	*f.events = append(*f.events, "stop "+f.Name())
	return nil
}

func (f *recordingFeature) Routes() []Route {
	return []Route{{Method: http.MethodGet, Path: "/" + f.Name(), Handler: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}}}
}

func TestRegistryLifecycleOrder(t *testing.T) {
	var events []string
	registry := NewRegistry(NewLoggerWithLevel("error"))
	require.NoError(t, registry.Register(newRecordingFeature("first", true, &events)))
	require.NoError(t, registry.Register(newRecordingFeature("disabled", false, &events)))
	require.NoError(t, registry.Register(newRecordingFeature("second", true, &events)))
	assert.Error(t, registry.Register(newRecordingFeature("first", true, &events)))

	ctx := context.Background()
	require.NoError(t, registry.InitAll(ctx))
	assert.True(t, registry.GetFeatureStatus()["second"].Running)
	assert.False(t, registry.GetFeatureStatus()["disabled"].Running)

	require.NoError(t, registry.ShutdownAll(ctx))
	assert.Equal(t, []string{"init first", "init second", "stop second", "stop first"}, events)
}

func TestRegistryInitFailureStopsStartedFeatures(t *testing.T) {
	var events []string
	registry := NewRegistry(NewLoggerWithLevel("error"))
	broken := newRecordingFeature("broken", true, &events)
	broken.initErr = errors.New("migration failed")
	require.NoError(t, registry.Register(newRecordingFeature("ok", true, &events)))
	require.NoError(t, registry.Register(broken))

	err := registry.InitAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []string{"init ok", "init broken", "stop ok"}, events)
}

func TestRegistryMountSkipsDisabled(t *testing.T) {
	var events []string
	registry := NewRegistry(NewLoggerWithLevel("error"))
	require.NoError(t, registry.Register(newRecordingFeature("on", true, &events)))
	require.NoError(t, registry.Register(newRecordingFeature("off", false, &events)))

	router := chi.NewRouter()
	registry.Mount(router)

	for path, want := range map[string]int{"/on": http.StatusNoContent, "/off": http.StatusNotFound} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}
}
