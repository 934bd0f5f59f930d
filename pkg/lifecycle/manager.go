package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"

	"github.com/toolbridge/toolbridge/pkg/bridge"
	"github.com/toolbridge/toolbridge/pkg/catalog"
	"github.com/toolbridge/toolbridge/pkg/dispatch"
	"github.com/toolbridge/toolbridge/pkg/errs"
	"github.com/toolbridge/toolbridge/pkg/loader"
	"github.com/toolbridge/toolbridge/pkg/models"
)

// shutdownGrace bounds how long a superseded server may spend draining
// in-flight calls before the replacement binds its port.
const shutdownGrace = 5 * time.Second

// Handle is one live tool server instance. It is runtime-only state and is
// never persisted.
type Handle struct {
	ID          string
	ProfileName string
	Port        int
	BoundSpec   *openapi3.T

	done     chan struct{}
	shutdown func(context.Context) error

	mu      sync.Mutex
	exitErr error
}

// Running reports whether the serve goroutine is still alive. A server whose
// port bind failed terminates immediately, so callers must poll liveness
// rather than assume success from a non-failing Start.
func (h *Handle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// ExitErr returns the error the serve goroutine terminated with, if any.
func (h *Handle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

// Manager starts, restarts, and stops tool servers, at most one live listener
// per profile at a time.
type Manager struct {
	registry *Registry

	mu      sync.Mutex
	handles map[string]*Handle
}

// NewManager creates a manager over the given registry.
func NewManager(registry *Registry) *Manager {
	return &Manager{
		registry: registry,
		handles:  make(map[string]*Handle),
	}
}

// EnsureLoaded fetches and catalogs the profile's spec if it has none yet.
// Freshly discovered operations are seeded disabled; existing enable choices
// for operations still present survive the refresh.
func (m *Manager) EnsureLoaded(ctx context.Context, name string) error {
	profile, ok := m.registry.Get(name)
	if !ok {
		return errs.New(errs.TypeStore, "profile not found", name)
	}
	if profile.Spec != nil {
		return nil
	}
	return m.Refresh(ctx, name)
}

// Refresh reloads the profile's spec from its source URL and rebuilds the
// operation catalog, superseding prior descriptors wholesale.
func (m *Manager) Refresh(ctx context.Context, name string) error {
	profile, ok := m.registry.Get(name)
	if !ok {
		return errs.New(errs.TypeStore, "profile not found", name)
	}

	doc, err := loader.Load(ctx, profile.SpecURL)
	if err != nil {
		return err
	}

	ops := catalog.Build(doc)
	err = m.registry.WithLock(name, func(p *models.APIProfile) error {
		p.Spec = doc
		catalog.SeedEnabled(p, ops)
		return nil
	})
	return err
}

// Start compiles the profile's enabled operations into a tool server bound to
// the profile's port and launches it on its own goroutine. Precondition
// failures (no loadable spec), projection failures, and compile failures are
// synchronous; a failing port bind after launch is asynchronous and only
// observable through the log ring and IsRunning.
func (m *Manager) Start(ctx context.Context, name string) (*Handle, error) {
	profile, ok := m.registry.Get(name)
	if !ok {
		return nil, errs.New(errs.TypeStore, "profile not found", name)
	}

	if profile.Spec == nil {
		if err := m.Refresh(ctx, name); err != nil {
			return nil, errs.New(errs.TypeSpecNotLoaded,
				"start requires a loaded spec", err.Error())
		}
		profile, _ = m.registry.Get(name)
	}

	projected, err := catalog.Project(profile.Spec, profile.EnabledKeys())
	if err != nil {
		return nil, err
	}

	baseURL, err := resolveBaseURL(profile.Spec)
	if err != nil {
		return nil, err
	}

	ring := m.registry.Logs(name)
	client := dispatch.New(baseURL, profile.StaticHeaders(), profile.StaticQuery(), ring.Append)

	serverName := profile.Name
	if profile.Project != "" {
		serverName = profile.Project + "_" + profile.Name
	}
	tools, err := bridge.Compile(serverName, projected, client, profile.ToolNames)
	if err != nil {
		return nil, err
	}

	// Supersede any live server for this profile before binding the port.
	if err := m.Stop(ctx, name); err != nil {
		log.Printf("failed to stop previous server for %s: %v", name, err)
	}

	httpServer := bridge.NewHTTPServer(tools, fmt.Sprintf(":%d", profile.Port))
	handle := &Handle{
		ID:          uuid.NewString(),
		ProfileName: name,
		Port:        profile.Port,
		BoundSpec:   projected,
		done:        make(chan struct{}),
		shutdown:    httpServer.Shutdown,
	}

	ring.Clear()
	ring.Append(fmt.Sprintf("tool server starting on :%d", profile.Port))

	go func() {
		err := httpServer.Start()
		handle.mu.Lock()
		handle.exitErr = err
		handle.mu.Unlock()
		if err != nil {
			ring.Append(fmt.Sprintf("server exited: %v", err))
		} else {
			ring.Append("server stopped")
		}
		close(handle.done)
	}()

	m.mu.Lock()
	m.handles[name] = handle
	m.mu.Unlock()

	log.Printf("Started tool server %s on :%d (%d tools)", serverName, profile.Port, len(tools.Tools()))
	return handle, nil
}

// Restart stops any live server for the profile, waits for it to drain
// within the grace period, then starts a fresh one.
func (m *Manager) Restart(ctx context.Context, name string) (*Handle, error) {
	return m.Start(ctx, name)
}

// Stop gracefully shuts down the profile's live server, if any, and waits for
// its goroutine to terminate within the grace period.
func (m *Manager) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	handle := m.handles[name]
	delete(m.handles, name)
	m.mu.Unlock()

	if handle == nil || !handle.Running() {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	if err := handle.shutdown(shutdownCtx); err != nil {
		return err
	}

	select {
	case <-handle.done:
		return nil
	case <-shutdownCtx.Done():
		return fmt.Errorf("server for %s did not stop within %s", name, shutdownGrace)
	}
}

// Handle returns the current handle for a profile, if one exists.
func (m *Manager) Handle(name string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[name]
	return h, ok
}

// IsRunning reports whether the profile has a live server: a handle exists
// and its serve goroutine has not terminated.
func (m *Manager) IsRunning(name string) bool {
	h, ok := m.Handle(name)
	return ok && h.Running()
}

// resolveBaseURL takes the first declared server URL with its trailing slash
// stripped.
func resolveBaseURL(doc *openapi3.T) (string, error) {
	if doc == nil || len(doc.Servers) == 0 || doc.Servers[0].URL == "" {
		return "", errs.New(errs.TypeCompile, "spec declares no server base URL", "")
	}
	return strings.TrimRight(doc.Servers[0].URL, "/"), nil
}
