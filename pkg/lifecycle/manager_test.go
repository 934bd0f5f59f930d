package lifecycle

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toolbridge/toolbridge/pkg/bridge"
	"github.com/toolbridge/toolbridge/pkg/errs"
	"github.com/toolbridge/toolbridge/pkg/models"
)

// newSpecServer serves a petstore spec whose base URL points at backendURL.
func newSpecServer(t *testing.T, backendURL string) *httptest.Server {
	t.Helper()
	spec := fmt.Sprintf(`{
		"openapi": "3.0.0",
		"info": {"title": "Petstore", "version": "1.0.0"},
		"servers": [{"url": %q}],
		"paths": {
			"/pets": {
				"get": {"operationId": "listPets", "summary": "List all pets", "responses": {"200": {"description": "ok"}}},
				"post": {"operationId": "createPet", "responses": {"201": {"description": "created"}}}
			}
		}
	}`, backendURL)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(spec))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"name":"rex"}]`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func newTestProfile(t *testing.T, registry *Registry) *models.APIProfile {
	t.Helper()
	backend := newBackend(t)
	specSrv := newSpecServer(t, backend.URL)

	profile := models.NewAPIProfile("petstore", specSrv.URL, freePort(t))
	registry.Put(profile)
	return profile
}

func waitForLiveness(t *testing.T, port int) {
	t.Helper()
	client := bridge.NewClient(port)
	require.Eventually(t, func() bool {
		_, err := client.ListTools(context.Background())
		return err == nil
	}, 3*time.Second, 20*time.Millisecond)
}

func TestRefreshBuildsCatalog(t *testing.T) {
	registry := NewRegistry()
	manager := NewManager(registry)
	profile := newTestProfile(t, registry)

	require.NoError(t, manager.Refresh(context.Background(), "petstore"))

	assert.NotNil(t, profile.Spec)
	assert.Len(t, profile.Operations, 2)
	assert.False(t, profile.Enabled["get /pets"])
	assert.False(t, profile.Enabled["post /pets"])
}

func TestStartUnknownProfile(t *testing.T) {
	manager := NewManager(NewRegistry())

	_, err := manager.Start(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeStore))
}

func TestStartWithUnloadableSpec(t *testing.T) {
	registry := NewRegistry()
	manager := NewManager(registry)

	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	registry.Put(models.NewAPIProfile("broken", dead.URL, freePort(t)))

	_, err := manager.Start(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeSpecNotLoaded))
	assert.False(t, manager.IsRunning("broken"))
}

func TestStartServesEnabledOperationsOnly(t *testing.T) {
	registry := NewRegistry()
	manager := NewManager(registry)
	profile := newTestProfile(t, registry)
	ctx := context.Background()

	require.NoError(t, manager.Refresh(ctx, "petstore"))
	profile.Enabled["get /pets"] = true

	handle, err := manager.Start(ctx, "petstore")
	require.NoError(t, err)
	defer manager.Stop(ctx, "petstore")

	waitForLiveness(t, handle.Port)
	assert.True(t, manager.IsRunning("petstore"))

	tools, err := bridge.NewClient(handle.Port).ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "listPets", tools[0].Name)

	// The projection bound to the server carries only the enabled path.
	require.NotNil(t, handle.BoundSpec)
	assert.Nil(t, handle.BoundSpec.Paths.Value("/pets").Post)
}

func TestStartWithNothingEnabled(t *testing.T) {
	registry := NewRegistry()
	manager := NewManager(registry)
	newTestProfile(t, registry)
	ctx := context.Background()

	require.NoError(t, manager.Refresh(ctx, "petstore"))

	_, err := manager.Start(ctx, "petstore")
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.TypeCompile))
}

func TestStartSupersedesPreviousServer(t *testing.T) {
	registry := NewRegistry()
	manager := NewManager(registry)
	profile := newTestProfile(t, registry)
	ctx := context.Background()

	require.NoError(t, manager.Refresh(ctx, "petstore"))
	profile.Enabled["get /pets"] = true

	first, err := manager.Start(ctx, "petstore")
	require.NoError(t, err)
	waitForLiveness(t, first.Port)

	profile.Enabled["post /pets"] = true
	second, err := manager.Start(ctx, "petstore")
	require.NoError(t, err)
	defer manager.Stop(ctx, "petstore")

	waitForLiveness(t, second.Port)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.Running())

	tools, err := bridge.NewClient(second.Port).ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, tools, 2)
}

func TestPortConflictIsAsynchronous(t *testing.T) {
	registry := NewRegistry()
	manager := NewManager(registry)
	profile := newTestProfile(t, registry)
	ctx := context.Background()

	require.NoError(t, manager.Refresh(ctx, "petstore"))
	profile.Enabled["get /pets"] = true

	// Occupy the profile's port before starting.
	blocker, err := net.Listen("tcp", fmt.Sprintf(":%d", profile.Port))
	require.NoError(t, err)
	defer blocker.Close()

	handle, err := manager.Start(ctx, "petstore")
	require.NoError(t, err)

	// The bind failure is only observable through liveness and the log ring.
	require.Eventually(t, func() bool {
		return !handle.Running()
	}, 3*time.Second, 20*time.Millisecond)
	assert.False(t, manager.IsRunning("petstore"))
	assert.Error(t, handle.ExitErr())

	logged := strings.Join(registry.Logs("petstore").Last(10), "\n")
	assert.Contains(t, logged, "server exited")
}

func TestStopIdempotent(t *testing.T) {
	registry := NewRegistry()
	manager := NewManager(registry)
	ctx := context.Background()

	assert.NoError(t, manager.Stop(ctx, "never-started"))
}

func TestStopTerminatesServer(t *testing.T) {
	registry := NewRegistry()
	manager := NewManager(registry)
	profile := newTestProfile(t, registry)
	ctx := context.Background()

	require.NoError(t, manager.Refresh(ctx, "petstore"))
	profile.Enabled["get /pets"] = true

	handle, err := manager.Start(ctx, "petstore")
	require.NoError(t, err)
	waitForLiveness(t, handle.Port)

	require.NoError(t, manager.Stop(ctx, "petstore"))
	assert.False(t, handle.Running())
	assert.False(t, manager.IsRunning("petstore"))
}
