package offline

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryInstallsOnVersionChange(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage(0)
	r := NewRegistry(testConfig(t, ""), s, shellNet())

	reg, updated, err := r.Register(ctx, "/sw.js?v=v1")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.Equal(t, "v1", reg.Version)
	assert.NotEmpty(t, reg.ID)
	first := r.Active()

	again, updated, err := r.Register(ctx, "/sw.js?v=v1")
	require.NoError(t, err)
	assert.False(t, updated)
	assert.Equal(t, reg.ID, again.ID)
	assert.Same(t, first, r.Active())

	reg2, updated, err := r.Register(ctx, "/sw.js?v=v2")
	require.NoError(t, err)
	assert.True(t, updated)
	assert.NotEqual(t, reg.ID, reg2.ID)
	assert.Equal(t, StateRedundant, first.State())

	status, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "activated", status.State)
	assert.Equal(t, []string{"wd-shell-v2"}, status.Caches)
}

func TestRegistryOldRevalidationCannotRecreateDeletedCaches(t *testing.T) {
	ctx := context.Background()
	n := shellNet()
	n.serve("/cached.css", http.StatusOK, "cached")
	s := NewMemoryStorage(0)
	r := NewRegistry(testConfig(t, ""), s, n)

	_, _, err := r.Register(ctx, "/sw.js?v=v1")
	require.NoError(t, err)
	v1 := r.Active()

	resp, err := r.Handle(ctx, asset(t, "/cached.css"))
	require.NoError(t, err)
	assert.Equal(t, "cached", bodyOf(t, resp))

	started := make(chan struct{})
	release := make(chan struct{})
	n.handle("/cached.css", func(context.Context) (*Response, error) {
		close(started)
		<-release
		return NewResponse(http.StatusOK, nil, []byte("revalidated")), nil
	})
	resp, err = r.Handle(ctx, asset(t, "/cached.css"))
	require.NoError(t, err)
	assert.Equal(t, "cached", bodyOf(t, resp))
	<-started

	_, updated, err := r.Register(ctx, "/sw.js?v=v2")
	require.NoError(t, err)
	require.True(t, updated)

	close(release)
	v1.Wait()

	names, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wd-shell-v2"}, names)
	assert.Equal(t, StateRedundant, v1.State())
}

func TestRegistryKeepsOldWorkerWhenInstallFails(t *testing.T) {
	ctx := context.Background()
	n := shellNet()
	r := NewRegistry(testConfig(t, ""), NewMemoryStorage(0), n)

	_, _, err := r.Register(ctx, "/sw.js?v=v1")
	require.NoError(t, err)

	n.serve("/offline.html", http.StatusInternalServerError, "")
	_, updated, err := r.Register(ctx, "/sw.js?v=v2")
	assert.ErrorIs(t, err, ErrInstallFailed)
	assert.False(t, updated)
	assert.Equal(t, "v1", r.Active().Version())
	assert.Equal(t, StateActivated, r.Active().State())
}

func TestRegistryRequiresVersion(t *testing.T) {
	r := NewRegistry(testConfig(t, ""), NewMemoryStorage(0), shellNet())
	_, _, err := r.Register(context.Background(), "/sw.js")
	assert.ErrorIs(t, err, ErrMissingVersion)

	status, err := r.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "unregistered", status.State)
}

func TestRegistryHandlePassesThroughWithoutWorker(t *testing.T) {
	n := shellNet()
	r := NewRegistry(testConfig(t, ""), NewMemoryStorage(0), n)

	resp, err := r.Handle(context.Background(), navigation(t, "/"))
	require.NoError(t, err)
	assert.Equal(t, "shell", bodyOf(t, resp))
	assert.Len(t, n.Calls(), 1)
}
