package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/engine/enginetest"
	"evalgo.org/dockyard/internal/version"
	"evalgo.org/dockyard/models"
)

func newClient(t *testing.T, d *enginetest.Daemon) *engine.Client {
	t.Helper()
	c, err := engine.New(d.Host("alpha"), engine.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestListContainers(t *testing.T) {
	d := enginetest.New(t)
	d.AddContainer(enginetest.Container{Name: "web", Image: "nginx:latest", Running: true})
	d.AddContainer(enginetest.Container{Name: "worker", Image: "busybox:latest"})
	c := newClient(t, d)
	ctx := context.Background()

	running, err := c.ListContainers(ctx, false)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, "nginx:latest", running[0].Image)
	assert.Equal(t, []string{"/web"}, running[0].Names)
	assert.Len(t, running[0].ShortID(), engine.ShortIDLength)

	all, err := c.ListContainers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestClientIdentifiesItself(t *testing.T) {
	d := enginetest.New(t)
	c := newClient(t, d)

	_, err := c.ListContainers(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, version.UserAgent(), d.UserAgent())
}

func TestInspectContainer(t *testing.T) {
	d := enginetest.New(t)
	ctr := d.AddContainer(enginetest.Container{Name: "web", Image: "nginx", Running: true, Memory: 134217728})
	c := newClient(t, d)

	raw, running, err := c.InspectContainer(context.Background(), ctr.ID)
	require.NoError(t, err)
	assert.True(t, running)

	meta := models.ParseMeta(raw)
	assert.True(t, meta.Running())
	require.NotNil(t, meta.Config.Memory)
	assert.Equal(t, int64(134217728), *meta.Config.Memory)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, ctr.ID, doc["Id"])
}

func TestInspectMissingContainerIsNotFound(t *testing.T) {
	d := enginetest.New(t)
	c := newClient(t, d)

	_, _, err := c.InspectContainer(context.Background(), "deadbeef")
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))
	assert.True(t, errors.Is(err, engine.ErrRemoteOperation))
	assert.False(t, engine.IsConnectionFailure(err))

	var engErr *engine.Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, "alpha", engErr.Host)
	assert.Equal(t, "inspect container", engErr.Op)
}

func TestListImagesDropsUntagged(t *testing.T) {
	d := enginetest.New(t)
	d.AddImage(enginetest.Image{RepoTags: []string{"nginx:1.25"}, Size: 1024})
	d.AddImage(enginetest.Image{RepoTags: []string{"<none>:<none>"}})
	d.AddImage(enginetest.Image{RepoTags: []string{"registry.local:5000/team/app:2"}})
	c := newClient(t, d)

	images, err := c.ListImages(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, images, 2)

	repos := map[string]string{}
	for _, img := range images {
		repos[img.Repository] = img.Tag
	}
	assert.Equal(t, map[string]string{"nginx": "1.25", "registry.local:5000/team/app": "2"}, repos)
}

func TestCreateContainer(t *testing.T) {
	d := enginetest.New(t)
	d.AddImage(enginetest.Image{RepoTags: []string{"nginx:latest"}})
	c := newClient(t, d)

	id, started, err := c.CreateContainer(context.Background(), engine.CreateOptions{
		Image:       "nginx",
		Command:     `nginx -g "daemon off;"`,
		Ports:       []string{"80", "53/udp"},
		MemoryBytes: 64 << 20,
		Volumes:     []string{"/data"},
		VolumesFrom: "store, cache",
		Privileged:  true,
	})
	require.NoError(t, err)
	assert.True(t, started)

	ctr, ok := d.Container(id)
	require.True(t, ok)
	assert.True(t, ctr.Running)
	assert.True(t, ctr.Tty)
	assert.True(t, ctr.Privileged)
	assert.Equal(t, []string{"nginx", "-g", "daemon off;"}, ctr.Command)
	assert.Equal(t, int64(64<<20), ctr.Memory)
	assert.Equal(t, []string{"/data"}, ctr.Volumes)
	assert.Equal(t, []string{"store", "cache"}, ctr.VolumesFrom)
	assert.Contains(t, ctr.Ports, "80/tcp")
	assert.Contains(t, ctr.Ports, "53/udp")
	assert.NotEmpty(t, ctr.Ports["80/tcp"])
}

func TestCreateContainerThatExits(t *testing.T) {
	d := enginetest.New(t)
	d.AddImage(enginetest.Image{RepoTags: []string{"oneshot:latest"}})
	d.ExitOnStart["oneshot"] = true
	c := newClient(t, d)

	id, started, err := c.CreateContainer(context.Background(), engine.CreateOptions{Image: "oneshot"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.False(t, started)
}

func TestCreateContainerInvalidOptions(t *testing.T) {
	d := enginetest.New(t)
	c := newClient(t, d)

	_, _, err := c.CreateContainer(context.Background(), engine.CreateOptions{Image: "nginx", Command: `echo "unterminated`})
	assert.ErrorIs(t, err, engine.ErrInvalidOptions)

	_, _, err = c.CreateContainer(context.Background(), engine.CreateOptions{Image: "nginx", Ports: []string{"http"}})
	assert.ErrorIs(t, err, engine.ErrInvalidOptions)

	assert.Zero(t, d.Calls("POST /containers/create"))
}

func TestContainerLifecycle(t *testing.T) {
	d := enginetest.New(t)
	ctr := d.AddContainer(enginetest.Container{Name: "web", Image: "nginx", Running: true})
	c := newClient(t, d)
	ctx := context.Background()

	require.NoError(t, c.StopContainer(ctx, ctr.ID))
	got, _ := d.Container(ctr.ID)
	assert.False(t, got.Running)

	require.NoError(t, c.StartContainer(ctx, ctr.ID))
	require.NoError(t, c.RestartContainer(ctx, ctr.ID))
	got, _ = d.Container(ctr.ID)
	assert.True(t, got.Running)

	require.NoError(t, c.KillContainer(ctx, ctr.ID))

	err := c.KillContainer(ctx, ctr.ID)
	require.Error(t, err)
	assert.True(t, engine.IsConflict(err))

	require.NoError(t, c.RemoveContainer(ctx, ctr.ID))
	assert.Zero(t, d.Containers())
}

func TestPullImage(t *testing.T) {
	d := enginetest.New(t)
	d.PullErrors["private/app"] = "pull access denied"
	c := newClient(t, d)
	ctx := context.Background()

	require.NoError(t, c.PullImage(ctx, "redis"))
	assert.True(t, d.HasImage("redis:latest"))

	err := c.PullImage(ctx, "private/app")
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrRemoteOperation)
	assert.Contains(t, err.Error(), "pull access denied")
}

func TestRemoveImage(t *testing.T) {
	d := enginetest.New(t)
	d.AddImage(enginetest.Image{RepoTags: []string{"nginx:latest"}})
	c := newClient(t, d)

	require.NoError(t, c.RemoveImage(context.Background(), "nginx:latest"))
	assert.False(t, d.HasImage("nginx:latest"))

	err := c.RemoveImage(context.Background(), "nginx:latest")
	assert.True(t, engine.IsNotFound(err))
}

func TestBuildImage(t *testing.T) {
	d := enginetest.New(t)
	c := newClient(t, d)

	dir := t.TempDir()
	path := filepath.Join(dir, "Dockerfile.web")
	require.NoError(t, os.WriteFile(path, []byte("FROM nginx\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "secret.txt"), []byte("x"), 0o644))

	require.NoError(t, c.BuildImage(context.Background(), path, "team/web:1"))
	assert.True(t, d.HasImage("team/web:1"))
}

func TestFetchLogs(t *testing.T) {
	d := enginetest.New(t)
	multiplexed := d.AddContainer(enginetest.Container{Name: "app", Image: "app", Logs: "starting\nready\n"})
	tty := d.AddContainer(enginetest.Container{Name: "shell", Image: "sh", Tty: true, Logs: "$ "})
	c := newClient(t, d)

	logs, err := c.FetchLogs(context.Background(), multiplexed.ID)
	require.NoError(t, err)
	assert.Equal(t, "starting\nready\n", logs)

	logs, err = c.FetchLogs(context.Background(), tty.ID)
	require.NoError(t, err)
	assert.Equal(t, "$ ", logs)
}

func TestFetchLogsTTYOutputLikeFrameHeader(t *testing.T) {
	d := enginetest.New(t)
	raw := "\x01\x00\x00\x00\x00\x00\x00\x02hi there\n"
	tty := d.AddContainer(enginetest.Container{Name: "shell", Image: "sh", Tty: true, Logs: raw})
	c := newClient(t, d)

	logs, err := c.FetchLogs(context.Background(), tty.ID)
	require.NoError(t, err)
	assert.Equal(t, raw, logs)
}

func TestFetchLogsMissingContainer(t *testing.T) {
	d := enginetest.New(t)
	c := newClient(t, d)

	_, err := c.FetchLogs(context.Background(), "0123456789ab")
	require.Error(t, err)
	assert.True(t, engine.IsNotFound(err))
}

func TestCancelledCallIsNotConnectionFailure(t *testing.T) {
	d := enginetest.New(t)
	d.Delay = 200 * time.Millisecond
	c := newClient(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.ListContainers(ctx, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, engine.IsConnectionFailure(err))
	assert.False(t, errors.Is(err, engine.ErrRemoteOperation))
}

func TestUnreachableHostIsConnectionFailure(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	host := &models.Host{Name: "gone", Hostname: "127.0.0.1", Port: port}
	c, err := engine.New(host, engine.DefaultOptions())
	require.NoError(t, err)

	_, err = c.ListContainers(context.Background(), false)
	require.Error(t, err)
	assert.True(t, engine.IsConnectionFailure(err))
	assert.Contains(t, err.Error(), "gone")
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestSlowHostTimesOut(t *testing.T) {
	d := enginetest.New(t)
	d.Delay = 300 * time.Millisecond

	opts := engine.DefaultOptions()
	opts.Timeout = 50 * time.Millisecond
	c, err := engine.New(d.Host("slow"), opts)
	require.NoError(t, err)

	_, err = c.ListContainers(context.Background(), false)
	require.Error(t, err)
	assert.True(t, engine.IsConnectionFailure(err))
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0123456789ab", engine.ShortID("0123456789abcdef"))
	assert.Equal(t, "abc", engine.ShortID("abc"))
}
