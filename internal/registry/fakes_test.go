package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/stretchr/testify/require"

	"evalgo.org/dockyard/internal/cache"
	"evalgo.org/dockyard/internal/config"
	"evalgo.org/dockyard/internal/engine"
	"evalgo.org/dockyard/internal/storage"
	"evalgo.org/dockyard/models"
)

var errRefused = errors.New("dial tcp 10.0.0.1:4243: connect: connection refused")

func unreachableErr(op string) error {
	return engine.NewError("alpha", op, engine.ErrConnectionFailure, errRefused)
}

func notFoundErr(op, id string) error {
	return engine.NewError("alpha", op, engine.ErrRemoteOperation, fmt.Errorf("no such container %s: %w", id, cerrdefs.ErrNotFound))
}

func conflictErr(op, id string) error {
	return engine.NewError("alpha", op, engine.ErrRemoteOperation, fmt.Errorf("container %s is not running: %w", id, cerrdefs.ErrConflict))
}

type fakeContainer struct {
	running bool
	image   string
}

// fakeEngine is an in-memory Engine with call counters and injectable
// failures.
type fakeEngine struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	images     []engine.ImageDescriptor

	listErr    error
	imagesErr  error
	inspectErr map[string]error
	opErr      map[string]error
	exitOnRun  bool
	listDelay  time.Duration

	calls map[string]int
	ops   []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: map[string]*fakeContainer{},
		inspectErr: map[string]error{},
		opErr:      map[string]error{},
		calls:      map[string]int{},
	}
}

// fullID pads seed to a 64 character engine id.
func fullID(seed string) string {
	return (seed + strings.Repeat("0", 64))[:64]
}

func (f *fakeEngine) add(id string, running bool) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.containers[id] = &fakeContainer{running: running, image: "nginx"}
	return id
}

func (f *fakeEngine) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.containers, id)
}

func (f *fakeEngine) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeEngine) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	f.ops = append(f.ops, op)
	return f.opErr[op]
}

// ListContainers snapshots the containers when called and answers after
// listDelay, or with ctx's error if ctx ends first.
func (f *fakeEngine) ListContainers(ctx context.Context, includeStopped bool) ([]engine.ContainerDescriptor, error) {
	f.mu.Lock()
	f.calls["list"]++
	f.ops = append(f.ops, "list")
	err := f.opErr["list"]
	if err == nil {
		err = f.listErr
	}
	delay := f.listDelay

	out := []engine.ContainerDescriptor{}
	for id, c := range f.containers {
		if !c.running && !includeStopped {
			continue
		}
		state := "exited"
		if c.running {
			state = "running"
		}
		out = append(out, engine.ContainerDescriptor{ID: id, Image: c.image, State: state})
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeEngine) InspectContainer(_ context.Context, id string) (json.RawMessage, bool, error) {
	if err := f.record("inspect"); err != nil {
		return nil, false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.inspectErr[id]; ok {
		return nil, false, err
	}
	c, ok := f.containers[id]
	if !ok {
		return nil, false, notFoundErr("inspect container", id)
	}
	raw := fmt.Sprintf(`{"Id":%q,"State":{"Running":%t},"Config":{"Image":%q,"Memory":134217728}}`, id, c.running, c.image)
	return json.RawMessage(raw), c.running, nil
}

func (f *fakeEngine) ListImages(_ context.Context, includeAll bool) ([]engine.ImageDescriptor, error) {
	if err := f.record("images"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.imagesErr != nil {
		return nil, f.imagesErr
	}
	return append([]engine.ImageDescriptor{}, f.images...), nil
}

func (f *fakeEngine) CreateContainer(_ context.Context, opts engine.CreateOptions) (string, bool, error) {
	if err := f.record("create"); err != nil {
		return "", false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fullID(fmt.Sprintf("new%09d", len(f.containers)))
	running := !f.exitOnRun
	f.containers[id] = &fakeContainer{running: running, image: opts.Image}
	return id, running, nil
}

func (f *fakeEngine) setRunning(id string, running bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return notFoundErr("container", id)
	}
	c.running = running
	return nil
}

func (f *fakeEngine) StartContainer(_ context.Context, id string) error {
	if err := f.record("start"); err != nil {
		return err
	}
	return f.setRunning(id, true)
}

func (f *fakeEngine) StopContainer(_ context.Context, id string) error {
	if err := f.record("stop"); err != nil {
		return err
	}
	return f.setRunning(id, false)
}

func (f *fakeEngine) RestartContainer(_ context.Context, id string) error {
	if err := f.record("restart"); err != nil {
		return err
	}
	return f.setRunning(id, true)
}

func (f *fakeEngine) KillContainer(_ context.Context, id string) error {
	if err := f.record("kill"); err != nil {
		return err
	}
	f.mu.Lock()
	c, ok := f.containers[id]
	f.mu.Unlock()
	if ok && !c.running {
		return conflictErr("kill container", id)
	}
	return f.setRunning(id, false)
}

func (f *fakeEngine) RemoveContainer(_ context.Context, id string) error {
	if err := f.record("remove"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.containers[id]; !ok {
		return notFoundErr("remove container", id)
	}
	delete(f.containers, id)
	return nil
}

func (f *fakeEngine) PullImage(_ context.Context, repository string) error {
	return f.record("pull")
}

func (f *fakeEngine) RemoveImage(_ context.Context, id string) error {
	return f.record("remove image")
}

func (f *fakeEngine) BuildImage(_ context.Context, dockerfilePath, tag string) error {
	return f.record("build")
}

func (f *fakeEngine) FetchLogs(_ context.Context, id string) (string, error) {
	if err := f.record("logs"); err != nil {
		return "", err
	}
	return "log output for " + engine.ShortID(id), nil
}

// failingStore wraps a store and fails upserts for selected ids.
type failingStore struct {
	MetadataStore
	failUpsert map[string]bool
}

func (s *failingStore) UpsertContainer(hostID, containerID string, mutate func(*models.ContainerMetadata)) (*models.ContainerMetadata, error) {
	if s.failUpsert[containerID] {
		return nil, errors.New("disk full")
	}
	return s.MetadataStore.UpsertContainer(hostID, containerID, mutate)
}

// brokenCache fails every operation.
type brokenCache struct{}

var errCacheDown = errors.New("cache backend down")

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errCacheDown }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errCacheDown
}
func (brokenCache) Delete(context.Context, string) error { return errCacheDown }
func (brokenCache) DeletePattern(context.Context, string) (int, error) {
	return 0, errCacheDown
}
func (brokenCache) Close() error { return nil }

type fixture struct {
	host   *models.Host
	engine *fakeEngine
	cache  *cache.Memory
	store  *storage.Storage
	reg    *Registry
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	store, err := storage.New(config.StorageConfig{Path: filepath.Join(t.TempDir(), "dockyard.db"), Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	host := &models.Host{Name: "alpha", Hostname: "10.0.0.1", Port: 4243, Enabled: true}
	require.NoError(t, store.CreateHost(host))

	mem := cache.NewMemory(time.Minute)
	t.Cleanup(func() { _ = mem.Close() })

	eng := newFakeEngine()
	return &fixture{
		host:   host,
		engine: eng,
		cache:  mem,
		store:  store,
		reg:    New(host, eng, mem, store, opts...),
	}
}

func (fx *fixture) record(t *testing.T, id string) *models.ContainerMetadata {
	t.Helper()
	rec, err := fx.store.GetContainer(fx.host.ID, engine.ShortID(id))
	require.NoError(t, err)
	return rec
}
