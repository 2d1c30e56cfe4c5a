package app

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"appforge/pkg/runtime"
	"appforge/pkg/store"
)

// memObjects is an in-process ObjectStore for tests.
type memObjects struct {
	mu     sync.Mutex
	blobs  map[string][]byte
	failOn string // key that fails Put, for error-path tests
}

func newMemObjects() *memObjects {
	return &memObjects{blobs: make(map[string][]byte)}
}

func (m *memObjects) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && key == m.failOn {
		return fmt.Errorf("simulated blob failure for %s", key)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.blobs[key] = data
	return nil
}

func (m *memObjects) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, fmt.Errorf("object %s not found", key)
	}
	return data, nil
}

func (m *memObjects) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://objects.test/" + key, nil
}

func (m *memObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// fakeGenerator returns a canned reply and records prompts.
type fakeGenerator struct {
	reply        string
	err          error
	systemPrompt string
	userPrompt   string
}

func (g *fakeGenerator) GenerateText(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	g.systemPrompt = systemPrompt
	g.userPrompt = userPrompt
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

// fakeRuntime tracks container state transitions in-process.
type fakeRuntime struct {
	mu         sync.Mutex
	nextID     int
	running    map[string]bool
	copied     map[string]map[string]string // containerID -> files
	images     map[string]string            // containerID -> image
	names      map[string]string            // containerID -> name
	logs       string
	failCreate error
	failCopy   error
	failStart  error
	failStop   error
	failRemove error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		running: make(map[string]bool),
		copied:  make(map[string]map[string]string),
		images:  make(map[string]string),
		names:   make(map[string]string),
		logs:    "server listening on 3000\n",
	}
}

func (f *fakeRuntime) CreateContainer(_ context.Context, cfg runtime.ContainerConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate != nil {
		return "", f.failCreate
	}
	f.nextID++
	id := fmt.Sprintf("ctr-%d", f.nextID)
	f.running[id] = false
	f.images[id] = cfg.Image
	f.names[id] = cfg.Name
	return id, nil
}

func (f *fakeRuntime) StartContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart != nil {
		return f.failStart
	}
	if _, ok := f.running[id]; !ok {
		return fmt.Errorf("no such container %s", id)
	}
	f.running[id] = true
	return nil
}

func (f *fakeRuntime) StopContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStop != nil {
		return f.failStop
	}
	if _, ok := f.running[id]; !ok {
		return fmt.Errorf("no such container %s", id)
	}
	f.running[id] = false
	return nil
}

func (f *fakeRuntime) RemoveContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failRemove != nil {
		return f.failRemove
	}
	if f.running[id] {
		return fmt.Errorf("container %s is running", id)
	}
	delete(f.running, id)
	return nil
}

func (f *fakeRuntime) ContainerLogs(_ context.Context, id string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.running[id]; !ok {
		return "", fmt.Errorf("no such container %s", id)
	}
	return f.logs, nil
}

func (f *fakeRuntime) CopyToContainer(_ context.Context, id, _ string, files map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCopy != nil {
		return f.failCopy
	}
	copied := make(map[string]string, len(files))
	for k, v := range files {
		copied[k] = v
	}
	f.copied[id] = copied
	return nil
}

func (f *fakeRuntime) runningContainers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, up := range f.running {
		if up {
			ids = append(ids, id)
		}
	}
	return ids
}

// stubLocker grants every acquire. Lock semantics are covered by the
// ownerlock package tests.
type stubLocker struct{}

func (stubLocker) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

func newTestApp(t *testing.T) (*App, *store.MemoryStore, *memObjects, *fakeGenerator, *fakeRuntime) {
	t.Helper()
	memStore := store.NewMemoryStore()
	objects := newMemObjects()
	generator := &fakeGenerator{}
	rt := newFakeRuntime()
	a, err := New(Config{
		Store:           memStore,
		Objects:         objects,
		Generator:       generator,
		Runtime:         rt,
		Locks:           stubLocker{},
		PreviewBaseURL:  "https://preview.test",
		PreviewHostPort: 3000,
		DefaultImage:    "node:18",
		FrameworkImages: map[string]string{"react": "node:18", "vue": "node:18", "svelte": "node:18"},
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, memStore, objects, generator, rt
}
