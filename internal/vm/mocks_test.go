package vm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jbweber/qubeforge/api/v1alpha1"
	"github.com/jbweber/qubeforge/internal/qubes"
)

// fakeQube is the simulated state of one qube.
type fakeQube struct {
	running   bool
	pollsLeft int
	boots     int
	features  map[string]string
	prefs     map[string]string
	firewall  qubes.FirewallRule
}

// fakeSurface simulates dom0 for the provisioner.
//
// A started qube stays running for two state queries and then halts, which
// lets every edge wait see both edges. The readiness marker appears when
// the markOnBoot-th boot halts.
type fakeSurface struct {
	mu sync.Mutex

	qubes    map[string]*fakeQube
	existing map[string]bool

	// Configurable behavior
	markOnBoot    int
	earlyValue    string
	neverHalt     bool
	startFailures int
	createFunc    func(name string) error
	runFunc       func(name, command string) error
	copyInFunc    func(src, dest, path string) error
	shutdownFunc  func(name string) error
	syncErr       error

	// Call tracking, in order
	calls        []string
	appMenuPolls map[string]int
}

// newFakeSurface creates a fake where the tools install boot sets the
// marker, so no finalize boot is needed.
func newFakeSurface(existing ...string) *fakeSurface {
	f := &fakeSurface{
		qubes:        map[string]*fakeQube{},
		existing:     map[string]bool{},
		markOnBoot:   3,
		appMenuPolls: map[string]int{},
	}
	for _, name := range existing {
		f.existing[name] = true
	}
	return f
}

func (f *fakeSurface) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeSurface) qube(name string) (*fakeQube, error) {
	q, ok := f.qubes[name]
	if !ok {
		return nil, fmt.Errorf("qube %s does not exist", name)
	}
	return q, nil
}

// tick advances a running qube towards halting.
func (f *fakeSurface) tick(q *fakeQube) {
	if !q.running || f.neverHalt {
		return
	}
	q.pollsLeft--
	if q.pollsLeft > 0 {
		return
	}
	q.running = false
	q.boots++
	if q.boots == 1 && f.earlyValue != "" {
		q.features[ReadinessMarker.Feature] = f.earlyValue
	}
	if q.boots == f.markOnBoot {
		q.features[ReadinessMarker.Feature] = ReadinessMarker.Value
	}
}

func (f *fakeSurface) Exists(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, created := f.qubes[name]
	return created || f.existing[name], nil
}

func (f *fakeSurface) IsRunning(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, err := f.qube(name)
	if err != nil {
		return false, err
	}
	f.tick(q)
	return q.running, nil
}

func (f *fakeSurface) GetFeature(_ context.Context, name, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, err := f.qube(name)
	if err != nil {
		return "", false, err
	}
	f.tick(q)
	v, ok := q.features[key]
	return v, ok, nil
}

func (f *fakeSurface) SetFeature(_ context.Context, name, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetFeature %s %s=%s", name, key, value)
	q, err := f.qube(name)
	if err != nil {
		return err
	}
	q.features[key] = value
	return nil
}

func (f *fakeSurface) UnsetFeature(_ context.Context, name, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("UnsetFeature %s %s", name, key)
	q, err := f.qube(name)
	if err != nil {
		return err
	}
	delete(q.features, key)
	return nil
}

func (f *fakeSurface) Create(_ context.Context, name string, class v1alpha1.Class, opts qubes.CreateOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Create %s %s %s", name, class, opts.Label)
	if f.createFunc != nil {
		if err := f.createFunc(name); err != nil {
			return err
		}
	}
	f.qubes[name] = &fakeQube{features: map[string]string{}, prefs: map[string]string{}}
	return nil
}

func (f *fakeSurface) SetPref(_ context.Context, name, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetPref %s %s=%s", name, key, value)
	q, err := f.qube(name)
	if err != nil {
		return err
	}
	q.prefs[key] = value
	return nil
}

func (f *fakeSurface) ExtendVolume(_ context.Context, name, volume string, sizeGiB int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ExtendVolume %s:%s %s", name, volume, strconv.Itoa(sizeGiB))
	return nil
}

func (f *fakeSurface) Start(_ context.Context, name string, media *v1alpha1.MediaRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cdrom := "-"
	if media != nil {
		cdrom = media.String()
	}
	f.record("Start %s %s", name, cdrom)

	if f.startFailures > 0 {
		f.startFailures--
		return errors.New("not enough memory to start domain")
	}
	q, err := f.qube(name)
	if err != nil {
		return err
	}
	q.running = true
	q.pollsLeft = 2
	return nil
}

func (f *fakeSurface) ShutdownAndWait(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("ShutdownAndWait %s", name)
	if f.shutdownFunc != nil {
		if err := f.shutdownFunc(name); err != nil {
			return err
		}
	}
	q, err := f.qube(name)
	if err != nil {
		return err
	}
	q.running = false
	return nil
}

func (f *fakeSurface) Run(_ context.Context, name, command string, _ qubes.RunOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("Run %s %s", name, command)
	if f.runFunc != nil {
		return nil, f.runFunc(name, command)
	}
	return nil, nil
}

func (f *fakeSurface) CopyIn(_ context.Context, src, dest, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CopyIn %s %s %s", src, dest, path)
	if f.copyInFunc != nil {
		return f.copyInFunc(src, dest, path)
	}
	return nil
}

func (f *fakeSurface) SetFirewall(_ context.Context, name string, rule qubes.FirewallRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SetFirewall %s %s", name, rule)
	q, err := f.qube(name)
	if err != nil {
		return err
	}
	q.firewall = rule
	return nil
}

func (f *fakeSurface) AddTag(_ context.Context, name, tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("AddTag %s %s", name, tag)
	return nil
}

func (f *fakeSurface) ListFiles(context.Context, string, string, string) ([]string, error) {
	return nil, nil
}

func (f *fakeSurface) AppMenuSyncRunning(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appMenuPolls[name]++
	return f.appMenuPolls[name] == 2, nil
}

func (f *fakeSurface) SyncAppMenus(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("SyncAppMenus %s", name)
	return f.syncErr
}

// snapshot returns a copy of the recorded calls.
func (f *fakeSurface) snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// index returns the position of the first call with prefix, or -1.
func (f *fakeSurface) index(prefix string) int {
	for i, c := range f.snapshot() {
		if strings.HasPrefix(c, prefix) {
			return i
		}
	}
	return -1
}

// lastIndex returns the position of the last call with prefix, or -1.
func (f *fakeSurface) lastIndex(prefix string) int {
	calls := f.snapshot()
	for i := len(calls) - 1; i >= 0; i-- {
		if strings.HasPrefix(calls[i], prefix) {
			return i
		}
	}
	return -1
}

// count returns how many calls start with prefix.
func (f *fakeSurface) count(prefix string) int {
	n := 0
	for _, c := range f.snapshot() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

var _ qubes.Surface = (*fakeSurface)(nil)

const (
	testInstallMedia = "windows-mgmt:/home/user/qf/windows-media/out/win10x64.iso"
	testToolsMedia   = "windows-mgmt:/home/user/qf/tools-media/qwt-installer.iso"
)

// mockStager is a mock implementation of MediaStager.
type mockStager struct {
	mu sync.Mutex

	checkErr error

	checkCalls        int
	stageInstallCalls int
	stageToolsCalls   int
}

func (m *mockStager) Resources() string { return "windows-mgmt" }

func (m *mockStager) PostBundle() string { return "/home/user/qf/post" }

func (m *mockStager) Check(context.Context, string, string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkCalls++
	return m.checkErr
}

func (m *mockStager) StageInstall(context.Context, string, string) (*v1alpha1.MediaRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageInstallCalls++
	return &v1alpha1.MediaRef{Instance: "windows-mgmt", Path: "/home/user/qf/windows-media/out/win10x64.iso"}, nil
}

func (m *mockStager) StageTools(context.Context, string) (*v1alpha1.MediaRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageToolsCalls++
	return &v1alpha1.MediaRef{Instance: "windows-mgmt", Path: "/home/user/qf/tools-media/qwt-installer.iso"}, nil
}

var _ MediaStager = (*mockStager)(nil)
