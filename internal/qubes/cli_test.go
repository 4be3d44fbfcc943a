package qubes

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/qubeforge/api/v1alpha1"
)

// fakeRunner records every command and answers with respond.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	stdins  []string
	respond func(argv string) ([]byte, error)
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		respond: func(string) ([]byte, error) { return nil, nil },
	}
}

func (f *fakeRunner) Run(_ context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	argv := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, argv)
	if stdin != nil {
		data, _ := io.ReadAll(stdin)
		f.stdins = append(f.stdins, string(data))
	}
	return f.respond(argv)
}

func exitWith(code int) error {
	return &CommandError{Args: []string{"x"}, ExitCode: code, Underlying: errors.New("exit")}
}

func TestCLI_Exists(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    bool
		wantErr bool
	}{
		{name: "exists", err: nil, want: true},
		{name: "missing", err: exitWith(1), want: false},
		{name: "cannot run", err: &CommandError{ExitCode: -1, Underlying: errors.New("not found")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			r.respond = func(string) ([]byte, error) { return nil, tt.err }

			got, err := NewCLI(r).Exists(context.Background(), "win")
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, []string{"qvm-check --quiet win"}, r.calls)
		})
	}
}

type fakeProbe struct {
	running bool
	err     error
	calls   int
}

func (p *fakeProbe) IsRunning(string) (bool, error) {
	p.calls++
	return p.running, p.err
}

func TestCLI_IsRunning(t *testing.T) {
	t.Run("qvm-check", func(t *testing.T) {
		r := newFakeRunner()
		r.respond = func(string) ([]byte, error) { return nil, exitWith(1) }

		running, err := NewCLI(r).IsRunning(context.Background(), "win")
		require.NoError(t, err)
		assert.False(t, running)
		assert.Equal(t, []string{"qvm-check --quiet --running win"}, r.calls)
	})

	t.Run("probe answers", func(t *testing.T) {
		r := newFakeRunner()
		p := &fakeProbe{running: true}

		running, err := NewCLI(r, WithRunningProbe(p)).IsRunning(context.Background(), "win")
		require.NoError(t, err)
		assert.True(t, running)
		assert.Empty(t, r.calls)
		assert.Equal(t, 1, p.calls)
	})

	t.Run("probe failure falls back", func(t *testing.T) {
		r := newFakeRunner()
		p := &fakeProbe{err: errors.New("socket gone")}

		running, err := NewCLI(r, WithRunningProbe(p)).IsRunning(context.Background(), "win")
		require.NoError(t, err)
		assert.True(t, running)
		assert.Equal(t, []string{"qvm-check --quiet --running win"}, r.calls)
	})
}

func TestCLI_GetFeature(t *testing.T) {
	r := newFakeRunner()
	r.respond = func(argv string) ([]byte, error) {
		switch argv {
		case "qvm-features win os":
			return []byte("Windows\n"), nil
		case "qvm-features win video-model":
			return nil, exitWith(1)
		}
		return nil, nil
	}
	cli := NewCLI(r)

	v, ok, err := cli.GetFeature(context.Background(), "win", "os")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Windows", v)

	_, ok, err = cli.GetFeature(context.Background(), "win", "video-model")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = cli.GetFeature(context.Background(), "win", "empty")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCLI_CommandLines(t *testing.T) {
	ctx := context.Background()
	media := &v1alpha1.MediaRef{Instance: "windows-mgmt", Path: "/home/user/out/win.iso"}

	tests := []struct {
		name string
		call func(c *CLI) error
		want []string
	}{
		{
			name: "create standalone",
			call: func(c *CLI) error {
				return c.Create(ctx, "win", v1alpha1.ClassStandalone, CreateOptions{})
			},
			want: []string{"qvm-create --class StandaloneVM --label red win"},
		},
		{
			name: "create template in pool",
			call: func(c *CLI) error {
				return c.Create(ctx, "win", v1alpha1.ClassTemplate, CreateOptions{Label: "black", Pool: "vm-pool"})
			},
			want: []string{"qvm-create --class TemplateVM --label black -P vm-pool win"},
		},
		{
			name: "set pref",
			call: func(c *CLI) error { return c.SetPref(ctx, "win", "memory", "4096") },
			want: []string{"qvm-prefs win memory 4096"},
		},
		{
			name: "unset feature",
			call: func(c *CLI) error { return c.UnsetFeature(ctx, "win", "video-model") },
			want: []string{"qvm-features --unset win video-model"},
		},
		{
			name: "extend volume",
			call: func(c *CLI) error { return c.ExtendVolume(ctx, "win", "root", 60) },
			want: []string{"qvm-volume extend win:root 60g"},
		},
		{
			name: "start with media",
			call: func(c *CLI) error { return c.Start(ctx, "win", media) },
			want: []string{"qvm-start --cdrom=windows-mgmt:/home/user/out/win.iso win"},
		},
		{
			name: "start without media",
			call: func(c *CLI) error { return c.Start(ctx, "win", nil) },
			want: []string{"qvm-start win"},
		},
		{
			name: "shutdown",
			call: func(c *CLI) error { return c.ShutdownAndWait(ctx, "win") },
			want: []string{"qvm-shutdown --wait win"},
		},
		{
			name: "copy in",
			call: func(c *CLI) error { return c.CopyIn(ctx, "windows-mgmt", "win", "post") },
			want: []string{"qvm-run --pass-io --no-gui windows-mgmt qvm-copy-to-vm 'win' 'post'"},
		},
		{
			name: "deny all",
			call: func(c *CLI) error { return c.SetFirewall(ctx, "win", FirewallDenyAll) },
			want: []string{
				"qvm-firewall win reset",
				"qvm-firewall win del --rule-no 0",
				"qvm-firewall win add drop",
			},
		},
		{
			name: "allow all",
			call: func(c *CLI) error { return c.SetFirewall(ctx, "win", FirewallAllowAll) },
			want: []string{"qvm-firewall win reset"},
		},
		{
			name: "tag",
			call: func(c *CLI) error { return c.AddTag(ctx, "win", "anon-vm") },
			want: []string{"qvm-tags win add anon-vm"},
		},
		{
			name: "sync app menus",
			call: func(c *CLI) error { return c.SyncAppMenus(ctx, "win") },
			want: []string{"qvm-sync-appmenus win"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newFakeRunner()
			require.NoError(t, tt.call(NewCLI(r)))
			assert.Equal(t, tt.want, r.calls)
		})
	}
}

func TestCLI_ErrorsAreWrapped(t *testing.T) {
	r := newFakeRunner()
	r.respond = func(string) ([]byte, error) { return nil, exitWith(2) }

	err := NewCLI(r).Start(context.Background(), "win", nil)
	require.Error(t, err)

	code, ok := ExitCode(err)
	assert.True(t, ok)
	assert.Equal(t, 2, code)
	assert.Contains(t, err.Error(), "failed to start win")
}

func TestCLI_Run(t *testing.T) {
	r := newFakeRunner()
	r.respond = func(string) ([]byte, error) { return []byte("ok"), nil }

	out, err := NewCLI(r).Run(context.Background(), "windows-mgmt", "cat > /tmp/x", RunOptions{
		Stdin: strings.NewReader("payload"),
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))
	assert.Equal(t, []string{"qvm-run --pass-io windows-mgmt cat > /tmp/x"}, r.calls)
	assert.Equal(t, []string{"payload"}, r.stdins)
}

func TestCLI_ListFiles(t *testing.T) {
	r := newFakeRunner()
	r.respond = func(string) ([]byte, error) {
		return []byte("win10x64.iso\nREADME\nwin7x64.iso\n\nwin11.ISO\n"), nil
	}

	files, err := NewCLI(r).ListFiles(context.Background(), "windows-mgmt", "windows-media/isos", "*.iso")
	require.NoError(t, err)
	assert.Equal(t, []string{"win10x64.iso", "win7x64.iso"}, files)
	assert.Equal(t, []string{"qvm-run --pass-io --no-gui windows-mgmt ls -1 -- 'windows-media/isos'"}, r.calls)
}

func TestCLI_AppMenuSyncRunning(t *testing.T) {
	r := newFakeRunner()
	r.respond = func(string) ([]byte, error) { return nil, exitWith(1) }

	running, err := NewCLI(r).AppMenuSyncRunning(context.Background(), "win.10")
	require.NoError(t, err)
	assert.False(t, running)
	require.Len(t, r.calls, 1)
	assert.Equal(t, `pgrep -f qvm-sync-appmenus( --[a-z-]+)* win\.10$`, r.calls[0])
}

func TestShellQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, ShellQuote("plain"))
	assert.Equal(t, `'it'\''s'`, ShellQuote("it's"))
}
