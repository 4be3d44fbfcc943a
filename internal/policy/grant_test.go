package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGranter_DefaultDir(t *testing.T) {
	assert.Equal(t, DefaultDir, NewGranter("").Dir)
	assert.Equal(t, "/tmp/x", NewGranter("/tmp/x").Dir)
}

func TestRule(t *testing.T) {
	assert.Equal(t, "qubes.Filecopy * windows-mgmt win allow\n", Rule(FileCopyService, "windows-mgmt", "win"))
}

func TestGranter_AllowRevoke(t *testing.T) {
	dir := t.TempDir()
	g := NewGranter(dir)

	grant, err := g.Allow(FileCopyService, "windows-mgmt", "win")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(grant.Path()))
	assert.Regexp(t, `^10-qubeforge-[0-9a-f-]{36}\.policy$`, filepath.Base(grant.Path()))

	data, err := os.ReadFile(grant.Path())
	require.NoError(t, err)
	assert.Equal(t, "qubes.Filecopy * windows-mgmt win allow\n", string(data))

	require.NoError(t, grant.Revoke())
	_, err = os.Stat(grant.Path())
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Second revoke is a no-op
	assert.NoError(t, grant.Revoke())
}

func TestGranter_UniquePerRun(t *testing.T) {
	g := NewGranter(t.TempDir())

	a, err := g.Allow(FileCopyService, "windows-mgmt", "win-1")
	require.NoError(t, err)
	b, err := g.Allow(FileCopyService, "windows-mgmt", "win-2")
	require.NoError(t, err)

	assert.NotEqual(t, a.Path(), b.Path())
}

func TestGranter_ExistingFile(t *testing.T) {
	dir := t.TempDir()
	id := uuid.MustParse("6f1c2a34-5b6d-4e7f-8091-a2b3c4d5e6f7")
	g := NewGranter(dir)
	g.newID = func() uuid.UUID { return id }

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName(id)), []byte("keep\n"), 0o644))

	_, err := g.Allow(FileCopyService, "windows-mgmt", "win")
	require.Error(t, err)

	data, err := os.ReadFile(filepath.Join(dir, FileName(id)))
	require.NoError(t, err)
	assert.Equal(t, "keep\n", string(data), "existing file must not be overwritten")
}

func TestGranter_MissingDir(t *testing.T) {
	g := NewGranter(filepath.Join(t.TempDir(), "missing"))

	_, err := g.Allow(FileCopyService, "windows-mgmt", "win")
	assert.Error(t, err)
}

func TestGranter_RequiredFields(t *testing.T) {
	g := NewGranter(t.TempDir())

	_, err := g.Allow(FileCopyService, "", "win")
	assert.Error(t, err)
}
