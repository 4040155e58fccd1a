package patterns

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_ResolveBuiltin(t *testing.T) {
	l := &Loader{Builtins: BuiltinPacks(), HomeDir: t.TempDir(), Root: t.TempDir()}
	packs, trusted, err := l.Resolve([]string{"builtin:codex"})
	require.NoError(t, err)
	require.Len(t, packs, 1)
	assert.True(t, trusted["builtin:codex"])
}

func TestLoader_ResolveUnknownBuiltin(t *testing.T) {
	l := &Loader{Builtins: BuiltinPacks(), HomeDir: t.TempDir(), Root: t.TempDir()}
	_, _, err := l.Resolve([]string{"builtin:nonexistent"})
	assert.Error(t, err)
}

func TestLoader_ResolveFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
name = "custom"
version = "1.0"
[[rules]]
id = "custom.rule"
agent_type = "unknown"
event_type = "e"
severity = "info"
anchors = ["x"]
`), 0o644))

	l := &Loader{HomeDir: t.TempDir(), Root: t.TempDir()}
	packs, _, err := l.Resolve([]string{"file:" + path})
	require.NoError(t, err)
	require.Len(t, packs, 1)
	assert.Equal(t, "custom", packs[0].Name)
}

func TestLoader_DiscoversUserPackDirectory(t *testing.T) {
	root := t.TempDir()
	packDir := filepath.Join(root, ".wa", "patterns", "myteam")
	require.NoError(t, os.MkdirAll(packDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(packDir, "rules.toml"), []byte(`
name = "myteam"
version = "1.0"
[[rules]]
id = "myteam.rule"
agent_type = "unknown"
event_type = "e"
severity = "info"
anchors = ["x"]
`), 0o644))

	l := &Loader{HomeDir: t.TempDir(), Root: root}
	packs, _, err := l.Resolve(nil)
	require.NoError(t, err)
	require.Len(t, packs, 1)
	assert.Equal(t, "myteam", packs[0].Name)
}

func TestLoader_SkipsMalformedUserPack(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".wa", "patterns")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.toml"), []byte(`not = [valid toml`), 0o644))

	var warnings []string
	l := &Loader{HomeDir: t.TempDir(), Root: root, Warn: func(msg string) { warnings = append(warnings, msg) }}
	packs, _, err := l.Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, packs)
	assert.NotEmpty(t, warnings)
}
