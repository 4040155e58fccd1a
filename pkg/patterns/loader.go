package patterns

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loader resolves pack references (`builtin:x`, `file:path`) and discovers
// user packs from well-known directories.
type Loader struct {
	// Builtins maps a builtin pack short name (without the "builtin:"
	// prefix) to its in-memory definition.
	Builtins map[string]PatternPack
	// Root overrides the workspace root used to discover ./.wa/patterns;
	// empty means the process working directory.
	Root string
	// HomeDir overrides the user's home directory used to discover
	// ~/.config/wa/patterns; empty means os.UserHomeDir().
	HomeDir string

	// Warn, if set, receives a human-readable warning for any pack that is
	// discovered but fails to parse/validate; that pack is then skipped
	// rather than failing the whole load.
	Warn func(msg string)
}

// Resolve loads every referenced pack (in order) plus every auto-discovered
// user pack, returning the trusted-pack-name set alongside.
func (l *Loader) Resolve(refs []string) ([]PatternPack, map[string]bool, error) {
	trusted := make(map[string]bool)
	var packs []PatternPack

	for _, ref := range refs {
		switch {
		case strings.HasPrefix(ref, "builtin:"):
			name := strings.TrimPrefix(ref, "builtin:")
			pack, ok := l.Builtins[name]
			if !ok {
				return nil, nil, fmt.Errorf("patterns: builtin pack %q not found", name)
			}
			packs = append(packs, pack)
			trusted[pack.Name] = true
		case strings.HasPrefix(ref, "file:"):
			path := strings.TrimPrefix(ref, "file:")
			pack, err := l.loadFile(path)
			if err != nil {
				return nil, nil, fmt.Errorf("patterns: pack file not found: %w", err)
			}
			packs = append(packs, pack)
		default:
			return nil, nil, fmt.Errorf("patterns: unrecognized pack reference %q (want builtin:x or file:path)", ref)
		}
	}

	userPacks := l.discoverUserPacks()
	packs = append(packs, userPacks...)

	return packs, trusted, nil
}

func (l *Loader) loadFile(path string) (PatternPack, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return PatternPack{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return PatternPack{}, err
	}
	return ParsePack(data, format)
}

// discoverUserPacks scans ~/.config/wa/patterns and ./.wa/patterns for pack
// files and pack directories (a directory containing rules.toml). Malformed
// packs are warned about and skipped, never fatal.
func (l *Loader) discoverUserPacks() []PatternPack {
	var dirs []string
	if home := l.homeDir(); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", "wa", "patterns"))
	}
	root := l.Root
	if root == "" {
		root = "."
	}
	dirs = append(dirs, filepath.Join(root, ".wa", "patterns"))

	var packs []PatternPack
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())
			if entry.IsDir() {
				rulesFile := filepath.Join(full, "rules.toml")
				if _, statErr := os.Stat(rulesFile); statErr == nil {
					if pack, loadErr := l.loadFile(rulesFile); loadErr == nil {
						packs = append(packs, pack)
					} else {
						l.warn(fmt.Sprintf("skipping pack directory %s: %v", full, loadErr))
					}
				}
				continue
			}
			if _, err := DetectFormat(full); err != nil {
				continue
			}
			pack, loadErr := l.loadFile(full)
			if loadErr != nil {
				l.warn(fmt.Sprintf("skipping pack file %s: %v", full, loadErr))
				continue
			}
			packs = append(packs, pack)
		}
	}
	return packs
}

func (l *Loader) homeDir() string {
	if l.HomeDir != "" {
		return l.HomeDir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home
}

func (l *Loader) warn(msg string) {
	if l.Warn != nil {
		l.Warn(msg)
	}
}
