package engine

import (
	waerrors "github.com/wa-observability/wa/pkg/errors"
	"github.com/wa-observability/wa/pkg/patterns"
)

// Config is the serializable shape a configuration loader hands to
// FromConfig; the loader itself lives outside this module.
type Config struct {
	// Packs are ordered pack references: "builtin:<name>" or
	// "file:<path>". Later packs override earlier packs by rule id.
	Packs []string `json:"packs" yaml:"packs" toml:"packs"`

	// Overrides disable rules or override severities per pack, applied
	// after the merge.
	Overrides []patterns.PackOverride `json:"overrides,omitempty" yaml:"overrides,omitempty" toml:"overrides,omitempty"`
}

// FromConfigOptions carries the environment FromConfig discovers user
// packs in.
type FromConfigOptions struct {
	// Root is the workspace root scanned for ./.wa/patterns; empty means
	// the process working directory.
	Root string
	// HomeDir overrides the home directory scanned for
	// ~/.config/wa/patterns.
	HomeDir string
	// Warn receives one message per malformed discovered pack; such packs
	// are skipped, never fatal.
	Warn func(msg string)
}

// FromConfig loads the packs named in cfg plus any discovered user packs,
// applies overrides, and returns a lazily-compiling engine. Unresolvable
// pack references fail with PackNotFound; invalid rules and unknown
// override keys fail with InvalidRule.
func FromConfig(cfg Config, opts FromConfigOptions) (*Engine, error) {
	loader := &patterns.Loader{
		Builtins: patterns.BuiltinPacks(),
		Root:     opts.Root,
		HomeDir:  opts.HomeDir,
		Warn:     opts.Warn,
	}

	packs, trusted, err := loader.Resolve(cfg.Packs)
	if err != nil {
		return nil, waerrors.Wrap(err, waerrors.ErrCodePackNotFound, "resolve pattern packs")
	}

	lib, err := patterns.Build(packs, trusted, cfg.Overrides)
	if err != nil {
		return nil, waerrors.Wrap(err, waerrors.ErrCodeInvalidRule, "build pattern library")
	}

	return FromLibrary(lib), nil
}
