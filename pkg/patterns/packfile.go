package patterns

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	yaml "gopkg.in/yaml.v3"
)

// Format identifies a pattern-pack serialization.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// ruleFile is the on-disk shape of a RuleDef (snake_case field names
// across all three formats).
type ruleFile struct {
	ID             string `toml:"id" yaml:"id" json:"id"`
	AgentType      string `toml:"agent_type" yaml:"agent_type" json:"agent_type"`
	EventType      string `toml:"event_type" yaml:"event_type" json:"event_type"`
	Severity       string `toml:"severity" yaml:"severity" json:"severity"`
	Anchors        []string `toml:"anchors" yaml:"anchors" json:"anchors"`
	Regex          string `toml:"regex,omitempty" yaml:"regex,omitempty" json:"regex,omitempty"`
	Description    string `toml:"description,omitempty" yaml:"description,omitempty" json:"description,omitempty"`
	Remediation    string `toml:"remediation,omitempty" yaml:"remediation,omitempty" json:"remediation,omitempty"`
	Workflow       string `toml:"workflow,omitempty" yaml:"workflow,omitempty" json:"workflow,omitempty"`
	ManualFix      string `toml:"manual_fix,omitempty" yaml:"manual_fix,omitempty" json:"manual_fix,omitempty"`
	PreviewCommand string `toml:"preview_command,omitempty" yaml:"preview_command,omitempty" json:"preview_command,omitempty"`
	LearnMoreURL   string `toml:"learn_more_url,omitempty" yaml:"learn_more_url,omitempty" json:"learn_more_url,omitempty"`
}

// packFile is the on-disk shape of a PatternPack.
type packFile struct {
	Name    string     `toml:"name" yaml:"name" json:"name"`
	Version string     `toml:"version" yaml:"version" json:"version"`
	Rules   []ruleFile `toml:"rules" yaml:"rules" json:"rules"`
}

// DetectFormat sniffs a pack format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("patterns: cannot determine pack format from %q", path)
	}
}

// ParsePack decodes a PatternPack from raw bytes in the given format.
func ParsePack(data []byte, format Format) (PatternPack, error) {
	var pf packFile
	var err error
	switch format {
	case FormatTOML:
		err = toml.Unmarshal(data, &pf)
	case FormatYAML:
		err = yaml.Unmarshal(data, &pf)
	case FormatJSON:
		err = json.Unmarshal(data, &pf)
	default:
		return PatternPack{}, fmt.Errorf("patterns: unknown format %q", format)
	}
	if err != nil {
		return PatternPack{}, fmt.Errorf("patterns: parse pack: %w", err)
	}
	return pf.toPack(), nil
}

// Serialize re-encodes a PatternPack in the given format, preserving every
// observable field (rule order is not contracted to be preserved).
func Serialize(pack PatternPack, format Format) ([]byte, error) {
	pf := fromPack(pack)
	switch format {
	case FormatTOML:
		return toml.Marshal(pf)
	case FormatYAML:
		return yaml.Marshal(pf)
	case FormatJSON:
		return json.MarshalIndent(pf, "", "  ")
	default:
		return nil, fmt.Errorf("patterns: unknown format %q", format)
	}
}

func (pf packFile) toPack() PatternPack {
	rules := make([]RuleDef, 0, len(pf.Rules))
	for _, rf := range pf.Rules {
		rules = append(rules, RuleDef{
			ID:             rf.ID,
			AgentType:      AgentType(rf.AgentType),
			EventType:      rf.EventType,
			Severity:       Severity(rf.Severity),
			Anchors:        rf.Anchors,
			Regex:          rf.Regex,
			Workflow:       rf.Workflow,
			Description:    rf.Description,
			Remediation:    rf.Remediation,
			ManualFix:      rf.ManualFix,
			PreviewCommand: rf.PreviewCommand,
			LearnMoreURL:   rf.LearnMoreURL,
		})
	}
	return PatternPack{Name: pf.Name, Version: pf.Version, Rules: rules}
}

func fromPack(pack PatternPack) packFile {
	rules := make([]ruleFile, 0, len(pack.Rules))
	for _, r := range pack.Rules {
		rules = append(rules, ruleFile{
			ID:             r.ID,
			AgentType:      string(r.AgentType),
			EventType:      r.EventType,
			Severity:       string(r.Severity),
			Anchors:        r.Anchors,
			Regex:          r.Regex,
			Workflow:       r.Workflow,
			Description:    r.Description,
			Remediation:    r.Remediation,
			ManualFix:      r.ManualFix,
			PreviewCommand: r.PreviewCommand,
			LearnMoreURL:   r.LearnMoreURL,
		})
	}
	return packFile{Name: pack.Name, Version: pack.Version, Rules: rules}
}
