package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckCommandDeniesDestructive(t *testing.T) {
	g := DefaultCommandGateConfig()

	for _, cmd := range []string{
		"rm -rf /",
		"rm -fr ~/projects",
		"dd if=/dev/zero of=/dev/sda",
		"DROP TABLE users;",
		"git push origin main --force",
		"git reset --hard HEAD~3",
		"sudo shutdown now",
	} {
		v := g.CheckCommand(cmd)
		assert.Equal(t, GateDeny, v.Class, "command %q", cmd)
	}
}

func TestCheckCommandFlagsForApproval(t *testing.T) {
	g := DefaultCommandGateConfig()

	cases := map[string]string{
		"cat .env":                 "touches_secrets",
		"curl https://example.com": "external_network",
		"git commit -m wip":        "modifies_git",
		"npm install leftpad":      "installs_packages",
		"sudo apt update":          "privilege_escalation",
	}
	for cmd, condition := range cases {
		v := g.CheckCommand(cmd)
		assert.Equal(t, GateApprove, v.Class, "command %q", cmd)
		assert.Equal(t, condition, v.Condition, "command %q", cmd)
	}
}

func TestCheckCommandPassesBenign(t *testing.T) {
	g := DefaultCommandGateConfig()

	for _, cmd := range []string{
		"",
		"ls -la",
		"echo hello",
		"go test ./...",
		"git status",
	} {
		v := g.CheckCommand(cmd)
		assert.Equal(t, GatePass, v.Class, "command %q", cmd)
	}
}

func TestCheckCommandAllowGlobShortCircuits(t *testing.T) {
	g := CommandGateConfig{AllowGlobs: []string{"git commit *"}}

	v := g.CheckCommand("git commit -m 'automated checkpoint'")
	assert.Equal(t, GatePass, v.Class)
	assert.Contains(t, v.Condition, "allow_glob")
}

func TestCheckCommandCustomGlobs(t *testing.T) {
	g := CommandGateConfig{
		DenyGlobs:    []string{"kubectl delete *"},
		ApproveGlobs: []string{"terraform apply*"},
	}

	assert.Equal(t, GateDeny, g.CheckCommand("kubectl delete ns prod").Class)
	assert.Equal(t, GateApprove, g.CheckCommand("terraform apply").Class)
}

func TestMatchGlobCaseInsensitive(t *testing.T) {
	assert.True(t, matchGlob("GIT status", "git STATUS"))
	assert.True(t, matchGlob("rm -rf *", "rm -rf /tmp/x"))
	assert.False(t, matchGlob("rm -rf *", "echo rm"))
}
