// ABOUTME: Tests for agent environment inheritance policies.

package agent

import (
	"slices"
	"testing"
)

func TestBuildEnvPolicies(t *testing.T) {
	t.Setenv("KODEJAM_TEST_API_KEY", "secret")
	t.Setenv("ANTHROPIC_API_KEY", "agent-key")
	t.Setenv("KODEJAM_TEST_PLAIN", "plain")

	all := buildEnv(EnvPolicyInheritAll, map[string]string{"EXTRA": "1"})
	for _, want := range []string{"KODEJAM_TEST_API_KEY=secret", "KODEJAM_TEST_PLAIN=plain", "EXTRA=1"} {
		if !slices.Contains(all, want) {
			t.Errorf("inherit_all missing %q", want)
		}
	}

	core := buildEnv(EnvPolicyInheritCore, nil)
	if slices.Contains(core, "KODEJAM_TEST_API_KEY=secret") {
		t.Error("inherit_core leaked a sensitive variable")
	}
	if !slices.Contains(core, "ANTHROPIC_API_KEY=agent-key") {
		t.Error("inherit_core dropped the agent credential")
	}
	if !slices.Contains(core, "KODEJAM_TEST_PLAIN=plain") {
		t.Error("inherit_core dropped a plain variable")
	}

	none := buildEnv(EnvPolicyInheritNone, map[string]string{"ONLY": "me"})
	if slices.Contains(none, "KODEJAM_TEST_PLAIN=plain") {
		t.Error("inherit_none inherited a variable")
	}
	if !slices.Contains(none, "ONLY=me") {
		t.Error("inherit_none dropped an explicit variable")
	}
}

func TestParseEnvPolicy(t *testing.T) {
	tests := map[string]EnvPolicy{
		"":              EnvPolicyInheritAll,
		"inherit_all":   EnvPolicyInheritAll,
		"INHERIT_CORE":  EnvPolicyInheritCore,
		" inherit_none": EnvPolicyInheritNone,
		"bogus":         EnvPolicyInheritAll,
	}
	for in, want := range tests {
		if got := ParseEnvPolicy(in); got != want {
			t.Errorf("ParseEnvPolicy(%q) = %q, want %q", in, got, want)
		}
	}
}
