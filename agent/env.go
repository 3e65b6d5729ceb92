// ABOUTME: Environment inheritance policy for the agent process.
// ABOUTME: Inherits everything by default; can strip secrets or start from a clean environment.

package agent

import (
	"os"
	"sort"
	"strings"
)

// EnvPolicy controls how environment variables are inherited by the agent.
type EnvPolicy string

const (
	// EnvPolicyInheritAll passes the server's whole environment (default).
	EnvPolicyInheritAll EnvPolicy = "inherit_all"
	// EnvPolicyInheritCore drops variables that look like credentials, except
	// the ones the agent itself needs to authenticate.
	EnvPolicyInheritCore EnvPolicy = "inherit_core"
	// EnvPolicyInheritNone starts with only PATH, HOME and the explicit vars.
	EnvPolicyInheritNone EnvPolicy = "inherit_none"
)

var sensitivePatterns = []string{
	"_API_KEY",
	"_SECRET",
	"_TOKEN",
	"_PASSWORD",
	"_CREDENTIAL",
}

// agentVarNames survive InheritCore even though they look sensitive.
var agentVarNames = map[string]bool{
	"ANTHROPIC_API_KEY":       true,
	"ANTHROPIC_AUTH_TOKEN":    true,
	"CLAUDE_CODE_OAUTH_TOKEN": true,
}

// ParseEnvPolicy maps a config string to a policy, defaulting to InheritAll.
func ParseEnvPolicy(s string) EnvPolicy {
	switch EnvPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case EnvPolicyInheritCore:
		return EnvPolicyInheritCore
	case EnvPolicyInheritNone:
		return EnvPolicyInheritNone
	default:
		return EnvPolicyInheritAll
	}
}

func buildEnv(policy EnvPolicy, explicit map[string]string) []string {
	var env []string
	switch policy {
	case EnvPolicyInheritNone:
		for _, name := range []string{"PATH", "HOME"} {
			if v, ok := os.LookupEnv(name); ok {
				env = append(env, name+"="+v)
			}
		}
	case EnvPolicyInheritCore:
		for _, entry := range os.Environ() {
			name, _, ok := strings.Cut(entry, "=")
			if !ok {
				continue
			}
			if isSensitiveVar(name) && !agentVarNames[name] {
				continue
			}
			env = append(env, entry)
		}
	default:
		env = os.Environ()
	}

	keys := make([]string, 0, len(explicit))
	for k := range explicit {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+explicit[k])
	}
	return env
}

// isSensitiveVar checks if a variable name matches sensitive patterns (case-insensitive).
func isSensitiveVar(name string) bool {
	upper := strings.ToUpper(name)
	for _, pattern := range sensitivePatterns {
		if strings.HasSuffix(upper, pattern) {
			return true
		}
	}
	return false
}
