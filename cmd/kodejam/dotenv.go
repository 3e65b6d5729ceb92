// ABOUTME: Reads .env files into the process environment before flags and config are parsed.
// ABOUTME: Existing variables always win; files are visited nearest first.
package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// loadDotEnv applies the assignments in path that are not already set.
// A missing or unreadable file is skipped.
func loadDotEnv(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for line := range strings.Lines(string(data)) {
		key, value, ok := parseDotEnvLine(line)
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		_ = os.Setenv(key, value)
	}
}

// parseDotEnvLine understands KEY=value with an optional "export" keyword.
// Double-quoted values take Go escapes, single-quoted values are literal and
// unquoted values end at " #".
func parseDotEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return "", "", false
	}
	if rest, found := strings.CutPrefix(line, "export"); found && rest != "" && (rest[0] == ' ' || rest[0] == '\t') {
		line = strings.TrimSpace(rest)
	}

	key, raw, found := strings.Cut(line, "=")
	key = strings.TrimSpace(key)
	if !found || key == "" {
		return "", "", false
	}
	return key, dotEnvValue(strings.TrimSpace(raw)), true
}

func dotEnvValue(raw string) string {
	n := len(raw)
	switch {
	case n >= 2 && raw[0] == '"' && raw[n-1] == '"':
		if v, err := strconv.Unquote(raw); err == nil {
			return v
		}
		return raw[1 : n-1]
	case n >= 2 && raw[0] == '\'' && raw[n-1] == '\'':
		return raw[1 : n-1]
	}
	if i := strings.Index(raw, " #"); i >= 0 {
		raw = strings.TrimSpace(raw[:i])
	}
	return raw
}

// dotEnvPaths lists the .env files to try: the working directory and each
// parent up to the root, then the kodejam config directory.
func dotEnvPaths() []string {
	var paths []string
	seen := map[string]struct{}{}
	add := func(dir string) {
		p := filepath.Join(dir, ".env")
		if _, dup := seen[p]; dup {
			return
		}
		seen[p] = struct{}{}
		paths = append(paths, p)
	}

	if wd, err := os.Getwd(); err == nil {
		for dir := wd; ; dir = filepath.Dir(dir) {
			add(dir)
			if filepath.Dir(dir) == dir {
				break
			}
		}
	}
	if cfgPath, err := defaultConfigPath(); err == nil {
		add(filepath.Dir(cfgPath))
	}
	return paths
}

// loadDotEnvAuto loads every file from dotEnvPaths. Earlier files win
// because later ones never overwrite a set variable.
func loadDotEnvAuto() {
	for _, p := range dotEnvPaths() {
		loadDotEnv(p)
	}
}
