// ABOUTME: Repository path checks applied to every request that names a repoPath.
package web

import (
	"path/filepath"
	"strings"
)

// checkRepo returns a client-facing message when repoPath is not acceptable:
// it must be absolute and, when a browse root is configured, inside it.
func (s *Server) checkRepo(repoPath string) string {
	if !filepath.IsAbs(repoPath) {
		return "repoPath must be an absolute path"
	}
	if s.cfg.BrowseRoot == "" {
		return ""
	}
	rel, err := filepath.Rel(filepath.Clean(s.cfg.BrowseRoot), filepath.Clean(repoPath))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "repoPath is outside the browse root"
	}
	return ""
}
