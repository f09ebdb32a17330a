// Package sandbox implements the client-side trust boundary: PathSandbox
// enforces the workspace-root file boundary and CommandSandbox enforces the
// shell-command allow/deny policy. Both are grounded on the Python
// predecessor's security.path_validator.PathValidator and
// security.command_filter.CommandFilter, extending the teacher's much
// thinner internal/tools/files.Resolver with the traversal-prevention,
// percent-decoding, and ignore-pattern logic the spec requires.
package sandbox

import (
	"bufio"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/trustgraph-ai/gambiarra/internal/protocol"
)

// defaultIgnorePatterns mirrors PathValidator's fixed default set.
var defaultIgnorePatterns = []string{
	".git/**", ".git",
	"node_modules/**", "node_modules",
	"__pycache__/**", "__pycache__",
	"*.pyc", "*.pyo",
	".env", ".env.*",
	"*.log",
	".DS_Store", "Thumbs.db",
}

// suspiciousEncodedPatterns catches traversal attempts hidden behind
// percent-encoding, including double/triple encoding and UTF-8 overlong
// encodings of "/" and "\".
var suspiciousEncodedPatterns = []string{
	"%2e%2e",
	"%252e%252e",
	"%c0%af",
	"%c0%5c",
}

// PathSandbox validates that a candidate path resolves inside a workspace
// root and is not excluded by ignore patterns.
type PathSandbox struct {
	root           string
	ignorePatterns []string
}

// NewPathSandbox creates a sandbox rooted at the given absolute workspace
// directory, loading `.gambiarraignore` from its root if present.
func NewPathSandbox(root string) (*PathSandbox, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// Root may not exist yet in tests; fall back to the absolute form.
		resolved = abs
	}

	s := &PathSandbox{root: resolved}
	s.ignorePatterns = append(s.ignorePatterns, s.loadIgnoreFile(resolved)...)
	s.ignorePatterns = append(s.ignorePatterns, defaultIgnorePatterns...)
	return s, nil
}

func (s *PathSandbox) loadIgnoreFile(root string) []string {
	f, err := os.Open(filepath.Join(root, ".gambiarraignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// Root returns the sandbox's resolved workspace root.
func (s *PathSandbox) Root() string { return s.root }

// Validate resolves inputPath against the workspace root, enforcing the
// traversal, resolution, and ignore-pattern rules from spec §4.6. On
// success it returns the resolved absolute path.
func (s *PathSandbox) Validate(inputPath string) (string, error) {
	if err := s.checkSuspiciousPatterns(inputPath); err != nil {
		return "", err
	}

	var candidate string
	if filepath.IsAbs(inputPath) {
		candidate = inputPath
	} else {
		candidate = filepath.Join(s.root, inputPath)
	}

	resolved, err := resolveFollowingSymlinks(candidate)
	if err != nil {
		return "", protocol.NewCodedError(protocol.CodeSecurityError,
			"path validation error: "+err.Error()).WithDetails(map[string]any{"input_path": inputPath})
	}

	if !isDescendant(s.root, resolved) {
		return "", protocol.NewCodedError(protocol.CodeSecurityError,
			"path traversal detected: resolves outside workspace").WithDetails(map[string]any{
			"input_path":     inputPath,
			"resolved_path":  resolved,
			"workspace_root": s.root,
		})
	}

	rel, err := filepath.Rel(s.root, resolved)
	if err != nil {
		return "", protocol.NewCodedError(protocol.CodeSecurityError, "path validation error: "+err.Error())
	}
	rel = filepath.ToSlash(rel)

	if s.IsIgnored(rel) {
		return "", protocol.NewCodedError(protocol.CodeSecurityError,
			"access denied by ignore patterns").WithDetails(map[string]any{
			"input_path":    inputPath,
			"relative_path": rel,
		})
	}

	return resolved, nil
}

// checkSuspiciousPatterns screens the raw input (before any resolution) for
// traversal sequences, including ones hidden behind up to three rounds of
// percent-decoding.
func (s *PathSandbox) checkSuspiciousPatterns(inputPath string) error {
	pathsToCheck := []string{inputPath}
	current := inputPath
	for i := 0; i < 3; i++ {
		decoded, err := url.QueryUnescape(current)
		if err != nil || decoded == current {
			break
		}
		pathsToCheck = append(pathsToCheck, decoded)
		current = decoded
	}

	for _, p := range pathsToCheck {
		if strings.Contains(p, "../") || strings.Contains(p, `..\`) {
			return protocol.NewCodedError(protocol.CodeSecurityError,
				"path traversal detected: suspicious pattern in path").WithDetails(map[string]any{
				"input_path": inputPath,
				"reason":     "contains directory traversal sequence",
			})
		}
		if strings.Contains(p, `\`) && p != ".." {
			return protocol.NewCodedError(protocol.CodeSecurityError,
				"path traversal detected: suspicious backslash pattern in path").WithDetails(map[string]any{
				"input_path": inputPath,
				"reason":     "contains Windows-style path separators",
			})
		}
		lower := strings.ToLower(p)
		for _, pattern := range suspiciousEncodedPatterns {
			if strings.Contains(lower, pattern) {
				return protocol.NewCodedError(protocol.CodeSecurityError,
					"path traversal detected: encoded suspicious pattern in path").WithDetails(map[string]any{
					"input_path":       inputPath,
					"detected_pattern": pattern,
				})
			}
		}
	}
	return nil
}

// resolveFollowingSymlinks cleans and, where possible, resolves symlinks in
// candidate. If the path (or some trailing portion of it) doesn't exist yet
// — as for a file about to be created by write_to_file — it resolves the
// longest existing prefix and rejoins the remainder.
func resolveFollowingSymlinks(candidate string) (string, error) {
	clean := filepath.Clean(candidate)
	if resolved, err := filepath.EvalSymlinks(clean); err == nil {
		return resolved, nil
	}

	dir := filepath.Dir(clean)
	base := filepath.Base(clean)
	var tail []string
	for {
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			full := filepath.Join(append([]string{resolved, base}, tail...)...)
			return full, nil
		}
		if dir == filepath.Dir(dir) {
			return clean, nil
		}
		tail = append([]string{base}, tail...)
		base = filepath.Base(dir)
		dir = filepath.Dir(dir)
	}
}

func isDescendant(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

// IsIgnored reports whether relativePath, or any of its parent directories,
// matches an ignore pattern. Matching is prefix-wise: a directory rule
// blocks its descendants even though the glob itself only names the
// directory.
func (s *PathSandbox) IsIgnored(relativePath string) bool {
	relativePath = filepath.ToSlash(relativePath)
	parts := strings.Split(relativePath, "/")

	for _, pattern := range s.ignorePatterns {
		if matchGlob(pattern, relativePath) {
			return true
		}
		for i := range parts {
			partial := strings.Join(parts[:i+1], "/")
			if matchGlob(pattern, partial) {
				return true
			}
		}
	}
	return false
}

// matchGlob matches gitignore-style patterns: a trailing "/**" matches the
// directory and everything under it; otherwise filepath.Match semantics
// apply (case-sensitive, "*" does not cross "/").
func matchGlob(pattern, path string) bool {
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	ok, err := filepath.Match(pattern, path)
	return err == nil && ok
}

// AddIgnorePattern extends the active ignore-pattern set at runtime,
// grounded on PathValidator.add_ignore_pattern.
func (s *PathSandbox) AddIgnorePattern(pattern string) {
	for _, p := range s.ignorePatterns {
		if p == pattern {
			return
		}
	}
	s.ignorePatterns = append(s.ignorePatterns, pattern)
}

// Info reports introspection data about the sandbox configuration,
// grounded on PathValidator.get_workspace_info/get_security_info.
type Info struct {
	WorkspaceRoot       string `json:"workspace_root"`
	IgnorePatternsCount int    `json:"ignore_patterns_count"`
	HasIgnoreFile       bool   `json:"has_gambiarraignore"`
}

// Info returns a snapshot of the sandbox's current configuration.
func (s *PathSandbox) Info() Info {
	_, err := os.Stat(filepath.Join(s.root, ".gambiarraignore"))
	return Info{
		WorkspaceRoot:       s.root,
		IgnorePatternsCount: len(s.ignorePatterns),
		HasIgnoreFile:       err == nil,
	}
}
