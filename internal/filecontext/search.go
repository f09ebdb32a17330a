package filecontext

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/trustgraph-ai/gambiarra/internal/protocol"
)

// searchFiles implements search_files, grounded on SearchFilesTool.execute:
// a case-insensitive, multiline regex applied line-by-line across every
// non-binary file under path matching file_pattern.
func (e *Executor) searchFiles(params map[string]any) protocol.ResultBody {
	path, _ := stringParam(params, "path")
	pattern, hasPattern := stringParam(params, "regex")
	filePattern, hasFilePattern := stringParam(params, "file_pattern")
	if !hasFilePattern || filePattern == "" {
		filePattern = "*"
	}
	if !hasPattern {
		return errorResult(protocol.CodeInvalidRegex, "regex is required", nil)
	}

	regex, err := regexp.Compile("(?im)" + pattern)
	if err != nil {
		return errorResult(protocol.CodeInvalidRegex, "invalid regex pattern: "+err.Error(), map[string]any{"pattern": pattern})
	}

	resolved, verr := e.Paths.Validate(path)
	if verr != nil {
		return sandboxError(verr, path)
	}
	if _, statErr := os.Stat(resolved); statErr != nil {
		return errorResult(protocol.CodePathNotFound, "Search path '"+path+"' does not exist", map[string]any{"path": path})
	}

	type fileMatch struct {
		Line    int    `json:"line"`
		Content string `json:"content"`
		Match   string `json:"match"`
	}
	type searchHit struct {
		File    string      `json:"file"`
		Matches []fileMatch `json:"matches"`
	}

	var hits []searchHit
	filesSearched := 0
	totalMatches := 0

	walkErr := filepath.WalkDir(resolved, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ok, matchErr := filepath.Match(filePattern, d.Name())
		if matchErr != nil || !ok {
			return nil
		}
		if isBinaryFile(p) {
			return nil
		}
		filesSearched++

		content, readErr := os.ReadFile(p)
		if readErr != nil {
			return nil
		}
		var matches []fileMatch
		for i, line := range strings.Split(string(content), "\n") {
			if loc := regex.FindStringIndex(line); loc != nil {
				matches = append(matches, fileMatch{
					Line:    i + 1,
					Content: strings.TrimSpace(line),
					Match:   line[loc[0]:loc[1]],
				})
			}
		}
		if len(matches) > 0 {
			rel, relErr := filepath.Rel(resolved, p)
			if relErr != nil {
				rel = p
			}
			hits = append(hits, searchHit{File: filepath.ToSlash(rel), Matches: matches})
			totalMatches += len(matches)
		}
		return nil
	})
	if walkErr != nil {
		return errorResult(protocol.CodeSearchError, walkErr.Error(), map[string]any{"path": path, "pattern": pattern})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].File < hits[j].File })

	return successResult(encodeData(hits), map[string]any{
		"files_searched": filesSearched,
		"total_matches":  totalMatches,
		"pattern":        pattern,
		"file_pattern":   filePattern,
	})
}

// isBinaryFile sniffs the first 1KB for a NUL byte, mirroring
// SearchFilesTool._is_binary_file.
func isBinaryFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()
	buf := make([]byte, 1024)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) != -1
}

// definitionPattern matches one top-level function/class/type declaration
// per supported language family. Go's RE2 has no lookahead, so each
// language gets its own alternative rather than one generic rule.
var definitionPatterns = map[string]*regexp.Regexp{
	".go":  regexp.MustCompile(`^(func|type)\s+([A-Za-z_][A-Za-z0-9_]*)`),
	".py":  regexp.MustCompile(`^\s*(def|class)\s+([A-Za-z_][A-Za-z0-9_]*)`),
	".js":  regexp.MustCompile(`^\s*(function|class)\s+([A-Za-z_][A-Za-z0-9_]*)`),
	".ts":  regexp.MustCompile(`^\s*(function|class|interface)\s+([A-Za-z_][A-Za-z0-9_]*)`),
	".jsx": regexp.MustCompile(`^\s*(function|class)\s+([A-Za-z_][A-Za-z0-9_]*)`),
	".tsx": regexp.MustCompile(`^\s*(function|class|interface)\s+([A-Za-z_][A-Za-z0-9_]*)`),
	".rs":  regexp.MustCompile(`^\s*(fn|struct|enum|trait)\s+([A-Za-z_][A-Za-z0-9_]*)`),
	".java": regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(class|interface)\s+([A-Za-z_][A-Za-z0-9_]*)`),
}

// listCodeDefinitionNames implements list_code_definition_names. The
// predecessor never shipped a client-side implementation of this
// server-registered tool; this extends its top-level-definition intent
// with a simple per-extension regex scan rather than a full parser,
// consistent with the rest of this tool set's line-oriented approach.
func (e *Executor) listCodeDefinitionNames(params map[string]any) protocol.ResultBody {
	path, ok := stringParam(params, "path")
	if !ok || path == "" {
		return errorResult(protocol.CodePathNotFound, "path is required", nil)
	}

	resolved, err := e.Paths.Validate(path)
	if err != nil {
		return sandboxError(err, path)
	}
	info, statErr := os.Stat(resolved)
	if statErr != nil {
		return errorResult(protocol.CodePathNotFound, "Path '"+path+"' does not exist", map[string]any{"path": path})
	}

	type definition struct {
		File string `json:"file"`
		Name string `json:"name"`
		Kind string `json:"kind"`
		Line int    `json:"line"`
	}
	var defs []definition

	scan := func(p string) {
		ext := strings.ToLower(filepath.Ext(p))
		re, ok := definitionPatterns[ext]
		if !ok {
			return
		}
		content, readErr := os.ReadFile(p)
		if readErr != nil {
			return
		}
		rel, relErr := filepath.Rel(resolved, p)
		if relErr != nil {
			rel = filepath.Base(p)
		}
		for i, line := range strings.Split(string(content), "\n") {
			if m := re.FindStringSubmatch(line); m != nil {
				defs = append(defs, definition{
					File: filepath.ToSlash(rel),
					Name: m[len(m)-1],
					Kind: m[1],
					Line: i + 1,
				})
			}
		}
	}

	if info.IsDir() {
		walkErr := filepath.WalkDir(resolved, func(p string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			scan(p)
			return nil
		})
		if walkErr != nil {
			return errorResult(protocol.CodeListError, walkErr.Error(), map[string]any{"path": path})
		}
	} else {
		scan(resolved)
	}

	sort.Slice(defs, func(i, j int) bool {
		if defs[i].File != defs[j].File {
			return defs[i].File < defs[j].File
		}
		return defs[i].Line < defs[j].Line
	})

	return successResult(encodeData(defs), map[string]any{"path": path, "definition_count": len(defs)})
}
