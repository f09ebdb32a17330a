package filecontext

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/trustgraph-ai/gambiarra/internal/protocol"
)

// readFile implements read_file, grounded on ReadFileTool.execute: it
// validates the path through the sandbox, reads the whole file, and
// optionally slices it to a 1-based inclusive line range.
func (e *Executor) readFile(params map[string]any) protocol.ResultBody {
	path, ok := stringParam(params, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return errorResult(protocol.CodeFileNotFound, "path is required", nil)
	}

	startLine, hasStart := intParam(params, "start_line")
	endLine, hasEnd := intParam(params, "end_line")
	if lr, ok := params["line_range"].([]any); ok {
		if len(lr) != 2 {
			return errorResult(protocol.CodeInvalidLineRangeFormat,
				"line_range must be a list of [start_line, end_line]", map[string]any{"provided_line_range": lr})
		}
		s, sok := toInt(lr[0])
		en, eok := toInt(lr[1])
		if !sok || !eok {
			return errorResult(protocol.CodeInvalidLineRangeFormat,
				"line_range must be a list of [start_line, end_line]", map[string]any{"provided_line_range": lr})
		}
		startLine, hasStart = s, true
		endLine, hasEnd = en, true
	}

	resolved, err := e.Paths.Validate(path)
	if err != nil {
		return sandboxError(err, path)
	}

	if _, statErr := os.Stat(resolved); statErr != nil {
		return errorResult(protocol.CodeFileNotFound, "File '"+path+"' does not exist",
			map[string]any{"attempted_path": path, "validated_path": resolved})
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsPermission(err) {
			return errorResult(protocol.CodePermissionDenied, "Permission denied reading file '"+path+"'", map[string]any{"path": path})
		}
		return errorResult(protocol.CodeFileReadError, err.Error(), map[string]any{"path": path})
	}
	content := string(raw)

	lines := strings.Split(content, "\n")
	actualLineCount := len(lines)
	if strings.HasSuffix(content, "\n") && len(lines) > 0 && lines[len(lines)-1] == "" {
		actualLineCount--
	}

	var resultContent, readLines string
	if hasStart || hasEnd {
		if hasStart && startLine < 1 {
			return errorResult(protocol.CodeInvalidLineRange,
				"start_line must be >= 1", map[string]any{"total_lines": len(lines)})
		}
		if !hasStart {
			startLine = 1
		}
		if !hasEnd {
			endLine = len(lines)
		}
		if endLine < startLine || startLine > actualLineCount {
			return errorResult(protocol.CodeInvalidLineRange,
				"invalid line range", map[string]any{
					"total_lines": actualLineCount, "start_line": startLine, "end_line": endLine,
				})
		}
		hi := endLine
		if hi > len(lines) {
			hi = len(lines)
		}
		resultContent = strings.Join(lines[startLine-1:hi], "\n")
		readLines = itoa(startLine) + "-" + itoa(endLine)
	} else {
		resultContent = content
		readLines = "all"
	}

	e.Tracker.TrackRead(resolved, resultContent)

	return successResult(resultContent, map[string]any{
		"file_size":  len(content),
		"line_count": actualLineCount,
		"read_lines": readLines,
		"encoding":   "utf-8",
	})
}

// writeToFile implements write_to_file, grounded on WriteToFileTool.execute:
// it backs up an existing file, creates parent directories, writes the new
// content, and optionally verifies the caller's expected line count.
func (e *Executor) writeToFile(params map[string]any) protocol.ResultBody {
	path, ok := stringParam(params, "path")
	if !ok || strings.TrimSpace(path) == "" {
		return errorResult(protocol.CodeFileWriteError, "path is required", nil)
	}
	content, hasContent := stringParam(params, "content")
	if !hasContent {
		return errorResult(protocol.CodeFileWriteError, "content is required", map[string]any{"path": path})
	}

	resolved, err := e.Paths.Validate(path)
	if err != nil {
		return sandboxError(err, path)
	}

	_, existedBefore := os.Stat(resolved)
	backupCreated := false
	if existedBefore == nil {
		if copyErr := copyFile(resolved, resolved+".backup"); copyErr == nil {
			backupCreated = true
		}
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errorResult(protocol.CodeFileWriteError, err.Error(), map[string]any{"path": path})
	}

	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		if os.IsPermission(err) {
			return errorResult(protocol.CodePermissionDenied, "Permission denied writing to '"+path+"'", map[string]any{"path": path})
		}
		return errorResult(protocol.CodeFileWriteError, err.Error(), map[string]any{"path": path})
	}

	actualLineCount := countLines(content)
	if expected, ok := intParam(params, "line_count"); ok {
		if actualLineCount != expected {
			return errorResult(protocol.CodeLineCountMismatch,
				"expected "+itoa(expected)+" lines, got "+itoa(actualLineCount),
				map[string]any{"expected": expected, "actual": actualLineCount})
		}
	}

	e.Tracker.TrackWrite(resolved, content)

	operation := "file_created"
	if backupCreated {
		operation = "file_updated"
	}
	return successResult("", map[string]any{
		"operation":      operation,
		"path":           path,
		"bytes_written":  len(content),
		"line_count":     actualLineCount,
		"backup_created": backupCreated,
	})
}

// insertContent implements insert_content, grounded on
// InsertContentTool.execute: it splices a new line in at a 1-based line
// position, backing up the file first.
func (e *Executor) insertContent(params map[string]any) protocol.ResultBody {
	path, _ := stringParam(params, "path")
	lineNumber, hasLine := intParam(params, "line_number")
	content, hasContent := stringParam(params, "content")
	if path == "" || !hasLine || !hasContent {
		return errorResult(protocol.CodeInsertError, "path, line_number, and content are required", nil)
	}

	resolved, err := e.Paths.Validate(path)
	if err != nil {
		return sandboxError(err, path)
	}
	if _, statErr := os.Stat(resolved); statErr != nil {
		return errorResult(protocol.CodeFileNotFound, "File '"+path+"' does not exist", map[string]any{"path": path})
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return errorResult(protocol.CodeInsertError, err.Error(), map[string]any{"path": path, "line_number": lineNumber})
	}
	lines := strings.Split(string(raw), "\n")

	if lineNumber < 1 || lineNumber > len(lines)+1 {
		return errorResult(protocol.CodeInvalidLineNumber,
			"line number "+itoa(lineNumber)+" is out of range",
			map[string]any{"total_lines": len(lines), "requested_line": lineNumber})
	}

	_ = copyFile(resolved, resolved+".backup")

	inserted := make([]string, 0, len(lines)+1)
	inserted = append(inserted, lines[:lineNumber-1]...)
	inserted = append(inserted, content)
	inserted = append(inserted, lines[lineNumber-1:]...)
	newContent := strings.Join(inserted, "\n")

	if err := os.WriteFile(resolved, []byte(newContent), 0o644); err != nil {
		return errorResult(protocol.CodeInsertError, err.Error(), map[string]any{"path": path, "line_number": lineNumber})
	}
	e.Tracker.TrackWrite(resolved, newContent)

	return successResult("", map[string]any{
		"operation":       "content_inserted",
		"path":            path,
		"line_number":     lineNumber,
		"lines_added":     1,
		"new_line_count":  len(inserted),
		"backup_created":  true,
	})
}

// searchAndReplace implements search_and_replace, grounded on
// SearchAndReplaceTool.execute: a literal (non-regex) substring replacement
// across the whole file, backing up first.
func (e *Executor) searchAndReplace(params map[string]any) protocol.ResultBody {
	path, _ := stringParam(params, "path")
	search, hasSearch := stringParam(params, "search")
	replace, _ := stringParam(params, "replace")
	if path == "" || !hasSearch {
		return errorResult(protocol.CodeReplaceError, "path and search are required", nil)
	}

	resolved, err := e.Paths.Validate(path)
	if err != nil {
		return sandboxError(err, path)
	}
	if _, statErr := os.Stat(resolved); statErr != nil {
		return errorResult(protocol.CodeFileNotFound, "File '"+path+"' does not exist", map[string]any{"path": path})
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return errorResult(protocol.CodeReplaceError, err.Error(), map[string]any{"path": path})
	}
	original := string(raw)

	count := strings.Count(original, search)
	if count == 0 {
		return errorResult(protocol.CodeSearchTextNotFound,
			"search text not found in file: '"+search+"'",
			map[string]any{"search_text": search, "path": path})
	}
	newContent := strings.ReplaceAll(original, search, replace)

	_ = copyFile(resolved, resolved+".backup")
	if err := os.WriteFile(resolved, []byte(newContent), 0o644); err != nil {
		return errorResult(protocol.CodeReplaceError, err.Error(), map[string]any{"path": path})
	}
	e.Tracker.TrackWrite(resolved, newContent)

	return successResult("", map[string]any{
		"operation":         "search_and_replace",
		"path":              path,
		"replacements_made": count,
		"search_text":       search,
		"replace_text":      replace,
		"backup_created":    true,
	})
}

// listFiles implements list_files, grounded on ListFilesTool.execute.
func (e *Executor) listFiles(params map[string]any) protocol.ResultBody {
	path, _ := stringParam(params, "path")
	recursive := boolParam(params, "recursive")

	resolved, err := e.Paths.Validate(path)
	if err != nil {
		return sandboxError(err, path)
	}

	info, statErr := os.Stat(resolved)
	if statErr != nil {
		return errorResult(protocol.CodePathNotFound, "Directory '"+path+"' does not exist", map[string]any{"path": path})
	}
	if !info.IsDir() {
		return errorResult(protocol.CodeNotADirectory, "Path '"+path+"' is not a directory", map[string]any{"path": path})
	}

	type entry struct {
		Name     string `json:"name"`
		Size     int64  `json:"size,omitempty"`
		Modified int64  `json:"modified,omitempty"`
		Type     string `json:"type"`
	}
	var files, dirs []entry

	walk := func(root string, dirEntries bool) error {
		return filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
			if err != nil || p == root {
				return err
			}
			if !recursive && filepath.Dir(p) != root {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			name := d.Name()
			if recursive {
				if rel, relErr := filepath.Rel(root, p); relErr == nil {
					name = filepath.ToSlash(rel)
				}
			}
			fi, fiErr := d.Info()
			if d.IsDir() {
				dirs = append(dirs, entry{Name: name, Type: "directory"})
				return nil
			}
			var size int64
			var mtime int64
			if fiErr == nil {
				size = fi.Size()
				mtime = fi.ModTime().Unix()
			}
			files = append(files, entry{Name: name, Size: size, Modified: mtime, Type: "file"})
			return nil
		})
	}
	if err := walk(resolved, true); err != nil {
		return errorResult(protocol.CodeListError, err.Error(), map[string]any{"path": path})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].Name < dirs[j].Name })

	return successResult(encodeData(map[string]any{"files": files, "directories": dirs}), map[string]any{
		"path":             path,
		"file_count":       len(files),
		"directory_count":  len(dirs),
		"recursive":        recursive,
	})
}

func sandboxError(err error, path string) protocol.ResultBody {
	if coded, ok := err.(*protocol.CodedError); ok {
		return protocol.ResultBody{Status: "error", Error: coded.ResultError()}
	}
	return errorResult(protocol.CodeSecurityError, err.Error(), map[string]any{"path": path})
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

func countLines(content string) int {
	if content == "" {
		return 0
	}
	lines := strings.Split(content, "\n")
	if strings.HasSuffix(content, "\n") && len(lines) > 0 {
		lines = lines[:len(lines)-1]
	}
	return len(lines)
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	}
	return 0, false
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
