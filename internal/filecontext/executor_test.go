package filecontext

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/trustgraph-ai/gambiarra/internal/sandbox"
)

func newTestExecutor(t *testing.T) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	paths, err := sandbox.NewPathSandbox(dir)
	if err != nil {
		t.Fatal(err)
	}
	exec := NewExecutor(paths, sandbox.NewCommandSandbox(), New(discardLogger(), 0))
	return exec, dir
}

func TestExecutor_ReadFileRoundTrip(t *testing.T) {
	exec, dir := newTestExecutor(t)
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	result := exec.Execute(context.Background(), "read_file", map[string]any{"path": "a.txt"})
	if result.Status != "success" {
		t.Fatalf("status = %q, error = %+v", result.Status, result.Error)
	}
	if result.Data != "one\ntwo\nthree\n" {
		t.Errorf("data = %q", result.Data)
	}
}

func TestExecutor_ReadFileLineRange(t *testing.T) {
	exec, dir := newTestExecutor(t)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree"), 0o644)

	result := exec.Execute(context.Background(), "read_file", map[string]any{
		"path": "a.txt", "start_line": 2, "end_line": 3,
	})
	if result.Status != "success" {
		t.Fatalf("status = %q, error = %+v", result.Status, result.Error)
	}
	if result.Data != "two\nthree" {
		t.Errorf("data = %q, want 'two\\nthree'", result.Data)
	}
}

func TestExecutor_ReadFileMissing(t *testing.T) {
	exec, _ := newTestExecutor(t)
	result := exec.Execute(context.Background(), "read_file", map[string]any{"path": "missing.txt"})
	if result.Status != "error" || result.Error.Code != "FILE_NOT_FOUND" {
		t.Errorf("got %+v, want FILE_NOT_FOUND", result)
	}
}

func TestExecutor_ReadFileRejectsTraversal(t *testing.T) {
	exec, _ := newTestExecutor(t)
	result := exec.Execute(context.Background(), "read_file", map[string]any{"path": "../../etc/passwd"})
	if result.Status != "error" || result.Error.Code != "SECURITY_ERROR" {
		t.Errorf("got %+v, want SECURITY_ERROR", result)
	}
}

func TestExecutor_WriteThenReadBack(t *testing.T) {
	exec, dir := newTestExecutor(t)

	result := exec.Execute(context.Background(), "write_to_file", map[string]any{
		"path": "out.txt", "content": "hello\nworld\n", "line_count": 2,
	})
	if result.Status != "success" {
		t.Fatalf("write status = %q, error = %+v", result.Status, result.Error)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\nworld\n" {
		t.Errorf("file content = %q", data)
	}
}

func TestExecutor_WriteLineCountMismatch(t *testing.T) {
	exec, _ := newTestExecutor(t)
	result := exec.Execute(context.Background(), "write_to_file", map[string]any{
		"path": "out.txt", "content": "one line", "line_count": 5,
	})
	if result.Status != "error" || result.Error.Code != "LINE_COUNT_MISMATCH" {
		t.Errorf("got %+v, want LINE_COUNT_MISMATCH", result)
	}
}

func TestExecutor_WriteBacksUpExistingFile(t *testing.T) {
	exec, dir := newTestExecutor(t)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("old"), 0o644)

	result := exec.Execute(context.Background(), "write_to_file", map[string]any{"path": "a.txt", "content": "new"})
	if result.Status != "success" {
		t.Fatalf("status = %q", result.Status)
	}
	backup, err := os.ReadFile(filepath.Join(dir, "a.txt.backup"))
	if err != nil {
		t.Fatalf("expected backup file: %v", err)
	}
	if string(backup) != "old" {
		t.Errorf("backup content = %q, want 'old'", backup)
	}
}

func TestExecutor_SearchAndReplace(t *testing.T) {
	exec, dir := newTestExecutor(t)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("foo bar foo"), 0o644)

	result := exec.Execute(context.Background(), "search_and_replace", map[string]any{
		"path": "a.txt", "search": "foo", "replace": "baz",
	})
	if result.Status != "success" {
		t.Fatalf("status = %q, error = %+v", result.Status, result.Error)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "a.txt"))
	if string(data) != "baz bar baz" {
		t.Errorf("content = %q", data)
	}
}

func TestExecutor_SearchAndReplaceTextNotFound(t *testing.T) {
	exec, dir := newTestExecutor(t)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("foo"), 0o644)

	result := exec.Execute(context.Background(), "search_and_replace", map[string]any{
		"path": "a.txt", "search": "nope", "replace": "x",
	})
	if result.Status != "error" || result.Error.Code != "SEARCH_TEXT_NOT_FOUND" {
		t.Errorf("got %+v, want SEARCH_TEXT_NOT_FOUND", result)
	}
}

func TestExecutor_InsertContent(t *testing.T) {
	exec, dir := newTestExecutor(t)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree"), 0o644)

	result := exec.Execute(context.Background(), "insert_content", map[string]any{
		"path": "a.txt", "line_number": 2, "content": "inserted",
	})
	if result.Status != "success" {
		t.Fatalf("status = %q, error = %+v", result.Status, result.Error)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "a.txt"))
	if string(data) != "one\ninserted\ntwo\nthree" {
		t.Errorf("content = %q", data)
	}
}

func TestExecutor_ListFilesNonRecursive(t *testing.T) {
	exec, dir := newTestExecutor(t)
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644)
	os.Mkdir(filepath.Join(dir, "sub"), 0o755)
	os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("y"), 0o644)

	result := exec.Execute(context.Background(), "list_files", map[string]any{"path": "."})
	if result.Status != "success" {
		t.Fatalf("status = %q, error = %+v", result.Status, result.Error)
	}
	if result.Metadata["file_count"] != 1 || result.Metadata["directory_count"] != 1 {
		t.Errorf("metadata = %+v, want 1 file and 1 directory", result.Metadata)
	}
}

func TestExecutor_SearchFiles(t *testing.T) {
	exec, dir := newTestExecutor(t)
	os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfunc Foo() {}\n"), 0o644)

	result := exec.Execute(context.Background(), "search_files", map[string]any{
		"path": ".", "regex": "func\\s+Foo", "file_pattern": "*.go",
	})
	if result.Status != "success" {
		t.Fatalf("status = %q, error = %+v", result.Status, result.Error)
	}
	if result.Metadata["total_matches"] != 1 {
		t.Errorf("metadata = %+v, want 1 match", result.Metadata)
	}
}

func TestExecutor_ExecuteCommandEcho(t *testing.T) {
	exec, _ := newTestExecutor(t)
	result := exec.Execute(context.Background(), "execute_command", map[string]any{"command": "echo hello"})
	if result.Status != "success" {
		t.Fatalf("status = %q, error = %+v", result.Status, result.Error)
	}
	if !strings.Contains(result.Data, "hello") {
		t.Errorf("data = %q, want to contain 'hello'", result.Data)
	}
}

func TestExecutor_ExecuteCommandBlockedByPolicy(t *testing.T) {
	exec, _ := newTestExecutor(t)
	result := exec.Execute(context.Background(), "execute_command", map[string]any{"command": "rm -rf /"})
	if result.Status != "error" || result.Error.Code != "SECURITY_ERROR" {
		t.Errorf("got %+v, want SECURITY_ERROR", result)
	}
}

func TestExecutor_AttemptCompletion(t *testing.T) {
	exec, _ := newTestExecutor(t)
	result := exec.Execute(context.Background(), "attempt_completion", map[string]any{"result": "done"})
	if result.Status != "success" {
		t.Fatalf("status = %q", result.Status)
	}
}

func TestExecutor_UpdateTodoList(t *testing.T) {
	exec, _ := newTestExecutor(t)
	result := exec.Execute(context.Background(), "update_todo_list", map[string]any{
		"todos": "[x] write tests\n[ ] ship it",
	})
	if result.Status != "success" {
		t.Fatalf("status = %q", result.Status)
	}
	if result.Metadata["total_items"] != 2 || result.Metadata["completed_items"] != 1 {
		t.Errorf("metadata = %+v", result.Metadata)
	}
}

func TestExecutor_UnknownTool(t *testing.T) {
	exec, _ := newTestExecutor(t)
	result := exec.Execute(context.Background(), "does_not_exist", map[string]any{})
	if result.Status != "error" || result.Error.Code != "TOOL_NOT_FOUND" {
		t.Errorf("got %+v, want TOOL_NOT_FOUND", result)
	}
}
