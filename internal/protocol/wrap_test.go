package protocol

import "testing"

func TestWrapUnwrapRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		flat map[string]any
	}{
		{"write_to_file", map[string]any{"path": "a.py", "content": "x=1\n", "line_count": float64(1)}},
		{"execute_command", map[string]any{"command": "ls -la"}},
		{"list_files", map[string]any{"path": ".", "recursive": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := WrapParameters(tt.name, tt.flat)
			got := UnwrapParameters(tt.name, wire)
			if len(got) != len(tt.flat) {
				t.Fatalf("unwrap(wrap(%v)) = %v, want %v", tt.flat, got, tt.flat)
			}
			for k, v := range tt.flat {
				if got[k] != v {
					t.Errorf("key %q = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestWrapReadFileNesting(t *testing.T) {
	flat := map[string]any{"path": "README.md"}
	wire := WrapParameters("read_file", flat)

	args, ok := wire["args"].(map[string]any)
	if !ok {
		t.Fatalf("wire[args] not a map: %v", wire)
	}
	file, ok := args["file"].(map[string]any)
	if !ok {
		t.Fatalf("args[file] not a map: %v", args)
	}
	if file["path"] != "README.md" {
		t.Errorf("file[path] = %v, want README.md", file["path"])
	}

	got := UnwrapParameters("read_file", wire)
	if got["path"] != "README.md" {
		t.Errorf("unwrap path = %v, want README.md", got["path"])
	}
}

func TestWrapReadFileWithLineRange(t *testing.T) {
	flat := map[string]any{"path": "a.py", "line_range": []any{float64(1), float64(10)}}
	wire := WrapParameters("read_file", flat)
	got := UnwrapParameters("read_file", wire)

	if got["path"] != "a.py" {
		t.Errorf("path = %v, want a.py", got["path"])
	}
	if got["line_range"] == nil {
		t.Errorf("line_range missing from unwrapped result")
	}
}
