package toolcall

import "testing"

func TestExtract_ReadFile(t *testing.T) {
	text := `Sure, let me check that.
<read_file><args><file><path>README.md</path></file></args></read_file>
One moment.`

	calls := Extract(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Name != "read_file" {
		t.Errorf("Name = %q, want read_file", calls[0].Name)
	}
	if calls[0].Parameters["path"] != "README.md" {
		t.Errorf("path = %v, want README.md", calls[0].Parameters["path"])
	}
}

func TestExtract_ExecuteCommand(t *testing.T) {
	text := `<execute_command><args><command>rm -rf /</command></args></execute_command>`
	calls := Extract(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Parameters["command"] != "rm -rf /" {
		t.Errorf("command = %v, want 'rm -rf /'", calls[0].Parameters["command"])
	}
}

func TestExtract_MultipleInSourceOrder(t *testing.T) {
	text := `<list_files><args><path>.</path><recursive>true</recursive></args></list_files>
then
<read_file><args><file><path>a.py</path></file></args></read_file>`

	calls := Extract(text)
	if len(calls) != 2 {
		t.Fatalf("got %d calls, want 2", len(calls))
	}
	if calls[0].Name != "list_files" || calls[1].Name != "read_file" {
		t.Errorf("order = %v, %v; want list_files, read_file", calls[0].Name, calls[1].Name)
	}
	if calls[0].Parameters["recursive"] != true {
		t.Errorf("recursive = %v, want true", calls[0].Parameters["recursive"])
	}
}

func TestExtract_UnknownToolSkipped(t *testing.T) {
	text := `<frobnicate><args><path>a</path></args></frobnicate>`
	calls := Extract(text)
	if len(calls) != 0 {
		t.Fatalf("got %d calls, want 0 for unknown tool", len(calls))
	}
}

func TestExtract_MalformedMissingArgsSkipped(t *testing.T) {
	text := `<read_file><file><path>a.py</path></file></read_file>`
	calls := Extract(text)
	if len(calls) != 0 {
		t.Fatalf("got %d calls, want 0 for missing <args>", len(calls))
	}
}

func TestExtract_FailingValidationSkipped(t *testing.T) {
	// write_to_file with an empty path fails semantic validation.
	text := `<write_to_file><args><path></path><content>hi</content></args></write_to_file>`
	calls := Extract(text)
	if len(calls) != 0 {
		t.Fatalf("got %d calls, want 0 for empty required field", len(calls))
	}
}

func TestExtract_EntityUnescape(t *testing.T) {
	text := `<execute_command><args><command>echo &quot;a &amp; b&quot;</command></args></execute_command>`
	calls := Extract(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	want := `echo "a & b"`
	if calls[0].Parameters["command"] != want {
		t.Errorf("command = %q, want %q", calls[0].Parameters["command"], want)
	}
}

func TestExtract_ContentWhitespacePreserved(t *testing.T) {
	text := "<write_to_file><args><path>a.py</path><content>line1\n  line2\n</content><line_count>2</line_count></args></write_to_file>"
	calls := Extract(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	want := "line1\n  line2\n"
	if calls[0].Parameters["content"] != want {
		t.Errorf("content = %q, want %q", calls[0].Parameters["content"], want)
	}
}

func TestExtract_NonResolvingEntities(t *testing.T) {
	// External-entity-looking constructs must not be resolved or expanded;
	// they should just pass through as literal text within content, or
	// fail to match the tool grammar entirely.
	text := `<write_to_file><args><path>a.xml</path><content>&xxe;</content><line_count>1</line_count></args></write_to_file>`
	calls := Extract(text)
	if len(calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(calls))
	}
	if calls[0].Parameters["content"] != "&xxe;" {
		t.Errorf("content = %q, want literal '&xxe;' (unresolved)", calls[0].Parameters["content"])
	}
}
