package protocol

// WrapParameters converts a flat parameter map into the wire shape
// `{"args": {...flat keys...}}`, with the read_file exception which nests
// `{"args": {"file": {"path": ...}}}`.
func WrapParameters(toolName string, flat map[string]any) map[string]any {
	if toolName == "read_file" {
		file := map[string]any{}
		if path, ok := flat["path"]; ok {
			file["path"] = path
		}
		args := map[string]any{"file": file}
		// Preserve any sibling keys (e.g. line_range) alongside file.
		for k, v := range flat {
			if k == "path" {
				continue
			}
			args[k] = v
		}
		return map[string]any{"args": args}
	}
	return map[string]any{"args": flat}
}

// UnwrapParameters is the inverse of WrapParameters: it extracts the flat
// keyword arguments a tool implementation expects from the wire shape.
func UnwrapParameters(toolName string, wire map[string]any) map[string]any {
	argsAny, ok := wire["args"]
	if !ok {
		return map[string]any{}
	}
	args, ok := argsAny.(map[string]any)
	if !ok {
		return map[string]any{}
	}

	if toolName == "read_file" {
		flat := map[string]any{}
		if fileAny, ok := args["file"]; ok {
			if file, ok := fileAny.(map[string]any); ok {
				if path, ok := file["path"]; ok {
					flat["path"] = path
				}
			}
		}
		for k, v := range args {
			if k == "file" {
				continue
			}
			flat[k] = v
		}
		return flat
	}

	return args
}
