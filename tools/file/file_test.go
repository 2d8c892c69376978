package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	oasis "github.com/oasis-run/core"
)

func invoke(t *testing.T, pack *oasis.ToolPack, name string, args map[string]any) oasis.ToolOutput {
	t.Helper()
	for _, pt := range pack.Tools {
		if pt.Definition.Name == name {
			raw, _ := json.Marshal(args)
			out, err := pt.Invoke(context.Background(), raw)
			if err != nil {
				t.Fatalf("%s invoke returned error: %v", name, err)
			}
			return out
		}
	}
	t.Fatalf("no tool named %s in pack", name)
	return oasis.ToolOutput{}
}

func TestFileWrite(t *testing.T) {
	dir := t.TempDir()
	pack := NewPack(dir)
	result := invoke(t, pack, "file_write", map[string]any{"path": "test.txt", "content": "hello"})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "test.txt"))
	if string(data) != "hello" {
		t.Errorf("wrong content: %s", data)
	}
}

func TestFileRead(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "test.txt"), []byte("content here"), 0644)
	pack := NewPack(dir)
	result := invoke(t, pack, "file_read", map[string]any{"path": "test.txt"})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Content != "content here" {
		t.Errorf("wrong content: %q", result.Content)
	}
}

func TestFileWriteSubdir(t *testing.T) {
	dir := t.TempDir()
	pack := NewPack(dir)
	result := invoke(t, pack, "file_write", map[string]any{"path": "sub/dir/file.txt", "content": "nested"})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "sub/dir/file.txt"))
	if string(data) != "nested" {
		t.Errorf("wrong content: %s", data)
	}
}

func TestFilePathTraversal(t *testing.T) {
	pack := NewPack(t.TempDir())
	result := invoke(t, pack, "file_read", map[string]any{"path": "../etc/passwd"})
	if result.Error == "" {
		t.Error("expected path traversal error")
	}
}

func TestFileAbsolutePath(t *testing.T) {
	pack := NewPack(t.TempDir())
	result := invoke(t, pack, "file_read", map[string]any{"path": "/etc/passwd"})
	if result.Error == "" {
		t.Error("expected absolute path error")
	}
}

func TestFileReadTruncation(t *testing.T) {
	dir := t.TempDir()
	bigContent := make([]byte, 10000)
	for i := range bigContent {
		bigContent[i] = 'A'
	}
	os.WriteFile(filepath.Join(dir, "big.txt"), bigContent, 0644)
	pack := NewPack(dir)
	result := invoke(t, pack, "file_read", map[string]any{"path": "big.txt"})
	if len(result.Content) > 8100 { // 8000 + truncation message
		t.Errorf("content not truncated: %d chars", len(result.Content))
	}
}

func TestFileReadNonexistent(t *testing.T) {
	pack := NewPack(t.TempDir())
	result := invoke(t, pack, "file_read", map[string]any{"path": "does_not_exist.txt"})
	if result.Error == "" {
		t.Error("expected error for nonexistent file")
	}
}

func TestFileWriteOverwrite(t *testing.T) {
	dir := t.TempDir()
	pack := NewPack(dir)

	invoke(t, pack, "file_write", map[string]any{"path": "ow.txt", "content": "first"})
	result := invoke(t, pack, "file_write", map[string]any{"path": "ow.txt", "content": "second"})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	data, _ := os.ReadFile(filepath.Join(dir, "ow.txt"))
	if string(data) != "second" {
		t.Errorf("expected 'second', got %q", string(data))
	}
}

func TestFileWriteEmptyContent(t *testing.T) {
	dir := t.TempDir()
	pack := NewPack(dir)
	result := invoke(t, pack, "file_write", map[string]any{"path": "empty.txt", "content": ""})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}

	info, err := os.Stat(filepath.Join(dir, "empty.txt"))
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected 0 bytes, got %d", info.Size())
	}
}

func TestFileList(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("a"), 0644)
	os.WriteFile(filepath.Join(dir, "b.txt"), []byte("b"), 0644)
	os.Mkdir(filepath.Join(dir, "subdir"), 0755)

	pack := NewPack(dir)
	result := invoke(t, pack, "file_list", map[string]any{"path": "."})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if !strings.Contains(result.Content, "file\ta.txt") {
		t.Errorf("expected a.txt in listing, got: %s", result.Content)
	}
	if !strings.Contains(result.Content, "dir\tsubdir") {
		t.Errorf("expected subdir in listing, got: %s", result.Content)
	}
}

func TestFileListEmpty(t *testing.T) {
	pack := NewPack(t.TempDir())
	result := invoke(t, pack, "file_list", map[string]any{"path": "."})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if result.Content != "" {
		t.Errorf("expected empty listing, got: %q", result.Content)
	}
}

func TestFileListNonexistent(t *testing.T) {
	pack := NewPack(t.TempDir())
	result := invoke(t, pack, "file_list", map[string]any{"path": "nope"})
	if result.Error == "" {
		t.Error("expected error for nonexistent directory")
	}
}

func TestFileListDefaultPath(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "root.txt"), []byte("r"), 0644)
	pack := NewPack(dir)
	// Empty path should list workspace root.
	result := invoke(t, pack, "file_list", map[string]any{})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if !strings.Contains(result.Content, "root.txt") {
		t.Errorf("expected root.txt in listing, got: %s", result.Content)
	}
}

func TestFileDelete(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "del.txt"), []byte("bye"), 0644)
	pack := NewPack(dir)
	result := invoke(t, pack, "file_delete", map[string]any{"path": "del.txt"})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	if _, err := os.Stat(filepath.Join(dir, "del.txt")); !os.IsNotExist(err) {
		t.Error("file should have been deleted")
	}
}

func TestFileDeleteEmptyDir(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "empty"), 0755)
	pack := NewPack(dir)
	result := invoke(t, pack, "file_delete", map[string]any{"path": "empty"})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
}

func TestFileDeleteNonexistent(t *testing.T) {
	pack := NewPack(t.TempDir())
	result := invoke(t, pack, "file_delete", map[string]any{"path": "ghost.txt"})
	if result.Error == "" {
		t.Error("expected error for nonexistent file")
	}
}

func TestFileDeleteNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "notempty"), 0755)
	os.WriteFile(filepath.Join(dir, "notempty", "child.txt"), []byte("x"), 0644)
	pack := NewPack(dir)
	result := invoke(t, pack, "file_delete", map[string]any{"path": "notempty"})
	if result.Error == "" {
		t.Error("expected error for non-empty directory")
	}
}

func TestFileStat(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "info.txt"), []byte("hello"), 0644)
	pack := NewPack(dir)
	result := invoke(t, pack, "file_stat", map[string]any{"path": "info.txt"})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	var stat map[string]any
	if err := json.Unmarshal([]byte(result.Content), &stat); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if stat["name"] != "info.txt" {
		t.Errorf("expected name info.txt, got %v", stat["name"])
	}
	if stat["type"] != "file" {
		t.Errorf("expected type file, got %v", stat["type"])
	}
	if stat["size"] != float64(5) {
		t.Errorf("expected size 5, got %v", stat["size"])
	}
}

func TestFileStatDir(t *testing.T) {
	dir := t.TempDir()
	os.Mkdir(filepath.Join(dir, "mydir"), 0755)
	pack := NewPack(dir)
	result := invoke(t, pack, "file_stat", map[string]any{"path": "mydir"})
	if result.Error != "" {
		t.Fatalf("unexpected error: %s", result.Error)
	}
	var stat map[string]any
	if err := json.Unmarshal([]byte(result.Content), &stat); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if stat["type"] != "directory" {
		t.Errorf("expected type directory, got %v", stat["type"])
	}
}

func TestFileStatNonexistent(t *testing.T) {
	pack := NewPack(t.TempDir())
	result := invoke(t, pack, "file_stat", map[string]any{"path": "nope.txt"})
	if result.Error == "" {
		t.Error("expected error for nonexistent path")
	}
}

func TestFileDefinitions(t *testing.T) {
	pack := NewPack(t.TempDir())
	if len(pack.Tools) != 5 {
		t.Fatalf("expected 5 tools, got %d", len(pack.Tools))
	}

	names := map[string]bool{}
	for _, pt := range pack.Tools {
		names[pt.Definition.Name] = true
	}
	for _, want := range []string{"file_read", "file_write", "file_list", "file_delete", "file_stat"} {
		if !names[want] {
			t.Errorf("missing %s definition", want)
		}
	}
}
