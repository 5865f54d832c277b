package runstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriteJSON_RoundTripLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "state.json")

	in := map[string][]string{"blocked": {"a"}, "failed": {}}
	if err := WriteJSON(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}
	var out map[string][]string
	if err := ReadJSON(path, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out["blocked"]) != 1 || out["blocked"][0] != "a" {
		t.Fatalf("unexpected content: %+v", out)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".favesave-tmp-") {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestReadJSON_RejectsMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	if err := ReadJSON(path, &v); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRemove_ReportsExistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.json")
	existed, err := Remove(path)
	if err != nil || existed {
		t.Fatalf("missing file: existed=%v err=%v", existed, err)
	}
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	existed, err = Remove(path)
	if err != nil || !existed {
		t.Fatalf("existing file: existed=%v err=%v", existed, err)
	}
}

func TestProbeWritable_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := ProbeWritable(dir); err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to exist: %v", err)
	}
}
