package content

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func productionRoot(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, EntryFile), "<html>prod</html>")
	return dir
}

func TestResolver_ProductionWinsOverEverything(t *testing.T) {
	root := productionRoot(t)
	devDir := t.TempDir()
	devFile := filepath.Join(devDir, "dev.html")
	writeFile(t, devFile, "<html>dev</html>")

	r := NewResolver()
	r.SetProductionRoot(root)
	r.SetDevelopmentPath(devFile)
	r.SetDevelopmentInline("<html>inline</html>")

	res := r.Resolve()
	if res.Kind != KindPath {
		t.Fatalf("Kind = %v, want path", res.Kind)
	}
	if res.Path != filepath.Join(root, EntryFile) {
		t.Errorf("Path = %s, want production entry file", res.Path)
	}
}

func TestResolver_FallsBackToDevelopmentFile(t *testing.T) {
	devDir := t.TempDir()
	devFile := filepath.Join(devDir, "dev.html")
	writeFile(t, devFile, "<html>dev</html>")

	r := NewResolver()
	r.SetDevelopmentPath(devFile)
	r.SetDevelopmentInline("<html>inline</html>")

	res := r.Resolve()
	if res.Kind != KindPath || res.Path != devFile {
		t.Errorf("Resolve = %+v, want dev file path", res)
	}

	// Same fallback when the production root is set but its entry file is
	// missing.
	r.SetProductionRoot(t.TempDir())
	res = r.Resolve()
	if res.Kind != KindPath || res.Path != devFile {
		t.Errorf("Resolve with empty production root = %+v, want dev file path", res)
	}
}

func TestResolver_FallsBackToInline(t *testing.T) {
	r := NewResolver()
	r.SetDevelopmentInline("<html>inline</html>")

	res := r.Resolve()
	if res.Kind != KindInline {
		t.Fatalf("Kind = %v, want inline", res.Kind)
	}
	if res.Inline != "<html>inline</html>" {
		t.Errorf("Inline = %q", res.Inline)
	}
}

func TestResolver_UnresolvedEnumeratesReasons(t *testing.T) {
	r := NewResolver()

	res := r.Resolve()
	if res.Kind != KindUnresolved {
		t.Fatalf("Kind = %v, want unresolved", res.Kind)
	}
	if res.Reason == "" {
		t.Fatal("Reason is empty")
	}
	for _, want := range []string{"production", "development document", "inline"} {
		if !strings.Contains(res.Reason, want) {
			t.Errorf("Reason %q missing %q", res.Reason, want)
		}
	}

	_, err := r.ResolveOrErr()
	var ue *UnresolvedError
	if !errors.As(err, &ue) {
		t.Fatalf("ResolveOrErr error = %v, want *UnresolvedError", err)
	}
	if ue.Reason != res.Reason {
		t.Errorf("error reason %q != resolution reason %q", ue.Reason, res.Reason)
	}
}

func TestResolver_UnresolvedNamesMissingPaths(t *testing.T) {
	r := NewResolver()
	r.SetProductionRoot("/nonexistent/prod")
	r.SetDevelopmentPath("/nonexistent/dev.html")

	res := r.Resolve()
	if res.Kind != KindUnresolved {
		t.Fatalf("Kind = %v, want unresolved", res.Kind)
	}
	if !strings.Contains(res.Reason, "/nonexistent/prod") {
		t.Errorf("Reason %q missing production path", res.Reason)
	}
	if !strings.Contains(res.Reason, "/nonexistent/dev.html") {
		t.Errorf("Reason %q missing dev path", res.Reason)
	}
}

func TestResolver_NoStaleDecisions(t *testing.T) {
	r := NewResolver()
	r.SetDevelopmentInline("<html>inline</html>")
	if res := r.Resolve(); res.Kind != KindInline {
		t.Fatalf("initial Kind = %v, want inline", res.Kind)
	}

	// A production root appearing later takes over on the next scan.
	root := productionRoot(t)
	r.SetProductionRoot(root)
	if res := r.Resolve(); res.Kind != KindPath {
		t.Errorf("after production root: Kind = %v, want path", res.Kind)
	}

	// And clearing it reverts to the fallback with no caching.
	r.SetProductionRoot("")
	if res := r.Resolve(); res.Kind != KindInline {
		t.Errorf("after clearing production root: Kind = %v, want inline", res.Kind)
	}
}

func TestResolver_EntryFileMustBeFile(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, EntryFile), 0o755); err != nil {
		t.Fatal(err)
	}

	r := NewResolver()
	r.SetProductionRoot(root)
	if res := r.Resolve(); res.Kind != KindUnresolved {
		t.Errorf("directory named %s treated as entry file: %+v", EntryFile, res)
	}
}

func TestValidateContentRoot(t *testing.T) {
	if ok, issues := ValidateContentRoot("/nonexistent"); ok || len(issues) == 0 {
		t.Errorf("nonexistent root: ok=%v issues=%v", ok, issues)
	}

	root := t.TempDir()
	ok, issues := ValidateContentRoot(root)
	if ok {
		t.Errorf("empty root validated clean: %v", issues)
	}

	writeFile(t, filepath.Join(root, EntryFile), "<html></html>")
	if err := os.Mkdir(filepath.Join(root, "assets"), 0o755); err != nil {
		t.Fatal(err)
	}
	ok, issues = ValidateContentRoot(root)
	if !ok {
		t.Errorf("complete root reported issues: %v", issues)
	}
}

func TestScratch_WriteAndRelease(t *testing.T) {
	s, err := NewScratch(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	first, err := s.WriteInline("<html>one</html>")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.WriteInline("<html>two</html>")
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("sequential writes reused the same file")
	}
	data, err := os.ReadFile(first)
	if err != nil || string(data) != "<html>one</html>" {
		t.Errorf("first file content = %q, err = %v", data, err)
	}

	if err := s.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("second Release failed: %v", err)
	}
	if _, err := os.Stat(s.Dir()); !os.IsNotExist(err) {
		t.Error("scratch dir still exists after Release")
	}
	if _, err := s.WriteInline("late"); err == nil {
		t.Error("WriteInline after Release succeeded")
	}
}

func TestScratch_FeedsResolver(t *testing.T) {
	s, err := NewScratch(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Release() }()

	path, err := s.WriteInline("<html>materialized</html>")
	if err != nil {
		t.Fatal(err)
	}

	r := NewResolver()
	r.SetDevelopmentPath(path)
	if res := r.Resolve(); res.Kind != KindPath || res.Path != path {
		t.Errorf("Resolve = %+v, want scratch path", res)
	}
}
