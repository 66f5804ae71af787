package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadFile_PlainText(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "warmup.txt", `
# hero images
https://cdn.test/a.jpg
https://cdn.test/b.png  # above the fold

https://cdn.test/c.webp
`)
	reqs, err := LoadFile(p)
	if err != nil { t.Fatalf("load: %v", err) }
	if len(reqs) != 3 { t.Fatalf("entries=%d, want 3", len(reqs)) }
	if reqs[1].Primary != "https://cdn.test/b.png" {
		t.Fatalf("entry 2: %+v", reqs[1])
	}
}

func TestLoadFile_YAML(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "warmup.yaml", `
- primary: https://cdn.test/a.jpg
  webp: https://cdn.test/a.webp
  identifier: hero banner
- primary: https://cdn.test/b.png
`)
	reqs, err := LoadFile(p)
	if err != nil { t.Fatalf("load: %v", err) }
	if len(reqs) != 2 { t.Fatalf("entries=%d", len(reqs)) }
	if reqs[0].WebP != "https://cdn.test/a.webp" || reqs[0].Identifier != "hero banner" {
		t.Fatalf("entry 1: %+v", reqs[0])
	}
}

func TestLoadFile_JSON(t *testing.T) {
	d := t.TempDir()
	p := writeTempFile(t, d, "warmup.json", `[{"primary":"https://cdn.test/a.jpg","quality":70}]`)
	reqs, err := LoadFile(p)
	if err != nil { t.Fatalf("load: %v", err) }
	if len(reqs) != 1 || reqs[0].Quality != 70 {
		t.Fatalf("entries: %+v", reqs)
	}
}

func TestLoadFile_RejectsBadEntries(t *testing.T) {
	d := t.TempDir()
	cases := map[string]string{
		"scheme.txt":   "ftp://cdn.test/a.jpg\n",
		"missing.json": `[{"webp":"https://cdn.test/a.webp"}]`,
	}
	for name, content := range cases {
		p := writeTempFile(t, d, name, content)
		if _, err := LoadFile(p); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
