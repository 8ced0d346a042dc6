package readme

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSplice_ReplacesAcrossLines(t *testing.T) {
	in := "# Title\n\n<!-- START-MAP-INSERT -->\nold\nstuff\n<!-- END-MAP-INSERT -->\n\nfooter\n"
	out, ok := Splice(in, ImageMarkdown("My Map", "./images/map_image.png"))
	if !ok {
		t.Fatalf("markers not found")
	}
	want := "# Title\n\n<!-- START-MAP-INSERT -->\n![My Map](./images/map_image.png)\n<!-- END-MAP-INSERT -->\n\nfooter\n"
	if out != want {
		t.Fatalf("got:\n%s\nwant:\n%s", out, want)
	}
}

func TestSplice_GreedyBetweenFirstStartAndLastEnd(t *testing.T) {
	in := "a<!-- START-MAP-INSERT -->x<!-- END-MAP-INSERT -->b<!-- START-MAP-INSERT -->y<!-- END-MAP-INSERT -->c"
	out, ok := Splice(in, "Z")
	if !ok {
		t.Fatalf("markers not found")
	}
	if out != "a<!-- START-MAP-INSERT -->Z<!-- END-MAP-INSERT -->c" {
		t.Fatalf("out=%q", out)
	}
}

func TestSplice_NoMarkers(t *testing.T) {
	in := "no markers here"
	out, ok := Splice(in, "Z")
	if ok || out != in {
		t.Fatalf("expected unchanged content, got ok=%v out=%q", ok, out)
	}
	if _, ok := Splice("<!-- END-MAP-INSERT --> <!-- START-MAP-INSERT -->", "Z"); ok {
		t.Fatalf("reversed markers must not match")
	}
}

func TestSpliceFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "README.md")
	if err := os.WriteFile(p, []byte("x\n<!-- START-MAP-INSERT --><!-- END-MAP-INSERT -->\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	changed, err := SpliceFile(p, "My Map", "./images/map_image.png")
	if err != nil || !changed {
		t.Fatalf("first splice changed=%v err=%v", changed, err)
	}
	b, _ := os.ReadFile(p)
	if !strings.Contains(string(b), "![My Map](./images/map_image.png)") {
		t.Fatalf("image link missing:\n%s", b)
	}
	changed, err = SpliceFile(p, "My Map", "./images/map_image.png")
	if err != nil || changed {
		t.Fatalf("second splice must be a no-op, changed=%v err=%v", changed, err)
	}
	if _, err := SpliceFile(filepath.Join(t.TempDir(), "absent.md"), "a", "b"); err == nil {
		t.Fatalf("expected error for absent file")
	}
}
