// Package readme keeps the map image link inside README.md up to date.
package readme

import (
	"fmt"
	"os"
	"regexp"
)

const (
	StartMarker = "<!-- START-MAP-INSERT -->"
	EndMarker   = "<!-- END-MAP-INSERT -->"
)

var insertRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(StartMarker) + `.*` + regexp.QuoteMeta(EndMarker))

// ImageMarkdown is the block placed between the markers.
func ImageMarkdown(alt, path string) string {
	return fmt.Sprintf("\n![%s](%s)\n", alt, path)
}

// Splice replaces everything between the first start marker and the last end
// marker with insert. ok is false when the markers are absent.
func Splice(content, insert string) (out string, ok bool) {
	loc := insertRe.FindStringIndex(content)
	if loc == nil {
		return content, false
	}
	return content[:loc[0]] + StartMarker + insert + EndMarker + content[loc[1]:], true
}

// SpliceFile rewrites path in place. changed is false when the markers are
// absent or the content is already current.
func SpliceFile(path, alt, imagePath string) (changed bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read readme: %w", err)
	}
	out, ok := Splice(string(b), ImageMarkdown(alt, imagePath))
	if !ok || out == string(b) {
		return false, nil
	}
	st, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("stat readme: %w", err)
	}
	if err := os.WriteFile(path, []byte(out), st.Mode().Perm()); err != nil {
		return false, fmt.Errorf("write readme: %w", err)
	}
	return true, nil
}
