package nixeval

import "regexp"

// ansiEscapes matches the CSI sequences nix colors its diagnostics with.
var ansiEscapes = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// stripANSI removes terminal escape sequences so error messages recorded in
// the document are plain text.
func stripANSI(s string) string {
	return ansiEscapes.ReplaceAllString(s, "")
}
