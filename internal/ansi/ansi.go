// Package ansi strips terminal escape sequences from PTY output, the
// way internal/terminal's OSC133 parser recognizes them, so that
// downstream byte-counting heuristics (activity, echo verification)
// see only the text a human would read.
package ansi

import "regexp"

// csiSeq matches CSI sequences (ESC [ ... final-byte), e.g. cursor
// moves and SGR color codes.
var csiSeq = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// oscSeq matches OSC sequences (ESC ] ... BEL or ESC \), including
// OSC 133 shell-integration markers.
var oscSeq = regexp.MustCompile(`\x1b\][^\x07]*(\x07|\x1b\\)`)

// otherEscape matches remaining two-byte escape sequences (ESC + one
// byte), e.g. ESC ( B.
var otherEscape = regexp.MustCompile(`\x1b[()][A-Za-z0-9]`)

// Strip removes ANSI/CSI/OSC escape sequences from s, leaving plain
// text.
func Strip(s string) string {
	s = oscSeq.ReplaceAllString(s, "")
	s = csiSeq.ReplaceAllString(s, "")
	s = otherEscape.ReplaceAllString(s, "")
	return s
}
