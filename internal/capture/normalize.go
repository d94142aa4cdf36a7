package capture

import (
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Raw terminal streams interleave visual control codes and shell-integration
// telemetry with human-readable output. Only the latter is worth storing, so
// normalization is a lossy, best-effort filter rather than a faithful
// terminal emulator: escape sequences are stripped, runs of padding spaces
// collapsed, and known telemetry lines dropped.

// multiSpace matches runs of two or more spaces.
var multiSpace = regexp.MustCompile(` {2,}`)

// noisePatterns matches lines that are shell telemetry rather than output.
// Applied after escape stripping and trimming.
var noisePatterns = []*regexp.Regexp{
	// Pure numeric-prefixed control payloads, e.g. "0;" or "12;34".
	regexp.MustCompile(`^\d+(;\d*)*[A-Za-z]?$`),
	// Bare prompt glyphs left on a line of their own.
	regexp.MustCompile(`^[%$#>❯]$`),
	// Bracketed paste guard (lock/unlock).
	regexp.MustCompile(`^\?2004[hl]$`),
	// Shell integration markers: prompt start/end, pre-exec, command
	// finished, and the new-command marker with its payload.
	regexp.MustCompile(`^(133|633);[A-Z](;.*)?$`),
}

// stripEscapes removes escape sequences and control bytes from a chunk.
// CSI, OSC, and two-byte escape sequences are handled by ansi.Strip; a
// second pass drops bell, backspace, and every other C0 control byte
// except newline, so CRLF streams split the same way as LF streams.
// Stripping an already-stripped chunk is a no-op.
func stripEscapes(s string) string {
	s = ansi.Strip(s)

	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n':
			sb.WriteByte('\n')
		case r < 0x20 || r == 0x7f:
			// Bell, backspace, and other C0 controls carry no text.
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// isNoiseLine reports whether a trimmed line matches the noise-pattern set.
func isNoiseLine(line string) bool {
	for _, p := range noisePatterns {
		if p.MatchString(line) {
			return true
		}
	}
	return false
}

// Normalize runs the full pipeline on a raw chunk and returns the lines
// that should be stored: escape sequences stripped, space runs collapsed,
// lines split and trimmed, empty and noise lines dropped.
func Normalize(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}

	text := stripEscapes(string(raw))
	text = multiSpace.ReplaceAllString(text, " ")

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isNoiseLine(line) {
			continue
		}
		out = append(out, line)
	}
	return out
}
