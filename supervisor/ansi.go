package supervisor

import "regexp"

// ansiPattern matches CSI sequences plus bare escape pairs, the escapes bot
// frameworks emit for colored console output.
var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b[@-_]`)

// StripANSI removes ANSI escape sequences from a console line.
func StripANSI(line string) string {
	return ansiPattern.ReplaceAllString(line, "")
}
