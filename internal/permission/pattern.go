package permission

import (
	"regexp"
	"strings"
)

// toolName extracts the tool-name prefix from a "ToolName(argument...)"
// call string, e.g. "Bash" from "Bash(git status)".
func toolName(toolCall string) string {
	if i := strings.IndexByte(toolCall, '('); i >= 0 {
		return toolCall[:i]
	}
	return toolCall
}

// compilePattern turns a profile glob pattern into a regular expression.
// "*" matches any run of characters except "/"; "**" matches across "/"
// as well. Everything else is matched literally.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString("^")
	for i := 0; i < len(pattern); {
		if pattern[i] == '*' {
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				sb.WriteString(".*")
				i += 2
				continue
			}
			sb.WriteString("[^/]*")
			i++
			continue
		}
		sb.WriteString(regexp.QuoteMeta(string(pattern[i])))
		i++
	}
	sb.WriteString("$")
	return regexp.Compile(sb.String())
}

// substituteWorkspace replaces the {workspace} placeholder with the live
// session's workspace path before the pattern is compiled.
func substituteWorkspace(pattern, workspace string) string {
	return strings.ReplaceAll(pattern, "{workspace}", workspace)
}

// matchPattern reports whether toolCall matches pattern once {workspace}
// has been substituted. A malformed pattern is fail-closed: it never
// matches (so it can never grant an allow), and the caller's default-deny
// still governs the overall decision.
func matchPattern(pattern, toolCall, workspace string) bool {
	re, err := compilePattern(substituteWorkspace(pattern, workspace))
	if err != nil {
		return false
	}
	return re.MatchString(toolCall)
}
