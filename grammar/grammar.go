// Package grammar parses the single-line tool invocation format that models
// emit in free text:
//
//	TOOL_CALL: <name>(<key>="<value>"[, <key>="<value>"]*)
//
// Argument fragments that are not quoted key="value" pairs are skipped rather
// than rejecting the whole call.
package grammar

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Marker is the literal that introduces a tool call line.
const Marker = "TOOL_CALL:"

var (
	// An empty argument list still matches so `f()` reaches the validator,
	// which reports the missing arguments to the model.
	callPattern = regexp.MustCompile(`(?m)TOOL_CALL:\s*([A-Za-z0-9_]+)\((.*?)\)\s*$`)
	argPattern  = regexp.MustCompile(`([A-Za-z0-9_]+)\s*=\s*"((?:[^"\\]|\\.)*)"\s*`)
)

// Invocation is a tool call extracted from model output.
type Invocation struct {
	Name string
	Args map[string]string

	// Offset is the byte index in the source text where the match begins.
	Offset int
}

// Parse returns the first tool call found in text. The second return value is
// false when no line matches the grammar, in which case the whole text is a
// final answer.
func Parse(text string) (Invocation, bool) {
	loc := callPattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return Invocation{}, false
	}
	return Invocation{
		Name:   text[loc[2]:loc[3]],
		Args:   parseArgs(text[loc[4]:loc[5]]),
		Offset: loc[0],
	}, true
}

// Prelude returns the reasoning text the model wrote before the tool call,
// trimmed of surrounding whitespace.
func (inv Invocation) Prelude(text string) string {
	if inv.Offset <= 0 || inv.Offset > len(text) {
		return ""
	}
	return strings.TrimSpace(text[:inv.Offset])
}

func parseArgs(list string) map[string]string {
	args := make(map[string]string)
	for _, m := range argPattern.FindAllStringSubmatch(list, -1) {
		args[m[1]] = unescape(m[2])
	}
	return args
}

// unescape applies the two escapes the grammar recognises, quote first.
func unescape(v string) string {
	v = strings.ReplaceAll(v, `\"`, `"`)
	return strings.ReplaceAll(v, `\n`, "\n")
}

func escape(v string) string {
	v = strings.ReplaceAll(v, `"`, `\"`)
	return strings.ReplaceAll(v, "\n", `\n`)
}

// Format renders an invocation in wire form. Keys are sorted so the output is
// deterministic.
func Format(name string, args map[string]string) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf(`%s="%s"`, k, escape(args[k])))
	}
	return fmt.Sprintf("%s %s(%s)", Marker, name, strings.Join(parts, ", "))
}
