package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-shellwords"
)

// ErrPathNotAllowed is returned when a path falls outside every allowed root.
var ErrPathNotAllowed = errors.New("access denied")

// PathGuard confines file operations to a set of root directories. A guard
// with no roots allows every path.
type PathGuard struct {
	roots []string
}

// NewPathGuard resolves the given roots to absolute, symlink-free paths.
func NewPathGuard(roots ...string) (*PathGuard, error) {
	g := &PathGuard{}
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("invalid root %q: %w", root, err)
		}
		g.roots = append(g.roots, resolveExisting(abs))
	}
	return g, nil
}

// Roots returns the resolved roots.
func (g *PathGuard) Roots() []string {
	if g == nil {
		return nil
	}
	return append([]string(nil), g.roots...)
}

// Check returns ErrPathNotAllowed when path is outside every root.
func (g *PathGuard) Check(path string) error {
	if g == nil || len(g.roots) == 0 {
		return nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPathNotAllowed, path, err)
	}
	resolved := resolveExisting(abs)
	for _, root := range g.roots {
		if within(root, resolved) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s is outside the allowed roots", ErrPathNotAllowed, path)
}

// resolveExisting evaluates symlinks on the longest existing prefix of path
// and re-attaches the part that does not exist yet.
func resolveExisting(path string) string {
	path = filepath.Clean(path)
	rest := ""
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			if resolved, err := filepath.EvalSymlinks(cur); err == nil {
				cur = resolved
			}
			if rest == "" {
				return cur
			}
			return filepath.Join(cur, rest)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path
		}
		if rest == "" {
			rest = filepath.Base(cur)
		} else {
			rest = filepath.Join(filepath.Base(cur), rest)
		}
		cur = parent
	}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Decision is the verdict of a CommandPolicy.
type Decision int

const (
	Allow Decision = iota
	Deny
	Confirm
)

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case Confirm:
		return "confirm"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// CommandPolicy decides whether a shell command may run. The reason is shown
// to the model when the command is not allowed.
type CommandPolicy interface {
	Decide(ctx context.Context, command string) (Decision, string)
}

// Confirmer asks a human (or another system) to approve a command the policy
// flagged for confirmation.
type Confirmer interface {
	Confirm(ctx context.Context, command string) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, command string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, command string) (bool, error) {
	return f(ctx, command)
}

// AllowAll permits every command.
type AllowAll struct{}

func (AllowAll) Decide(context.Context, string) (Decision, string) { return Allow, "" }

// ListPolicy checks commands against program allow and deny lists.
//
// Denied programs are matched against every word of the command, including
// words after pipes, separators and newlines, both as written and with shell
// quoting removed. When Allowed is non-empty only simple commands whose
// program is listed pass; anything else is denied, or sent for confirmation
// when ConfirmUnlisted is set.
type ListPolicy struct {
	Allowed         []string
	Denied          []string
	ConfirmUnlisted bool
}

func (p *ListPolicy) Decide(_ context.Context, command string) (Decision, string) {
	command = strings.TrimSpace(command)
	if command == "" {
		return Deny, "empty command"
	}

	segments := splitSegments(command)
	if name, ok := p.deniedWord(command, segments); ok {
		return Deny, fmt.Sprintf("%s is not allowed", name)
	}

	if len(p.Allowed) == 0 {
		return Allow, ""
	}

	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return Deny, fmt.Sprintf("cannot parse command: %v", err)
	}
	if len(args) == 0 {
		return Deny, "empty command"
	}

	program := filepath.Base(args[0])
	compound := len(segments) > 1 ||
		parser.Position >= 0 ||
		strings.Contains(command, "$(") ||
		strings.Contains(command, "`")
	if contains(p.Allowed, program) && !compound {
		return Allow, ""
	}

	reason := fmt.Sprintf("%s is not in the allowed command list", program)
	if compound {
		reason = "compound commands are not allowed"
	}
	if p.ConfirmUnlisted {
		return Confirm, reason
	}
	return Deny, reason
}

// deniedWord reports the first denied program found in the command. Raw words
// are checked as written and with quotes and backslashes stripped, then every
// segment is tokenised the way the shell would and each token is checked.
func (p *ListPolicy) deniedWord(command string, segments []string) (string, bool) {
	if len(p.Denied) == 0 {
		return "", false
	}
	for _, word := range commandWords(command) {
		for _, w := range []string{word, unquoteWord(word)} {
			if name := filepath.Base(w); contains(p.Denied, name) {
				return name, true
			}
		}
	}
	for _, seg := range segments {
		args, err := shellwords.Parse(seg)
		if err != nil {
			continue
		}
		for _, arg := range args {
			if name := filepath.Base(arg); contains(p.Denied, name) {
				return name, true
			}
		}
	}
	return "", false
}

// commandWords splits a command on whitespace and shell operators. It does
// not honour quoting, which errs on the side of matching more words.
func commandWords(command string) []string {
	return strings.FieldsFunc(command, func(r rune) bool {
		switch r {
		case ' ', '\t', '\n', '\r', ';', '&', '|', '(', ')', '`', '<', '>', '$':
			return true
		}
		return false
	})
}

var quoteStripper = strings.NewReplacer(`"`, "", `'`, "", `\`, "")

// unquoteWord removes quote and backslash characters, so r"m" and \rm read as rm.
func unquoteWord(word string) string {
	return quoteStripper.Replace(word)
}

// splitSegments splits a command into the simple commands the shell would
// run. Quotes and backslash escapes are honoured. Operators, redirections,
// unquoted newlines, parentheses, command substitutions and backticks end a
// segment. Substitutions also split inside double quotes, where the shell
// still runs them.
func splitSegments(command string) []string {
	var (
		segments       []string
		cur            strings.Builder
		single, double bool
		escaped        bool
		inBacktick     bool
		backtickDouble bool
		// saved double-quote state for every open parenthesis
		parens []bool
	)
	flush := func() {
		if seg := strings.TrimSpace(cur.String()); seg != "" {
			segments = append(segments, seg)
		}
		cur.Reset()
	}

	runes := []rune(command)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case escaped:
			escaped = false
		case single:
			if r == '\'' {
				single = false
			}
		case r == '\\':
			escaped = true
		case r == '`':
			flush()
			if inBacktick {
				double = backtickDouble
			} else {
				backtickDouble = double
				double = false
			}
			inBacktick = !inBacktick
			continue
		case r == '$' && i+1 < len(runes) && runes[i+1] == '(':
			flush()
			parens = append(parens, double)
			double = false
			i++
			continue
		case double:
			if r == '"' {
				double = false
			}
		case r == '\'':
			single = true
		case r == '"':
			double = true
		case r == '(':
			flush()
			parens = append(parens, false)
			continue
		case r == ')':
			flush()
			if n := len(parens); n > 0 {
				double = parens[n-1]
				parens = parens[:n-1]
			}
			continue
		case strings.ContainsRune(";&|<>\n\r", r):
			flush()
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return segments
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
