package tools

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestExecutor(t *testing.T, opts Options) *Executor {
	t.Helper()
	logger, _ := test.NewNullLogger()
	opts.Logger = logger
	return NewExecutor(opts)
}

func skipWithoutShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	e := newTestExecutor(t, Options{})

	res := e.Execute(context.Background(), "delete_everything", map[string]string{"path": "/"})

	assert.True(t, res.IsError())
	assert.Equal(t, KindUnknownTool, res.Kind)
	assert.Equal(t, "Unknown tool: delete_everything", res.Text())
}

func TestExecuteMissingArgument(t *testing.T) {
	e := newTestExecutor(t, Options{})

	tests := []struct {
		name string
		tool string
		args map[string]string
		want string
	}{
		{"read without path", ReadFile, map[string]string{}, "Error: missing argument path"},
		{"write without content", WriteFile, map[string]string{"path": "x"}, "Error: missing argument content"},
		{"bash without command", RunBash, map[string]string{"cmd": "ls"}, "Error: missing argument command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Execute(context.Background(), tt.tool, tt.args)
			assert.Equal(t, KindMissingArgument, res.Kind)
			assert.Equal(t, tt.want, res.Text())
		})
	}
}

func TestReadFileNotFound(t *testing.T) {
	e := newTestExecutor(t, Options{})
	path := filepath.Join(t.TempDir(), "missing.txt")

	res := e.Execute(context.Background(), ReadFile, map[string]string{"path": path})

	assert.Equal(t, KindNotFound, res.Kind)
	assert.True(t, strings.HasPrefix(res.Text(), "Error: File not found:"))
}

func TestWriteThenReadCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	e := newTestExecutor(t, Options{})
	ctx := WithWorkspace(context.Background(), dir)
	content := "line1\nline2 \"quoted\"\n"

	res := e.Execute(ctx, WriteFile, map[string]string{"path": "a/b/c.txt", "content": content})
	require.False(t, res.IsError(), res.Text())
	assert.Equal(t, "Successfully wrote 21 characters to a/b/c.txt", res.Text())

	info, err := os.Stat(filepath.Join(dir, "a", "b"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	res = e.Execute(ctx, ReadFile, map[string]string{"path": "a/b/c.txt"})
	require.False(t, res.IsError(), res.Text())
	assert.Equal(t, content, res.Text())
	assert.False(t, res.Truncated)
}

func TestWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("old content that is longer"), 0o644))
	e := newTestExecutor(t, Options{})

	res := e.Execute(context.Background(), WriteFile, map[string]string{"path": path, "content": "new"})
	require.False(t, res.IsError())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestWriteFileCountsCharacters(t *testing.T) {
	e := newTestExecutor(t, Options{})
	ctx := WithWorkspace(context.Background(), t.TempDir())

	res := e.Execute(ctx, WriteFile, map[string]string{"path": "u.txt", "content": "héllo✓"})

	assert.Equal(t, "Successfully wrote 6 characters to u.txt", res.Text())
}

func TestWriteFileFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	e := newTestExecutor(t, Options{})

	res := e.Execute(context.Background(), WriteFile, map[string]string{
		"path":    filepath.Join(blocker, "child.txt"),
		"content": "x",
	})

	assert.Equal(t, KindWriteFailed, res.Kind)
	assert.True(t, strings.HasPrefix(res.Text(), "Error writing file:"))
}

func TestReadFileTruncates(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte(strings.Repeat("é", 25)), 0o644))
	e := newTestExecutor(t, Options{ReadLimit: 10})

	res := e.Execute(WithWorkspace(context.Background(), dir), ReadFile, map[string]string{"path": "big.txt"})

	require.False(t, res.IsError())
	assert.True(t, res.Truncated)
	assert.Equal(t, strings.Repeat("é", 10)+"\n\n... [truncated, file is too large]", res.Text())
}

func TestReadFileDefaultLimit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "exact.txt"), []byte(strings.Repeat("a", DefaultReadLimit)), 0o644))
	e := newTestExecutor(t, Options{})

	res := e.Execute(WithWorkspace(context.Background(), dir), ReadFile, map[string]string{"path": "exact.txt"})

	assert.False(t, res.Truncated)
	assert.Len(t, res.Text(), DefaultReadLimit)
}

func TestReadFileRejectsBinary(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin"), []byte{0xff, 0xfe, 0x00}, 0o644))
	e := newTestExecutor(t, Options{})

	res := e.Execute(WithWorkspace(context.Background(), dir), ReadFile, map[string]string{"path": "bin"})

	assert.Equal(t, KindReadFailed, res.Kind)
	assert.True(t, strings.HasPrefix(res.Text(), "Error reading file:"))
}

func TestReadFileOnDirectory(t *testing.T) {
	e := newTestExecutor(t, Options{})

	res := e.Execute(context.Background(), ReadFile, map[string]string{"path": t.TempDir()})

	assert.Equal(t, KindReadFailed, res.Kind)
}

func TestPathGuardDeniesOutsideRoots(t *testing.T) {
	allowed := t.TempDir()
	outside := t.TempDir()
	guard, err := NewPathGuard(allowed)
	require.NoError(t, err)
	e := newTestExecutor(t, Options{Paths: guard})

	res := e.Execute(context.Background(), ReadFile, map[string]string{"path": filepath.Join(outside, "x")})
	assert.Equal(t, KindDenied, res.Kind)
	assert.True(t, strings.HasPrefix(res.Text(), "Error: access denied:"))

	res = e.Execute(context.Background(), WriteFile, map[string]string{
		"path":    filepath.Join(allowed, "..", filepath.Base(outside), "y"),
		"content": "nope",
	})
	assert.Equal(t, KindDenied, res.Kind)
	_, statErr := os.Stat(filepath.Join(outside, "y"))
	assert.True(t, os.IsNotExist(statErr))

	res = e.Execute(context.Background(), WriteFile, map[string]string{
		"path":    filepath.Join(allowed, "new", "ok.txt"),
		"content": "fine",
	})
	assert.False(t, res.IsError(), res.Text())
}

func TestRunBashOutput(t *testing.T) {
	skipWithoutShell(t)
	e := newTestExecutor(t, Options{})

	tests := []struct {
		name    string
		command string
		want    string
	}{
		{"stdout only", "echo hello", "hello\n"},
		{"stderr appended", "echo out; echo err 1>&2", "out\n\nSTDERR: err\n"},
		{"blank output", "true", "(no output)"},
		{"whitespace only", "printf '  \\n'", "(no output)"},
		{"non-zero exit is not an error", "echo failing; exit 3", "failing\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Execute(context.Background(), RunBash, map[string]string{"command": tt.command})
			require.False(t, res.IsError(), res.Text())
			assert.Equal(t, tt.want, res.Text())
		})
	}
}

func TestRunBashUsesWorkspace(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("here"), 0o644))
	e := newTestExecutor(t, Options{})

	res := e.Execute(WithWorkspace(context.Background(), dir), RunBash, map[string]string{"command": "cat marker.txt"})

	assert.Equal(t, "here", res.Text())
}

func TestRunBashTruncates(t *testing.T) {
	skipWithoutShell(t)
	e := newTestExecutor(t, Options{OutputLimit: 8})

	res := e.Execute(context.Background(), RunBash, map[string]string{"command": "printf 'abcdefghijklmnop'"})

	assert.True(t, res.Truncated)
	assert.Equal(t, "abcdefgh\n\n... [truncated]", res.Text())
}

func TestRunBashTimeout(t *testing.T) {
	skipWithoutShell(t)
	e := newTestExecutor(t, Options{CommandTimeout: 500 * time.Millisecond})

	start := time.Now()
	res := e.Execute(context.Background(), RunBash, map[string]string{"command": "sleep 60"})
	elapsed := time.Since(start)

	assert.Equal(t, KindTimeout, res.Kind)
	assert.Equal(t, "Error: Command timed out after 0.5 seconds.", res.Text())
	assert.Less(t, elapsed, 10*time.Second)
}

func TestRunBashTimeoutKillsChildren(t *testing.T) {
	skipWithoutShell(t)
	e := newTestExecutor(t, Options{CommandTimeout: 300 * time.Millisecond})

	start := time.Now()
	res := e.Execute(context.Background(), RunBash, map[string]string{"command": "sleep 60 & sleep 60; wait"})

	assert.Equal(t, KindTimeout, res.Kind)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestRunBashDefaultTimeoutText(t *testing.T) {
	res := Failure(RunBash, KindTimeout, formatSeconds(DefaultCommandTimeout))
	assert.Equal(t, "Error: Command timed out after 30 seconds.", res.Text())
}

func TestRunBashCancelled(t *testing.T) {
	skipWithoutShell(t)
	e := newTestExecutor(t, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	res := e.Execute(ctx, RunBash, map[string]string{"command": "sleep 60"})

	assert.Equal(t, KindCommandFailed, res.Kind)
}

func TestRunBashMissingShell(t *testing.T) {
	e := newTestExecutor(t, Options{Shell: "/nonexistent/shell"})

	res := e.Execute(context.Background(), RunBash, map[string]string{"command": "echo hi"})

	assert.Equal(t, KindCommandFailed, res.Kind)
	assert.True(t, strings.HasPrefix(res.Text(), "Error running command:"))
}

func TestRunBashPolicy(t *testing.T) {
	skipWithoutShell(t)
	policy := &ListPolicy{Allowed: []string{"echo"}, Denied: []string{"rm"}, ConfirmUnlisted: true}

	tests := []struct {
		name      string
		command   string
		confirmer Confirmer
		wantKind  ErrorKind
		wantText  string
	}{
		{
			name:     "allowed",
			command:  "echo ok",
			wantText: "ok\n",
		},
		{
			name:     "denied program",
			command:  "echo ok && rm -rf /tmp/nothing",
			wantKind: KindDenied,
			wantText: "Error: command denied by policy: rm is not allowed",
		},
		{
			name:     "unlisted without confirmer",
			command:  "ls",
			wantKind: KindDenied,
			wantText: "Error: command denied by policy: ls is not in the allowed command list (no confirmation available)",
		},
		{
			name:    "unlisted confirmed",
			command: "printf yes",
			confirmer: ConfirmFunc(func(context.Context, string) (bool, error) {
				return true, nil
			}),
			wantText: "yes",
		},
		{
			name:    "unlisted rejected",
			command: "printf yes",
			confirmer: ConfirmFunc(func(context.Context, string) (bool, error) {
				return false, nil
			}),
			wantKind: KindDenied,
			wantText: "Error: command denied by policy: rejected by user",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestExecutor(t, Options{Commands: policy, Confirmer: tt.confirmer})
			res := e.Execute(context.Background(), RunBash, map[string]string{"command": tt.command})
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantText, res.Text())
		})
	}
}

func TestRunBashPolicyBlocksSecondLine(t *testing.T) {
	skipWithoutShell(t)
	dir := t.TempDir()
	e := newTestExecutor(t, Options{Commands: &ListPolicy{Allowed: []string{"ls"}, Denied: []string{"rm"}}})
	ctx := WithWorkspace(context.Background(), dir)

	res := e.Execute(ctx, RunBash, map[string]string{"command": "ls\ntouch created"})
	assert.Equal(t, KindDenied, res.Kind)
	assert.Equal(t, "Error: command denied by policy: compound commands are not allowed", res.Text())
	assert.NoFileExists(t, filepath.Join(dir, "created"))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep"), []byte("x"), 0o644))
	for _, cmd := range []string{`r"m" keep`, `\rm keep`} {
		res = e.Execute(ctx, RunBash, map[string]string{"command": cmd})
		assert.Equal(t, "Error: command denied by policy: rm is not allowed", res.Text(), cmd)
	}
	assert.FileExists(t, filepath.Join(dir, "keep"))
}

func TestWorkspaceContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, WorkspaceFromContext(ctx))
	assert.Equal(t, ctx, WithWorkspace(ctx, ""))
	assert.Equal(t, "/work", WorkspaceFromContext(WithWorkspace(ctx, "/work")))
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		in        string
		limit     int
		want      string
		truncated bool
	}{
		{"abc", 5, "abc", false},
		{"abc", 3, "abc", false},
		{"abcd", 3, "abc", true},
		{"日本語テキスト", 3, "日本語", true},
		{"anything", 0, "anything", false},
	}
	for _, tt := range tests {
		got, truncated := truncateRunes(tt.in, tt.limit)
		assert.Equal(t, tt.want, got)
		assert.Equal(t, tt.truncated, truncated)
	}
}
