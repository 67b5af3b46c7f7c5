package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"
)

const fileTruncatedMarker = "\n\n... [truncated, file is too large]"

// resolvePath anchors relative paths at the workspace root carried by ctx.
func resolvePath(ctx context.Context, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	if root := WorkspaceFromContext(ctx); root != "" {
		return filepath.Join(root, path)
	}
	return filepath.Clean(path)
}

func (e *Executor) readFile(ctx context.Context, path string) Result {
	target := resolvePath(ctx, path)
	if err := e.paths.Check(target); err != nil {
		return Failure(ReadFile, KindDenied, err.Error())
	}

	if _, err := os.Stat(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Failure(ReadFile, KindNotFound, path)
		}
		return Failure(ReadFile, KindReadFailed, err.Error())
	}

	data, err := os.ReadFile(target)
	if err != nil {
		return Failure(ReadFile, KindReadFailed, err.Error())
	}
	if !utf8.Valid(data) {
		return Failure(ReadFile, KindReadFailed, fmt.Sprintf("%s is not valid UTF-8 text", path))
	}

	content, truncated := truncateRunes(string(data), e.opts.ReadLimit)
	if truncated {
		content += fileTruncatedMarker
	}
	res := OK(ReadFile, content)
	res.Truncated = truncated
	return res
}

func (e *Executor) writeFile(ctx context.Context, path, content string) Result {
	target := resolvePath(ctx, path)
	if err := e.paths.Check(target); err != nil {
		return Failure(WriteFile, KindDenied, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Failure(WriteFile, KindWriteFailed, err.Error())
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return Failure(WriteFile, KindWriteFailed, err.Error())
	}

	return OK(WriteFile, fmt.Sprintf("Successfully wrote %d characters to %s", utf8.RuneCountInString(content), path))
}

// truncateRunes keeps the first limit characters of s. A limit <= 0 disables
// truncation.
func truncateRunes(s string, limit int) (string, bool) {
	if limit <= 0 {
		return s, false
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i], true
		}
		count++
	}
	return s, false
}
