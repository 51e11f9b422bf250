package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ResolveRuntimePath turns a configured directory into an absolute path.
// Empty values fall back to fallbackSubdir next to the binary, so a bare
// `clarity-core` launch keeps its sqlite file, logs, and backups together
// regardless of the working directory.
func ResolveRuntimePath(raw, fallbackSubdir string) string {
	target := strings.TrimSpace(raw)
	if target == "" {
		target = strings.TrimSpace(fallbackSubdir)
	}
	switch {
	case target == "":
		return baseDir()
	case filepath.IsAbs(target):
		return filepath.Clean(target)
	default:
		return filepath.Clean(filepath.Join(baseDir(), target))
	}
}

// baseDir anchors relative runtime paths at the resolved binary location,
// falling back to the working directory when the executable path is
// unavailable.
func baseDir() string {
	if exe, err := os.Executable(); err == nil && strings.TrimSpace(exe) != "" {
		if resolved, rerr := filepath.EvalSymlinks(exe); rerr == nil && strings.TrimSpace(resolved) != "" {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil && strings.TrimSpace(wd) != "" {
		return wd
	}
	return "."
}
