//go:build !linux

package proctitle

import (
	"os"
	"strings"
)

// Set rewrites os.Args[0] only. There is no portable prctl equivalent, so
// this is best effort and never fails.
func Set(title string) error {
	if title = strings.TrimSpace(title); title == "" {
		return nil
	}
	if len(os.Args) > 0 {
		os.Args[0] = title
	}
	return nil
}
