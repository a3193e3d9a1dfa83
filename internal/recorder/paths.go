// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DateFolderLayout partitions segments into one directory per day.
	DateFolderLayout = "2006-01-02"
	// SegmentTimeLayout is the start timestamp embedded in segment names.
	SegmentTimeLayout = "20060102-150405"
)

// SanitizeSource maps a source id to something safe inside a file name.
func SanitizeSource(source string) string {
	var b strings.Builder
	for _, r := range source {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "unknown"
	}
	return s
}

// SegmentDir is the date partition for a segment starting at t.
func SegmentDir(root string, t time.Time) string {
	return filepath.Join(root, t.Format(DateFolderLayout))
}

// SegmentPath names a segment: <root>/<date>/<source>-<YYYYMMDD-HHMMSS>.<ext>.
func SegmentPath(root, source string, t time.Time, ext string) string {
	name := fmt.Sprintf("%s-%s.%s", SanitizeSource(source), t.Format(SegmentTimeLayout), ext)
	return filepath.Join(SegmentDir(root, t), name)
}

// uniquePath appends -1, -2... when a segment of the same source already
// started within the same second.
func uniquePath(path string) (string, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return path, nil
	} else if err != nil {
		return "", err
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d%s", base, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, fs.ErrNotExist) {
			return candidate, nil
		} else if err != nil {
			return "", err
		}
	}
}
