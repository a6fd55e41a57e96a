package ingest

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename turns an identifier into a file stem. Characters outside
// [A-Za-z0-9._-] become underscores; an identifier with nothing usable left
// falls back to record_NNN built from rowIndex (0-based).
func SanitizeFilename(identifier string, rowIndex int) string {
	stem := unsafeFilenameChars.ReplaceAllString(strings.TrimSpace(identifier), "_")
	if strings.Trim(stem, "_.") == "" {
		return fmt.Sprintf("record_%03d", rowIndex+1)
	}
	return stem
}

// nameAllocator hands out unique archive entry names. Names are compared
// case-insensitively so the archive extracts cleanly on any file system.
type nameAllocator struct {
	used map[string]bool
}

func newNameAllocator() *nameAllocator {
	return &nameAllocator{used: make(map[string]bool)}
}

// allocate returns stem+ext, or stem_2+ext, stem_3+ext and so on for repeats
func (a *nameAllocator) allocate(stem, ext string) string {
	name := stem + ext
	for n := 2; a.used[strings.ToLower(name)]; n++ {
		name = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	a.used[strings.ToLower(name)] = true
	return name
}

// archiveBaseName derives a ZIP name from the input file name
func archiveBaseName(inputPath string) string {
	base := path.Base(strings.ReplaceAll(inputPath, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))
	stem := unsafeFilenameChars.ReplaceAllString(base, "_")
	if strings.Trim(stem, "_.") == "" {
		return "labels"
	}
	return stem
}
