// Package seginfo names, parses and discovers the generation files of a log store.
//
// A generation file is called "<generation>.x" where generation is a decimal,
// non-negative integer.
package seginfo

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/iamBelugaa/kvs/pkg/filesys"
)

// Extension is the suffix shared by all generation files.
const Extension = ".x"

// FileName returns the file name of a generation, e.g. "12.x".
func FileName(generation uint64) string {
	return strconv.FormatUint(generation, 10) + Extension
}

// Path joins dir with the file name of a generation.
func Path(dir string, generation uint64) string {
	return filepath.Join(dir, FileName(generation))
}

// ParseGeneration extracts the generation from a file name or path.
// Names not matching "<digits>.x" are rejected.
func ParseGeneration(name string) (uint64, error) {
	_, filename := filepath.Split(name)

	if !strings.HasSuffix(filename, Extension) {
		return 0, fmt.Errorf("filename %s does not end with %s", filename, Extension)
	}

	digits := strings.TrimSuffix(filename, Extension)
	if digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return 0, fmt.Errorf("filename %s has unexpected format, expected <generation>%s", filename, Extension)
	}

	gen, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse generation '%s' as integer: %w", digits, err)
	}
	return gen, nil
}

// ListGenerations returns the generations present in dir in ascending order.
// Files whose names do not parse are ignored.
func ListGenerations(dir string) ([]uint64, error) {
	names, err := filesys.ListFiles(dir, Extension)
	if err != nil {
		return nil, fmt.Errorf("failed to list generation files in %s: %w", dir, err)
	}

	gens := make([]uint64, 0, len(names))
	for _, name := range names {
		gen, err := ParseGeneration(name)
		if err != nil {
			continue
		}
		gens = append(gens, gen)
	}

	slices.Sort(gens)
	return gens, nil
}
