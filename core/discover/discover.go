package discover

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultSpecPatterns are matched relative to the project root.
var DefaultSpecPatterns = []string{"specs/*.md", "specs/**/*.md"}

// Globber resolves glob patterns (including "**") against a project root.
type Globber struct {
	Patterns []string
}

func NewGlobber(patterns []string) Globber {
	if len(patterns) == 0 {
		patterns = DefaultSpecPatterns
	}
	return Globber{Patterns: append([]string(nil), patterns...)}
}

// Discover returns slash-separated paths relative to root that match any
// pattern, de-duplicated and in lexicographic order. Directories never match.
func (globber Globber) Discover(root string) ([]string, error) {
	return globber.DiscoverFS(os.DirFS(root))
}

func (globber Globber) DiscoverFS(fsys fs.FS) ([]string, error) {
	seen := map[string]struct{}{}
	matches := []string{}
	for _, pattern := range globber.Patterns {
		pattern = path.Clean(strings.TrimPrefix(strings.TrimSpace(pattern), "./"))
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid spec pattern %q", pattern)
		}
		found, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		for _, match := range found {
			if _, ok := seen[match]; ok {
				continue
			}
			info, err := fs.Stat(fsys, match)
			if err != nil || info.IsDir() {
				continue
			}
			seen[match] = struct{}{}
			matches = append(matches, match)
		}
	}
	sort.Strings(matches)
	return matches, nil
}
