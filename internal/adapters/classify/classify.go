// Package classify provides a trivial extension-based ports.Classifier.
// The original tool classifies files with the identify library's
// content- and shebang-aware tagging; a full equivalent is out of scope
// here (it's a content-sniffing concern, not a scheduling one), so this
// adapter maps the common extensions a config's hook.types selectors
// actually need.
package classify

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// lowerCaser performs Unicode-correct lowercasing of a file extension
// before the tag lookup, the same library the teacher reaches for
// whenever it needs locale-aware casing rather than ASCII strings.ToLower.
var lowerCaser = cases.Lower(language.Und)

// byExtensionTags maps a lowercase file extension (without the dot) to
// the tags a file with that extension carries. Multiple tags let a hook
// select on either a broad family ("text") or a specific language
// ("python").
var byExtensionTags = map[string][]string{
	"py":   {"python", "text"},
	"pyi":  {"python", "text"},
	"go":   {"go", "text"},
	"js":   {"javascript", "text"},
	"jsx":  {"javascript", "text"},
	"ts":   {"typescript", "text"},
	"tsx":  {"typescript", "text"},
	"rs":   {"rust", "text"},
	"rb":   {"ruby", "text"},
	"java": {"java", "text"},
	"md":   {"markdown", "text"},
	"rst":  {"text"},
	"txt":  {"text"},
	"json": {"json", "text"},
	"yaml": {"yaml", "text"},
	"yml":  {"yaml", "text"},
	"toml": {"toml", "text"},
	"sh":   {"shell", "text"},
	"bash": {"shell", "text"},
	"sql":  {"sql", "text"},
	"html": {"html", "text"},
	"css":  {"css", "text"},
}

// ByExtension classifies paths by their lowercased file extension.
type ByExtension struct{}

// New constructs a ByExtension classifier.
func New() *ByExtension { return &ByExtension{} }

// Tags returns the tags registered for path's extension, or nil if the
// extension is unrecognized.
func (ByExtension) Tags(path string) []string {
	ext := strings.TrimPrefix(lowerCaser.String(filepath.Ext(path)), ".")
	if ext == "" {
		return nil
	}
	tags, ok := byExtensionTags[ext]
	if !ok {
		return nil
	}
	return append([]string(nil), tags...)
}
