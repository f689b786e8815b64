package treesitter

import (
	"path/filepath"
	"strings"
)

// Language registry: new languages are added by registering an Extractor,
// never by branching on language name inside shared logic.

var (
	extractorsByLang = map[string]Extractor{}
	extractorsByExt  = map[string]Extractor{}
)

// RegisterExtractor adds an extractor to the registry. Called from init()
// in each language file. Later registrations win for contested extensions.
func RegisterExtractor(e Extractor) {
	extractorsByLang[e.Lang()] = e
	for _, ext := range e.Extensions() {
		extractorsByExt[strings.ToLower(ext)] = e
	}
}

// ExtractorForLang returns the extractor registered under a language tag.
func ExtractorForLang(lang string) (Extractor, bool) {
	e, ok := extractorsByLang[lang]
	return e, ok
}

// ExtractorForPath resolves an extractor from a file extension.
func ExtractorForPath(path string) (Extractor, bool) {
	e, ok := extractorsByExt[strings.ToLower(filepath.Ext(path))]
	return e, ok
}

// DetectLanguage returns the language tag for a file path, or "" if the
// file type is unsupported.
func DetectLanguage(path string) string {
	if e, ok := ExtractorForPath(path); ok {
		return e.Lang()
	}
	return ""
}

// SupportedExtensions lists every extension with a registered extractor.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extractorsByExt))
	for ext := range extractorsByExt {
		exts = append(exts, ext)
	}
	return exts
}

// ParseFile parses a file with the extractor matching its extension.
// The result is always non-nil; an unsupported file type or a hard read
// failure is reported through the Err field, not a panic or abort.
func ParseFile(sess *Session, path string, opts ParseOptions) *ParseResult {
	e, ok := ExtractorForPath(path)
	if !ok {
		return &ParseResult{
			FilePath: path,
			Err:      errUnsupportedFile(path),
		}
	}

	record, err := e.Parse(sess, path, opts)
	if err != nil {
		return &ParseResult{
			FilePath: path,
			Lang:     e.Lang(),
			Err:      err,
		}
	}

	return &ParseResult{
		FilePath: path,
		Lang:     e.Lang(),
		Record:   record,
	}
}
