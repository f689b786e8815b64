package treesitter

import (
	"fmt"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	tree_sitter_heex "github.com/phoenixframework/tree-sitter-heex/bindings/go"
	tree_sitter_elixir "github.com/tree-sitter/tree-sitter-elixir/bindings/go"
)

// Session owns the tree-sitter state for one indexing run: language
// grammars, pooled parser instances, and compiled query caches.
// It is constructed explicitly and passed down, so no parse state leaks
// across runs or tests through package globals.
// IMPORTANT: Always call Close() to release compiled queries (CGO requirement)
type Session struct {
	mu        sync.Mutex
	languages map[string]*tree_sitter.Language
	pools     map[string]*sync.Pool
	queries   map[string]*compiledQuery
}

type compiledQuery struct {
	query        *tree_sitter.Query
	captureNames []string
}

// NewSession creates a session with every supported grammar loaded.
func NewSession() *Session {
	s := &Session{
		languages: map[string]*tree_sitter.Language{
			LangElixir: tree_sitter.NewLanguage(tree_sitter_elixir.Language()),
			LangHEEx:   tree_sitter.NewLanguage(tree_sitter_heex.Language()),
		},
		pools:   make(map[string]*sync.Pool),
		queries: make(map[string]*compiledQuery),
	}

	for lang, tsLang := range s.languages {
		tsLang := tsLang
		s.pools[lang] = &sync.Pool{
			New: func() any {
				p := tree_sitter.NewParser()
				if err := p.SetLanguage(tsLang); err != nil {
					panic(fmt.Sprintf("set language: %v", err))
				}
				return p
			},
		}
	}

	return s
}

// Language tags used by the registered extractors.
const (
	LangElixir = "elixir"
	LangHEEx   = "heex"
)

// Language returns the grammar for a language tag.
func (s *Session) Language(lang string) (*tree_sitter.Language, error) {
	tsLang, ok := s.languages[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}
	return tsLang, nil
}

// ParseSource parses source bytes into a syntax tree.
// The caller must call tree.Close() when done. Parsers are pooled per
// language to avoid per-file allocation.
func (s *Session) ParseSource(lang string, source []byte) (*tree_sitter.Tree, error) {
	pool, ok := s.pools[lang]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", lang)
	}

	p, _ := pool.Get().(*tree_sitter.Parser)
	if p == nil {
		return nil, fmt.Errorf("failed to get parser for language %s", lang)
	}
	tree := p.Parse(source, nil)
	pool.Put(p)

	if tree == nil {
		return nil, fmt.Errorf("parse failed for language %s", lang)
	}
	return tree, nil
}

// Query returns a compiled query, compiling and caching it on first use.
// Queries are cached under (lang, name); the source is only consulted on
// the first call for a given key.
func (s *Session) Query(lang, name, source string) (*tree_sitter.Query, []string, error) {
	key := lang + "/" + name

	s.mu.Lock()
	defer s.mu.Unlock()

	if cq, ok := s.queries[key]; ok {
		return cq.query, cq.captureNames, nil
	}

	tsLang, ok := s.languages[lang]
	if !ok {
		return nil, nil, fmt.Errorf("unsupported language: %s", lang)
	}

	query, qErr := tree_sitter.NewQuery(tsLang, source)
	if qErr != nil {
		return nil, nil, fmt.Errorf("compile query %s: %w", key, qErr)
	}

	cq := &compiledQuery{
		query:        query,
		captureNames: query.CaptureNames(),
	}
	s.queries[key] = cq
	return cq.query, cq.captureNames, nil
}

// Close releases every compiled query held by the session.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, cq := range s.queries {
		cq.query.Close()
		delete(s.queries, key)
	}
}

func errUnsupportedFile(path string) error {
	return fmt.Errorf("unsupported file type: %s", path)
}
