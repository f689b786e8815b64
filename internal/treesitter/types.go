package treesitter

// Function represents an extracted function definition
// These records form the Function nodes of the knowledge graph
type Function struct {
	Name         string   `json:"name"`
	LineNumber   int      `json:"line_number"`
	EndLine      int      `json:"end_line"`
	Args         []string `json:"args"`
	Visibility   string   `json:"visibility"` // "public" or "private"
	Complexity   int      `json:"complexity"`
	Context      *string  `json:"context"`
	Lang         string   `json:"lang"`
	IsDependency bool     `json:"is_dependency"`
	Source       string   `json:"source,omitempty"`
	Docstring    string   `json:"docstring,omitempty"`
}

// Class represents a module, protocol or class definition
type Class struct {
	Name         string   `json:"name"`
	LineNumber   int      `json:"line_number"`
	EndLine      int      `json:"end_line"`
	Bases        []string `json:"bases"`
	Kind         string   `json:"kind"` // "module", "protocol", "class"
	Decorators   []string `json:"decorators"`
	Context      *string  `json:"context"`
	ContextType  *string  `json:"context_type"`
	Lang         string   `json:"lang"`
	IsDependency bool     `json:"is_dependency"`
	Source       string   `json:"source,omitempty"`
	Docstring    string   `json:"docstring,omitempty"`
}

// Variable represents a module attribute or template directive
type Variable struct {
	Name         string  `json:"name"`
	LineNumber   int     `json:"line_number"`
	EndLine      int     `json:"end_line,omitempty"`
	Value        string  `json:"value,omitempty"`
	Type         string  `json:"type,omitempty"`
	Context      *string `json:"context"`
	ClassContext *string `json:"class_context"`
	Lang         string  `json:"lang"`
	IsDependency bool    `json:"is_dependency"`
}

// Import represents an alias/import/require/use statement or a
// module-qualified template component reference
type Import struct {
	Name           string  `json:"name"`
	FullImportName string  `json:"full_import_name"`
	ImportType     string  `json:"import_type,omitempty"`
	LineNumber     int     `json:"line_number"`
	Alias          *string `json:"alias"`
	Lang           string  `json:"lang"`
	IsDependency   bool    `json:"is_dependency"`
}

// CallContext identifies the lexically enclosing definition of a call site
type CallContext struct {
	Name *string `json:"name"`
	Kind *string `json:"kind"`
	Line *int    `json:"line"`
}

// Call represents a function or method call site
type Call struct {
	Name         string      `json:"name"`
	FullName     string      `json:"full_name"`
	LineNumber   int         `json:"line_number"`
	Args         []string    `json:"args"`
	Context      CallContext `json:"context"`
	ClassContext *string     `json:"class_context"`
	Lang         string      `json:"lang"`
	IsDependency bool        `json:"is_dependency"`
}

// Macro represents a macro definition (Elixir defmacro)
type Macro struct {
	Name         string   `json:"name"`
	LineNumber   int      `json:"line_number"`
	EndLine      int      `json:"end_line"`
	Args         []string `json:"args"`
	Context      *string  `json:"context"`
	Lang         string   `json:"lang"`
	IsDependency bool     `json:"is_dependency"`
	Source       string   `json:"source,omitempty"`
	Docstring    string   `json:"docstring,omitempty"`
}

// TemplateElement represents an HTML tag or slot occurrence in a template.
// These enrich the file record but do not become graph nodes.
type TemplateElement struct {
	Name         string `json:"name"`
	LineNumber   int    `json:"line_number"`
	EndLine      int    `json:"end_line"`
	Lang         string `json:"lang"`
	IsDependency bool   `json:"is_dependency"`
	Source       string `json:"source,omitempty"`
}

// FileRecord is the normalized per-file parse output consumed by graph ingestion
type FileRecord struct {
	Path          string            `json:"path"`
	Functions     []Function        `json:"functions"`
	Classes       []Class           `json:"classes"`
	Variables     []Variable        `json:"variables"`
	Imports       []Import          `json:"imports"`
	FunctionCalls []Call            `json:"function_calls"`
	Macros        []Macro           `json:"macros,omitempty"`
	Tags          []TemplateElement `json:"tags,omitempty"`
	Slots         []TemplateElement `json:"slots,omitempty"`
	IsDependency  bool              `json:"is_dependency"`
	Lang          string            `json:"lang"`
}

// ParseOptions controls optional extraction behavior
type ParseOptions struct {
	IsDependency bool // file reached via transitive dependency resolution
	IndexSource  bool // include source text and docstrings in records
}

// ParseResult is the explicit per-file outcome: callers branch on Err
// instead of relying on propagated faults for expected per-file issues
type ParseResult struct {
	FilePath string
	Lang     string
	Record   *FileRecord
	Err      error
}

// Extractor is the per-language capability set: full structural parse
// plus the lightweight pre-scan used to seed import resolution
type Extractor interface {
	Lang() string
	Extensions() []string
	Parse(sess *Session, path string, opts ParseOptions) (*FileRecord, error)
	PreScan(sess *Session, files []string) map[string][]string
}
