package treesitter

import (
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Elixir is homoiconic: def, defp, defmacro, defmodule and friends all
// parse as plain "call" nodes. The queries below match the call shapes
// and the extractor classifies them by the leading identifier.

const (
	elixirDefinitionsQuery = `
        (call
            (identifier) @def_type
            (arguments
                (call
                    (identifier) @def_name
                    (arguments) @def_args))) @def
    `
	elixirClassesQuery = `
        (call
            (identifier) @class_type
            (arguments
                (alias) @class_name)) @class_def
    `
	elixirImportsQuery = `
        (call
            (identifier) @import_type
            (arguments) @import_args) @import_def
    `
	elixirCallsQuery = `
        (call
            (dot
                left: (_) @receiver
                right: (identifier) @method)
            (arguments)? @call_args) @call_node
    `
	elixirAttributesQuery = `
        (unary_operator
            (call
                (identifier) @attr_name
                (arguments) @attr_value)) @module_attr
    `
	elixirPreScanModulesQuery = `
        (call
            (identifier) @def_type
            (arguments
                (alias) @name)) @decl
    `
	elixirPreScanDefsQuery = `
        (call
            (identifier) @def_type
            (arguments
                (call
                    (identifier) @name))) @decl
    `
)

var elixirBranchKeywords = map[string]bool{
	"case":   true,
	"cond":   true,
	"if":     true,
	"unless": true,
	"with":   true,
	"try":    true,
	"rescue": true,
	"catch":  true,
}

var elixirBoolOperators = map[string]bool{
	"&&":  true,
	"||":  true,
	"and": true,
	"or":  true,
}

type elixirExtractor struct{}

func init() {
	RegisterExtractor(&elixirExtractor{})
}

func (e *elixirExtractor) Lang() string { return LangElixir }

func (e *elixirExtractor) Extensions() []string { return []string{".ex", ".exs"} }

// Parse extracts the structural record of one Elixir file. Only a hard
// read or parse failure is returned; a failed sub-extraction degrades to
// an empty field.
func (e *elixirExtractor) Parse(sess *Session, path string, opts ParseOptions) (*FileRecord, error) {
	code, err := readSourceLossy(path)
	if err != nil {
		return nil, err
	}
	tree, err := sess.ParseSource(LangElixir, code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	root := tree.RootNode()

	functions, macros := e.findDefinitions(sess, root, code, opts)
	record := &FileRecord{
		Path:          path,
		Functions:     functions,
		Classes:       e.findClasses(sess, root, code, opts),
		Variables:     e.findVariables(sess, root, code, opts),
		Imports:       e.findImports(sess, root, code, opts),
		FunctionCalls: e.findCalls(sess, root, code, opts),
		Macros:        macros,
		IsDependency:  opts.IsDependency,
		Lang:          LangElixir,
	}
	return record, nil
}

// findDefinitions extracts def/defp functions and defmacro macros in one
// query pass; the three forms share the same call shape.
func (e *elixirExtractor) findDefinitions(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) ([]Function, []Macro) {
	functions := []Function{}
	macros := []Macro{}

	captures, err := runQuery(sess, LangElixir, "definitions", elixirDefinitionsQuery, root, code)
	if err != nil {
		slog.Warn("elixir definitions query failed", "error", err)
		return functions, macros
	}

	seen := map[string]bool{}
	for _, g := range groupCaptures(captures, "def") {
		defType := g.text("def_type", code)
		name := g.text("def_name", code)
		if name == "" {
			continue
		}

		line := startLine(&g.Node)
		key := defType + ":" + name + ":" + strconv.Itoa(line)
		if seen[key] {
			continue
		}
		seen[key] = true

		args := splitTopLevelArgs(g.text("def_args", code))
		context, _, _ := e.enclosingContext(&g.Node, code, "defmodule")

		switch defType {
		case "def", "defp":
			visibility := "public"
			if defType == "defp" {
				visibility = "private"
			}
			fn := Function{
				Name:         name,
				LineNumber:   line,
				EndLine:      endLine(&g.Node),
				Args:         args,
				Visibility:   visibility,
				Complexity:   e.complexity(&g.Node, code),
				Context:      context,
				Lang:         LangElixir,
				IsDependency: opts.IsDependency,
			}
			if opts.IndexSource {
				fn.Source = getNodeText(&g.Node, code)
				fn.Docstring = e.docstring(&g.Node, code)
			}
			functions = append(functions, fn)

		case "defmacro":
			m := Macro{
				Name:         name,
				LineNumber:   line,
				EndLine:      endLine(&g.Node),
				Args:         args,
				Context:      context,
				Lang:         LangElixir,
				IsDependency: opts.IsDependency,
			}
			if opts.IndexSource {
				m.Source = getNodeText(&g.Node, code)
				m.Docstring = e.docstring(&g.Node, code)
			}
			macros = append(macros, m)
		}
	}

	return functions, macros
}

// findClasses extracts defmodule and defprotocol definitions; both map to
// Class nodes in the graph.
func (e *elixirExtractor) findClasses(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) []Class {
	classes := []Class{}

	captures, err := runQuery(sess, LangElixir, "classes", elixirClassesQuery, root, code)
	if err != nil {
		slog.Warn("elixir classes query failed", "error", err)
		return classes
	}

	for _, g := range groupCaptures(captures, "class_def") {
		classType := g.text("class_type", code)
		if classType != "defmodule" && classType != "defprotocol" {
			continue
		}
		name := g.text("class_name", code)
		if name == "" {
			continue
		}

		kind := "module"
		if classType == "defprotocol" {
			kind = "protocol"
		}
		context, contextType, _ := e.enclosingContext(&g.Node, code, "defmodule")

		c := Class{
			Name:         name,
			LineNumber:   startLine(&g.Node),
			EndLine:      endLine(&g.Node),
			Bases:        []string{},
			Kind:         kind,
			Decorators:   []string{},
			Context:      context,
			ContextType:  contextType,
			Lang:         LangElixir,
			IsDependency: opts.IsDependency,
		}
		if opts.IndexSource {
			c.Source = getNodeText(&g.Node, code)
			c.Docstring = e.docstring(&g.Node, code)
		}
		classes = append(classes, c)
	}

	return classes
}

// findImports extracts alias, import, require and use statements.
func (e *elixirExtractor) findImports(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) []Import {
	imports := []Import{}

	captures, err := runQuery(sess, LangElixir, "imports", elixirImportsQuery, root, code)
	if err != nil {
		slog.Warn("elixir imports query failed", "error", err)
		return imports
	}

	for _, g := range groupCaptures(captures, "import_def") {
		importType := g.text("import_type", code)
		switch importType {
		case "alias", "import", "require", "use":
		default:
			continue
		}
		argsText := g.text("import_args", code)
		if argsText == "" {
			continue
		}

		// The module name is the first top-level argument; trailing
		// options like `only: [map: 2]` are dropped.
		parts := splitTopLevelArgs(argsText)
		moduleName := strings.TrimSpace(strings.Trim(argsText, "()"))
		if len(parts) > 0 {
			moduleName = parts[0]
		}
		if moduleName == "" {
			continue
		}

		imports = append(imports, Import{
			Name:           moduleName,
			FullImportName: getNodeText(&g.Node, code),
			ImportType:     importType,
			LineNumber:     startLine(&g.Node),
			Alias:          nil,
			Lang:           LangElixir,
			IsDependency:   opts.IsDependency,
		})
	}

	return imports
}

// findCalls extracts dot-notation calls (Mod.fun(...), var.fun(...)).
func (e *elixirExtractor) findCalls(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) []Call {
	calls := []Call{}

	captures, err := runQuery(sess, LangElixir, "calls", elixirCallsQuery, root, code)
	if err != nil {
		slog.Warn("elixir calls query failed", "error", err)
		return calls
	}

	for _, g := range groupCaptures(captures, "call_node") {
		method := g.text("method", code)
		if method == "" {
			continue
		}
		receiver := g.text("receiver", code)
		fullName := method
		if receiver != "" {
			fullName = receiver + "." + method
		}

		ctxName, ctxKind, ctxLine := e.enclosingContext(&g.Node, code, "defmodule", "def", "defp")
		classContext := (*string)(nil)
		if ctxKind != nil {
			switch *ctxKind {
			case "defmodule":
				classContext = ctxName
			case "def", "defp":
				classContext, _, _ = e.enclosingContext(&g.Node, code, "defmodule")
			}
		}

		calls = append(calls, Call{
			Name:       method,
			FullName:   fullName,
			LineNumber: startLine(&g.Node),
			Args:       splitTopLevelArgs(g.text("call_args", code)),
			Context: CallContext{
				Name: ctxName,
				Kind: ctxKind,
				Line: ctxLine,
			},
			ClassContext: classContext,
			Lang:         LangElixir,
			IsDependency: opts.IsDependency,
		})
	}

	return calls
}

// findVariables extracts module attributes (@name value).
func (e *elixirExtractor) findVariables(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) []Variable {
	variables := []Variable{}

	captures, err := runQuery(sess, LangElixir, "attributes", elixirAttributesQuery, root, code)
	if err != nil {
		slog.Warn("elixir attributes query failed", "error", err)
		return variables
	}

	for _, g := range groupCaptures(captures, "module_attr") {
		if !isAttributeOperator(&g.Node, code) {
			continue
		}
		name := g.text("attr_name", code)
		if name == "" {
			continue
		}
		context, _, _ := e.enclosingContext(&g.Node, code, "defmodule")

		variables = append(variables, Variable{
			Name:         "@" + name,
			LineNumber:   startLine(&g.Node),
			Value:        g.text("attr_value", code),
			Type:         "module_attribute",
			Context:      context,
			ClassContext: context,
			Lang:         LangElixir,
			IsDependency: opts.IsDependency,
		})
	}

	return variables
}

// PreScan maps defmodule and def/defp names to the files defining them,
// without a full structural parse. One bad file never aborts the batch.
func (e *elixirExtractor) PreScan(sess *Session, files []string) map[string][]string {
	out := map[string][]string{}

	for _, path := range files {
		code, err := readSourceLossy(path)
		if err != nil {
			slog.Warn("pre-scan read failed", "path", path, "error", err)
			continue
		}
		tree, err := sess.ParseSource(LangElixir, code)
		if err != nil {
			slog.Warn("pre-scan parse failed", "path", path, "error", err)
			continue
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		for _, name := range e.scanDefinitionNames(sess, tree.RootNode(), code) {
			out[name] = append(out[name], abs)
		}
		tree.Close()
	}

	return out
}

func (e *elixirExtractor) scanDefinitionNames(sess *Session, root *sitter.Node, code []byte) []string {
	var names []string

	if captures, err := runQuery(sess, LangElixir, "prescan_modules", elixirPreScanModulesQuery, root, code); err == nil {
		for _, g := range groupCaptures(captures, "decl") {
			if g.text("def_type", code) == "defmodule" {
				if name := g.text("name", code); name != "" {
					names = append(names, name)
				}
			}
		}
	}

	if captures, err := runQuery(sess, LangElixir, "prescan_defs", elixirPreScanDefsQuery, root, code); err == nil {
		for _, g := range groupCaptures(captures, "decl") {
			defType := g.text("def_type", code)
			if defType == "def" || defType == "defp" {
				if name := g.text("name", code); name != "" {
					names = append(names, name)
				}
			}
		}
	}

	return names
}

// enclosingContext walks ancestor call nodes until it finds one whose
// leading identifier is in types, and returns that definition's name,
// kind and line. Ancestor-only: a context can never reference a node
// defined after the current one was closed.
func (e *elixirExtractor) enclosingContext(node *sitter.Node, code []byte, types ...string) (*string, *string, *int) {
	wanted := map[string]bool{}
	for _, t := range types {
		wanted[t] = true
	}

	for curr := node.Parent(); curr != nil; curr = curr.Parent() {
		if curr.Kind() != "call" {
			continue
		}
		ident := firstChildOfKind(curr, "identifier")
		if ident == nil {
			continue
		}
		identText := getNodeText(ident, code)
		if !wanted[identText] {
			continue
		}

		name := definitionName(curr, code)
		if name != "" {
			line := startLine(curr)
			return &name, &identText, &line
		}
	}
	return nil, nil, nil
}

// definitionName extracts the defined name from a defmodule/def/defp
// call node: an alias argument for modules, the inner call's identifier
// for functions.
func definitionName(call *sitter.Node, code []byte) string {
	args := firstChildOfKind(call, "arguments")
	if args == nil {
		return ""
	}
	for i := uint(0); i < args.ChildCount(); i++ {
		child := args.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "alias":
			return getNodeText(child, code)
		case "call":
			if ident := firstChildOfKind(child, "identifier"); ident != nil {
				return getNodeText(ident, code)
			}
			return ""
		}
	}
	return ""
}

func firstChildOfKind(node *sitter.Node, kind string) *sitter.Node {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}

// complexity approximates cyclomatic complexity: 1 plus one per branching
// keyword and one per short-circuit boolean operator in the subtree.
func (e *elixirExtractor) complexity(node *sitter.Node, code []byte) int {
	count := 1

	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n == nil {
			return
		}
		switch {
		case elixirBranchKeywords[n.Kind()]:
			count++
		case n.Kind() == "identifier" && elixirBranchKeywords[getNodeText(n, code)]:
			count++
		case n.Kind() == "binary_operator":
			for i := uint(0); i < n.ChildCount(); i++ {
				child := n.Child(i)
				if child != nil && elixirBoolOperators[child.Kind()] {
					count++
					break
				}
			}
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			walk(n.Child(i))
		}
	}
	walk(node)

	return count
}

// docstring returns the nearest preceding @doc/@moduledoc attribute or
// comment, walking preceding siblings until a non-doc node is hit.
func (e *elixirExtractor) docstring(node *sitter.Node, code []byte) string {
	for prev := node.PrevSibling(); prev != nil; prev = prev.PrevSibling() {
		switch prev.Kind() {
		case "unary_operator":
			text := getNodeText(prev, code)
			if strings.HasPrefix(text, "@doc") || strings.HasPrefix(text, "@moduledoc") {
				return strings.TrimSpace(text)
			}
			// non-doc attribute: keep walking
		case "comment":
			return strings.TrimSpace(getNodeText(prev, code))
		default:
			return ""
		}
	}
	return ""
}

// isAttributeOperator reports whether a unary_operator node is an @
// module attribute rather than some other unary form.
func isAttributeOperator(node *sitter.Node, code []byte) bool {
	child := node.Child(0)
	return child != nil && getNodeText(child, code) == "@"
}
