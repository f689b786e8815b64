package treesitter

import (
	"log/slog"
	"path/filepath"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// HEEx templates have no function definitions of their own; component
// usages map to Function records and EEx expressions to Variable
// records so templates participate in the same graph schema.

const (
	heexComponentsQuery = `
        (component) @component
    `
	heexTagsQuery = `
        (tag) @tag
    `
	heexDirectivesQuery = `
        (directive) @directive
    `
	heexSlotsQuery = `
        (slot) @slot
    `
	heexComponentNamesQuery = `
        (component_name) @comp_name
    `
)

type heexExtractor struct{}

func init() {
	RegisterExtractor(&heexExtractor{})
}

func (e *heexExtractor) Lang() string { return LangHEEx }

func (e *heexExtractor) Extensions() []string { return []string{".heex"} }

func (e *heexExtractor) Parse(sess *Session, path string, opts ParseOptions) (*FileRecord, error) {
	code, err := readSourceLossy(path)
	if err != nil {
		return nil, err
	}
	tree, err := sess.ParseSource(LangHEEx, code)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	root := tree.RootNode()

	record := &FileRecord{
		Path:          path,
		Functions:     e.findComponents(sess, root, code, opts),
		Classes:       []Class{},
		Variables:     e.findDirectives(sess, root, code, opts),
		Imports:       e.findImports(sess, root, code, opts),
		FunctionCalls: []Call{},
		Tags:          e.findTags(sess, root, code, opts),
		Slots:         e.findSlots(sess, root, code, opts),
		IsDependency:  opts.IsDependency,
		Lang:          LangHEEx,
	}
	return record, nil
}

// findComponents extracts component usages (<.button>, <MyAppWeb.CoreComponents.icon>).
// Local component names keep their leading dot.
func (e *heexExtractor) findComponents(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) []Function {
	functions := []Function{}

	captures, err := runQuery(sess, LangHEEx, "components", heexComponentsQuery, root, code)
	if err != nil {
		slog.Warn("heex components query failed", "error", err)
		return functions
	}

	for _, cap := range captures {
		if cap.Name != "component" {
			continue
		}
		node := cap.Node
		name := componentName(&node, code)
		if name == "" {
			continue
		}
		fn := Function{
			Name:         name,
			LineNumber:   startLine(&node),
			EndLine:      endLine(&node),
			Args:         []string{},
			Visibility:   "public",
			Complexity:   1,
			Lang:         LangHEEx,
			IsDependency: opts.IsDependency,
		}
		if opts.IndexSource {
			fn.Source = getNodeText(&node, code)
		}
		functions = append(functions, fn)
	}

	return functions
}

func (e *heexExtractor) findTags(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) []TemplateElement {
	tags := []TemplateElement{}

	captures, err := runQuery(sess, LangHEEx, "tags", heexTagsQuery, root, code)
	if err != nil {
		slog.Warn("heex tags query failed", "error", err)
		return tags
	}

	for _, cap := range captures {
		if cap.Name != "tag" {
			continue
		}
		node := cap.Node
		name := childGrandchildText(&node, "start_tag", "tag_name", code)
		if name == "" {
			continue
		}
		el := TemplateElement{
			Name:         name,
			LineNumber:   startLine(&node),
			EndLine:      endLine(&node),
			Lang:         LangHEEx,
			IsDependency: opts.IsDependency,
		}
		if opts.IndexSource {
			el.Source = getNodeText(&node, code)
		}
		tags = append(tags, el)
	}

	return tags
}

// findDirectives extracts EEx expressions ({@user.name}, <%= ... %>).
func (e *heexExtractor) findDirectives(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) []Variable {
	directives := []Variable{}

	captures, err := runQuery(sess, LangHEEx, "directives", heexDirectivesQuery, root, code)
	if err != nil {
		slog.Warn("heex directives query failed", "error", err)
		return directives
	}

	for _, cap := range captures {
		if cap.Name != "directive" {
			continue
		}
		node := cap.Node
		directives = append(directives, Variable{
			Name:         strings.TrimSpace(getNodeText(&node, code)),
			LineNumber:   startLine(&node),
			EndLine:      endLine(&node),
			Type:         "directive",
			Lang:         LangHEEx,
			IsDependency: opts.IsDependency,
		})
	}

	return directives
}

func (e *heexExtractor) findSlots(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) []TemplateElement {
	slots := []TemplateElement{}

	captures, err := runQuery(sess, LangHEEx, "slots", heexSlotsQuery, root, code)
	if err != nil {
		slog.Warn("heex slots query failed", "error", err)
		return slots
	}

	for _, cap := range captures {
		if cap.Name != "slot" {
			continue
		}
		node := cap.Node
		name := childGrandchildText(&node, "start_slot", "slot_name", code)
		if name == "" {
			continue
		}
		el := TemplateElement{
			Name:         name,
			LineNumber:   startLine(&node),
			EndLine:      endLine(&node),
			Lang:         LangHEEx,
			IsDependency: opts.IsDependency,
		}
		if opts.IndexSource {
			el.Source = getNodeText(&node, code)
		}
		slots = append(slots, el)
	}

	return slots
}

// findImports derives imports from module-qualified component references:
// <MyAppWeb.CoreComponents.icon> implies the template depends on
// MyAppWeb.CoreComponents. Deduplicated per module, first occurrence wins.
func (e *heexExtractor) findImports(sess *Session, root *sitter.Node, code []byte, opts ParseOptions) []Import {
	imports := []Import{}

	captures, err := runQuery(sess, LangHEEx, "component_names", heexComponentNamesQuery, root, code)
	if err != nil {
		slog.Warn("heex component names query failed", "error", err)
		return imports
	}

	seen := map[string]bool{}
	for _, cap := range captures {
		if cap.Name != "comp_name" {
			continue
		}
		node := cap.Node
		text := getNodeText(&node, code)
		if !strings.Contains(text, ".") || strings.HasPrefix(text, ".") {
			continue
		}
		moduleName := text[:strings.LastIndex(text, ".")]
		if seen[moduleName] {
			continue
		}
		seen[moduleName] = true

		imports = append(imports, Import{
			Name:           moduleName,
			FullImportName: text,
			LineNumber:     startLine(&node),
			Alias:          nil,
			Lang:           LangHEEx,
			IsDependency:   opts.IsDependency,
		})
	}

	return imports
}

// PreScan maps component names to the template files referencing them.
func (e *heexExtractor) PreScan(sess *Session, files []string) map[string][]string {
	out := map[string][]string{}

	for _, path := range files {
		code, err := readSourceLossy(path)
		if err != nil {
			slog.Warn("pre-scan read failed", "path", path, "error", err)
			continue
		}
		tree, err := sess.ParseSource(LangHEEx, code)
		if err != nil {
			slog.Warn("pre-scan parse failed", "path", path, "error", err)
			continue
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		captures, err := runQuery(sess, LangHEEx, "component_names", heexComponentNamesQuery, tree.RootNode(), code)
		if err != nil {
			slog.Warn("pre-scan query failed", "path", path, "error", err)
			tree.Close()
			continue
		}
		for _, cap := range captures {
			if cap.Name != "comp_name" {
				continue
			}
			node := cap.Node
			if name := getNodeText(&node, code); name != "" {
				out[name] = append(out[name], abs)
			}
		}
		tree.Close()
	}

	return out
}

// componentName finds the component_name under a component's
// start_component or self_closing_component child.
func componentName(node *sitter.Node, code []byte) string {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if child.Kind() == "start_component" || child.Kind() == "self_closing_component" {
			if gc := firstChildOfKind(child, "component_name"); gc != nil {
				return getNodeText(gc, code)
			}
			return ""
		}
	}
	return ""
}

// childGrandchildText returns the text of the first grandchild of kind
// gcKind under the first child of kind childKind.
func childGrandchildText(node *sitter.Node, childKind, gcKind string, code []byte) string {
	child := firstChildOfKind(node, childKind)
	if child == nil {
		return ""
	}
	gc := firstChildOfKind(child, gcKind)
	if gc == nil {
		return ""
	}
	return getNodeText(gc, code)
}
