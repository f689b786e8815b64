package scip

import (
	"strings"

	scipproto "github.com/sourcegraph/scip/bindings/go/scip"
)

// fallbackLabel is the generic node label for symbols whose kind is
// absent and whose symbol string carries no recognizable sigil.
const fallbackLabel = "Symbol"

// kindToLabel maps precise-index symbol kinds to graph node labels.
var kindToLabel = map[scipproto.SymbolInformation_Kind]string{
	scipproto.SymbolInformation_Class:       "Class",
	scipproto.SymbolInformation_Method:      "Function",
	scipproto.SymbolInformation_Function:    "Function",
	scipproto.SymbolInformation_Constructor: "Function",
	scipproto.SymbolInformation_Variable:    "Variable",
	scipproto.SymbolInformation_Interface:   "Interface",
	scipproto.SymbolInformation_Struct:      "Struct",
	scipproto.SymbolInformation_Enum:        "Enum",
	scipproto.SymbolInformation_Package:     "Module",
	scipproto.SymbolInformation_Module:      "Module",
	scipproto.SymbolInformation_Namespace:   "Module",
}

// labelForSymbol resolves a graph label from the symbol's kind, falling
// back to syntactic inference from the symbol string when the kind is
// missing or maps to the generic label.
func labelForSymbol(info *scipproto.SymbolInformation, symbol string) string {
	if info != nil {
		if label, ok := kindToLabel[info.Kind]; ok {
			return label
		}
	}
	return inferLabelFromSymbol(symbol)
}

// inferLabelFromSymbol guesses a label from the symbol's trailing
// descriptor sigil: "()." / "()" function, "#" class, "/" module.
func inferLabelFromSymbol(symbol string) string {
	switch {
	case strings.HasSuffix(symbol, ").") || strings.HasSuffix(symbol, "()"):
		return "Function"
	case strings.HasSuffix(symbol, "#"):
		return "Class"
	case strings.HasSuffix(symbol, "/"):
		return "Module"
	}
	return fallbackLabel
}

// extractName returns the human-readable name for a symbol: the index's
// display name when present, otherwise the last descriptor segment of
// the symbol string.
func extractName(info *scipproto.SymbolInformation, symbol string) string {
	if info != nil && info.DisplayName != "" {
		return info.DisplayName
	}

	clean := strings.NewReplacer(".", "/", "#", "/", "()", "").Replace(symbol)
	parts := strings.Split(clean, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return symbol
}

// isLocalSymbol reports whether a symbol is document-local. Local
// symbols never become graph nodes.
func isLocalSymbol(symbol string) bool {
	return strings.HasPrefix(symbol, "local ")
}
