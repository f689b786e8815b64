package treesitter

import (
	"bytes"
	"os"
	"strings"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// getNodeText extracts text from a node using byte offsets
func getNodeText(node *sitter.Node, code []byte) string {
	if node == nil {
		return ""
	}
	start := node.StartByte()
	end := node.EndByte()
	if int(end) > len(code) {
		end = uint(len(code))
	}
	if start > end {
		return ""
	}
	return string(code[start:end])
}

// startLine returns the 1-based line a node starts on.
func startLine(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// endLine returns the 1-based line a node ends on.
func endLine(node *sitter.Node) int {
	return int(node.EndPosition().Row) + 1
}

// readSourceLossy reads a file, replacing invalid UTF-8 sequences rather
// than failing on them. Only a hard read failure is returned.
func readSourceLossy(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return bytes.ToValidUTF8(data, []byte("�")), nil
}

// splitTopLevelArgs splits a comma-separated argument string at top-level
// commas only, tracking nesting depth across (), {} and [] so nested
// calls and collections are never split. Surrounding parentheses are
// stripped before splitting.
func splitTopLevelArgs(argsText string) []string {
	argsText = strings.TrimSpace(argsText)
	argsText = strings.TrimPrefix(argsText, "(")
	argsText = strings.TrimSuffix(argsText, ")")
	if strings.TrimSpace(argsText) == "" {
		return []string{}
	}

	args := []string{}
	depth := 0
	var current strings.Builder
	for _, ch := range argsText {
		switch ch {
		case '(', '{', '[':
			depth++
			current.WriteRune(ch)
		case ')', '}', ']':
			depth--
			current.WriteRune(ch)
		case ',':
			if depth == 0 {
				if arg := strings.TrimSpace(current.String()); arg != "" {
					args = append(args, arg)
				}
				current.Reset()
			} else {
				current.WriteRune(ch)
			}
		default:
			current.WriteRune(ch)
		}
	}
	if arg := strings.TrimSpace(current.String()); arg != "" {
		args = append(args, arg)
	}
	return args
}
