package graph

import (
	"fmt"
	"regexp"
	"strings"
)

// CypherBuilder builds parameterized Cypher queries. All values go
// through parameters; labels and property keys are validated against a
// strict identifier pattern to prevent Cypher injection.
type CypherBuilder struct {
	params  map[string]any
	counter int
}

// NewCypherBuilder creates a query builder
func NewCypherBuilder() *CypherBuilder {
	return &CypherBuilder{
		params: make(map[string]any),
	}
}

// AddParam adds a parameter and returns its placeholder
func (b *CypherBuilder) AddParam(value any) string {
	paramName := fmt.Sprintf("p%d", b.counter)
	b.counter++
	b.params[paramName] = value
	return "$" + paramName
}

// Params returns all parameters for the query
func (b *CypherBuilder) Params() map[string]any {
	return b.params
}

// BuildMergeNode creates a MERGE query keyed on uniqueKey, setting the
// remaining properties after the merge.
func (b *CypherBuilder) BuildMergeNode(label string, uniqueKey string, uniqueValue any, properties map[string]any) (string, error) {
	if !isValidIdentifier(label) {
		return "", fmt.Errorf("invalid node label: %s (must be alphanumeric + underscore)", label)
	}
	if !isValidIdentifier(uniqueKey) {
		return "", fmt.Errorf("invalid unique key: %s (must be alphanumeric + underscore)", uniqueKey)
	}

	uniqueParam := b.AddParam(uniqueValue)

	setClauses := []string{}
	for key, value := range properties {
		if key == uniqueKey {
			continue
		}
		if !isValidIdentifier(key) {
			return "", fmt.Errorf("invalid property key: %s (must be alphanumeric + underscore)", key)
		}
		paramName := b.AddParam(value)
		setClauses = append(setClauses, fmt.Sprintf("n.%s = %s", key, paramName))
	}

	if len(setClauses) == 0 {
		return fmt.Sprintf(
			"MERGE (n:%s {%s: %s}) RETURN elementId(n) as id",
			label, uniqueKey, uniqueParam,
		), nil
	}

	return fmt.Sprintf(
		"MERGE (n:%s {%s: %s}) SET %s RETURN elementId(n) as id",
		label,
		uniqueKey,
		uniqueParam,
		strings.Join(setClauses, ", "),
	), nil
}

// BuildMergeEdge creates a MERGE query for an edge between two existing
// nodes matched by their unique keys.
func (b *CypherBuilder) BuildMergeEdge(
	fromLabel, fromKey string, fromValue any,
	toLabel, toKey string, toValue any,
	edgeLabel string,
	properties map[string]any,
) (string, error) {
	if !isValidIdentifier(fromLabel) {
		return "", fmt.Errorf("invalid from label: %s", fromLabel)
	}
	if !isValidIdentifier(fromKey) {
		return "", fmt.Errorf("invalid from key: %s", fromKey)
	}
	if !isValidIdentifier(toLabel) {
		return "", fmt.Errorf("invalid to label: %s", toLabel)
	}
	if !isValidIdentifier(toKey) {
		return "", fmt.Errorf("invalid to key: %s", toKey)
	}
	if !isValidIdentifier(edgeLabel) {
		return "", fmt.Errorf("invalid edge label: %s", edgeLabel)
	}

	fromParam := b.AddParam(fromValue)
	toParam := b.AddParam(toValue)

	var propsStr string
	if len(properties) > 0 {
		propClauses := []string{}
		for key, value := range properties {
			if !isValidIdentifier(key) {
				return "", fmt.Errorf("invalid edge property key: %s", key)
			}
			paramName := b.AddParam(value)
			propClauses = append(propClauses, fmt.Sprintf("r.%s = %s", key, paramName))
		}
		propsStr = "SET " + strings.Join(propClauses, ", ")
	}

	return fmt.Sprintf(
		"MATCH (from:%s {%s: %s}) MATCH (to:%s {%s: %s}) MERGE (from)-[r:%s]->(to) %s RETURN from, to",
		fromLabel, fromKey, fromParam,
		toLabel, toKey, toParam,
		edgeLabel,
		propsStr,
	), nil
}

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// isValidIdentifier validates that a string can be safely interpolated
// as a Cypher label or property key.
func isValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidIdentifier reports whether s is safe to interpolate as a Cypher
// label or property key. Callers building raw queries must check every
// interpolated identifier with this.
func ValidIdentifier(s string) bool {
	return isValidIdentifier(s)
}
