package graph

import "context"

// Backend defines the upsert contract for the property graph store.
// Every write is a merge keyed by a stable identity, so repeated or
// concurrent writes for the same entity are idempotent.
type Backend interface {
	// UpsertNode merges a single node by its unique key
	UpsertNode(ctx context.Context, node Node) error

	// UpsertNodes merges multiple nodes in one transaction
	UpsertNodes(ctx context.Context, nodes []Node) error

	// UpsertEdge merges a single edge between two existing nodes
	UpsertEdge(ctx context.Context, edge Edge) error

	// UpsertEdges merges multiple edges in one transaction
	UpsertEdges(ctx context.Context, edges []Edge) error

	// ExecuteBatch runs parameterized queries in a single transaction
	ExecuteBatch(ctx context.Context, queries []QueryWithParams) error

	// Query executes a read query and returns its records
	Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// Write executes a write query that also returns records
	Write(ctx context.Context, query string, params map[string]any) ([]map[string]any, error)

	// Close closes the backend connection
	Close(ctx context.Context) error
}

// NodeRef identifies an existing node by label and unique key
type NodeRef struct {
	Label string // Node type: "File", "Function", "Class", etc.
	Key   string // Unique property name, e.g. "unique_id"
	Value any    // Unique property value
}

// Node represents a node to be merged into the graph
type Node struct {
	Label      string         // Node type: "File", "Function", "Class", etc.
	Key        string         // Unique property name used in the MERGE clause
	KeyValue   any            // Unique property value
	Properties map[string]any // Remaining node properties, SET after MERGE
}

// Edge represents an edge to be merged between two existing nodes
type Edge struct {
	Label      string // Edge type: "CONTAINS", "CALLS", "IMPORTS", etc.
	From       NodeRef
	To         NodeRef
	Properties map[string]any // Edge properties, SET after MERGE
}

// QueryWithParams pairs a Cypher query with its parameters
type QueryWithParams struct {
	Query  string
	Params map[string]any
}

// UniqueKey returns the unique identifier property for each node label.
// Entity nodes use a composite unique_id (path:name:line); files and
// directories are keyed by path; precise symbols by their opaque id.
func UniqueKey(label string) string {
	switch label {
	case "File":
		return "path"
	case "Directory":
		return "path"
	case "Repository":
		return "name"
	}
	return "unique_id"
}
