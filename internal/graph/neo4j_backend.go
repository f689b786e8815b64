package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jBackend implements Backend for Neo4j using Cypher.
// Stateless design: a context is passed per request, the driver holds
// the only long-lived connection state.
type Neo4jBackend struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jBackend creates a Neo4j backend and verifies connectivity.
func NewNeo4jBackend(ctx context.Context, uri, username, password, database string) (*Neo4jBackend, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create Neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to Neo4j: %w", err)
	}

	return &Neo4jBackend{
		driver:   driver,
		database: database,
	}, nil
}

// UpsertNode merges a single node using an idempotent MERGE.
func (n *Neo4jBackend) UpsertNode(ctx context.Context, node Node) error {
	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeNode(node.Label, node.Key, node.KeyValue, node.Properties)
	if err != nil {
		return fmt.Errorf("failed to build node query: %w", err)
	}

	_, err = neo4j.ExecuteQuery(ctx, n.driver, cypher,
		builder.Params(),
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return fmt.Errorf("failed to upsert %s node %v: %w", node.Label, node.KeyValue, err)
	}
	return nil
}

// UpsertNodes merges multiple nodes in a single transaction.
func (n *Neo4jBackend) UpsertNodes(ctx context.Context, nodes []Node) error {
	if len(nodes) == 0 {
		return nil
	}

	queries := make([]QueryWithParams, 0, len(nodes))
	for i, node := range nodes {
		builder := NewCypherBuilder()
		cypher, err := builder.BuildMergeNode(node.Label, node.Key, node.KeyValue, node.Properties)
		if err != nil {
			return fmt.Errorf("failed to build node query %d: %w", i, err)
		}
		queries = append(queries, QueryWithParams{Query: cypher, Params: builder.Params()})
	}
	return n.ExecuteBatch(ctx, queries)
}

// UpsertEdge merges a single edge between two existing nodes.
func (n *Neo4jBackend) UpsertEdge(ctx context.Context, edge Edge) error {
	builder := NewCypherBuilder()
	cypher, err := builder.BuildMergeEdge(
		edge.From.Label, edge.From.Key, edge.From.Value,
		edge.To.Label, edge.To.Key, edge.To.Value,
		edge.Label,
		edge.Properties,
	)
	if err != nil {
		return fmt.Errorf("failed to build edge query: %w", err)
	}

	result, err := neo4j.ExecuteQuery(ctx, n.driver, cypher,
		builder.Params(),
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return fmt.Errorf("failed to upsert edge %s: from=%s:%v to=%s:%v: %w",
			edge.Label, edge.From.Label, edge.From.Value, edge.To.Label, edge.To.Value, err)
	}

	if len(result.Records) == 0 {
		return fmt.Errorf("edge upsert matched no nodes: %s: from=%s:%v to=%s:%v",
			edge.Label, edge.From.Label, edge.From.Value, edge.To.Label, edge.To.Value)
	}
	return nil
}

// UpsertEdges merges multiple edges in a single transaction.
func (n *Neo4jBackend) UpsertEdges(ctx context.Context, edges []Edge) error {
	if len(edges) == 0 {
		return nil
	}

	queries := make([]QueryWithParams, 0, len(edges))
	for i, edge := range edges {
		builder := NewCypherBuilder()
		cypher, err := builder.BuildMergeEdge(
			edge.From.Label, edge.From.Key, edge.From.Value,
			edge.To.Label, edge.To.Key, edge.To.Value,
			edge.Label,
			edge.Properties,
		)
		if err != nil {
			return fmt.Errorf("failed to build edge query %d: %w", i, err)
		}
		queries = append(queries, QueryWithParams{Query: cypher, Params: builder.Params()})
	}
	return n.ExecuteBatch(ctx, queries)
}

// ExecuteBatch executes parameterized queries in a single write
// transaction; the session is released on every exit path.
func (n *Neo4jBackend) ExecuteBatch(ctx context.Context, queries []QueryWithParams) error {
	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: n.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for i, q := range queries {
			if _, err := tx.Run(ctx, q.Query, q.Params); err != nil {
				return nil, fmt.Errorf("batch command %d failed: %w", i, err)
			}
		}
		return nil, nil
	})
	return err
}

// Query executes a read query and returns one map per record.
// Routed to readers, so it must never carry write clauses.
func (n *Neo4jBackend) Query(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return n.run(ctx, query, params, neo4j.ExecuteQueryWithReadersRouting())
}

// Write executes a write query and returns one map per record. Unlike
// Query it uses writer routing, for MERGE statements that need their
// result rows back.
func (n *Neo4jBackend) Write(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	return n.run(ctx, query, params)
}

func (n *Neo4jBackend) run(ctx context.Context, query string, params map[string]any, extra ...neo4j.ExecuteQueryConfigurationOption) ([]map[string]any, error) {
	opts := append([]neo4j.ExecuteQueryConfigurationOption{
		neo4j.ExecuteQueryWithDatabase(n.database),
	}, extra...)

	result, err := neo4j.ExecuteQuery(ctx, n.driver, query,
		params,
		neo4j.EagerResultTransformer,
		opts...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	records := make([]map[string]any, 0, len(result.Records))
	for _, rec := range result.Records {
		row := make(map[string]any, len(rec.Keys))
		for _, key := range rec.Keys {
			if v, ok := rec.Get(key); ok {
				row[key] = v
			}
		}
		records = append(records, row)
	}
	return records, nil
}

// Close closes the Neo4j driver connection
func (n *Neo4jBackend) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}
