package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jBackend mirrors investigation graphs into Neo4j. Writes are
// idempotent MERGEs with parameterized queries, batched with UNWIND.
type Neo4jBackend struct {
	driver          neo4j.DriverWithContext
	database        string
	investigationID string
}

// NewNeo4jBackend connects and verifies reachability
func NewNeo4jBackend(ctx context.Context, uri, username, password, database, investigationID string) (*Neo4jBackend, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	return &Neo4jBackend{driver: driver, database: database, investigationID: investigationID}, nil
}

// ExportGraph mirrors the full node and edge set
func (n *Neo4jBackend) ExportGraph(ctx context.Context, g *Graph) error {
	nodes := make([]map[string]any, 0, g.NodeCount())
	for _, e := range g.Nodes() {
		nodes = append(nodes, map[string]any{
			"id":            e.ID,
			"type":          string(e.Type),
			"confidence":    e.Confidence,
			"verification":  string(e.Verification),
			"sources":       e.Sources,
			"investigation": n.investigationID,
		})
	}
	if len(nodes) > 0 {
		_, err := neo4j.ExecuteQuery(ctx, n.driver,
			`UNWIND $nodes AS node
			 MERGE (e:Entity {id: node.id})
			 SET e.type = node.type,
			     e.confidence = node.confidence,
			     e.verification = node.verification,
			     e.sources = node.sources,
			     e.investigation = node.investigation`,
			map[string]any{"nodes": nodes},
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(n.database))
		if err != nil {
			return fmt.Errorf("failed to export nodes: %w", err)
		}
	}

	// Cypher cannot parameterize relationship types; group per type and
	// sanitize the identifier.
	byRel := make(map[string][]map[string]any)
	for _, e := range g.Edges() {
		rel := sanitizeRelType(string(e.Rel))
		byRel[rel] = append(byRel[rel], map[string]any{
			"src":        e.Src,
			"dst":        e.Dst,
			"class":      string(e.Class),
			"strength":   e.Strength,
			"confidence": e.Confidence,
		})
	}
	for rel, edges := range byRel {
		query := fmt.Sprintf(
			`UNWIND $edges AS edge
			 MATCH (s:Entity {id: edge.src}), (d:Entity {id: edge.dst})
			 MERGE (s)-[r:%s]->(d)
			 SET r.class = edge.class,
			     r.strength = edge.strength,
			     r.confidence = edge.confidence`, rel)
		_, err := neo4j.ExecuteQuery(ctx, n.driver, query,
			map[string]any{"edges": edges},
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(n.database))
		if err != nil {
			return fmt.Errorf("failed to export %s edges: %w", rel, err)
		}
	}
	return nil
}

// Clear removes every node and edge for an investigation
func (n *Neo4jBackend) Clear(ctx context.Context, investigationID string) error {
	_, err := neo4j.ExecuteQuery(ctx, n.driver,
		`MATCH (e:Entity {investigation: $investigation}) DETACH DELETE e`,
		map[string]any{"investigation": investigationID},
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase(n.database))
	if err != nil {
		return fmt.Errorf("failed to clear investigation graph: %w", err)
	}
	return nil
}

// Close releases the driver
func (n *Neo4jBackend) Close(ctx context.Context) error {
	return n.driver.Close(ctx)
}

// sanitizeRelType uppercases and strips anything that is not a legal
// relationship-type character, preventing Cypher injection through the
// type position.
func sanitizeRelType(rel string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(rel) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			sb.WriteRune(r)
		}
	}
	if sb.Len() == 0 {
		return "RELATED"
	}
	return sb.String()
}
