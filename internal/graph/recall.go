package graph

// MatchKind says why a node appears in a recall result.
type MatchKind string

const (
	// MatchDirect marks a node whose tags intersect the query tags.
	MatchDirect MatchKind = "direct"
	// MatchRelated marks a node one connection hop away from a direct match.
	MatchRelated MatchKind = "related"
)

// Evidence records one connection that caused a related node to surface:
// the connection's type and the id of the direct match on its other end.
type Evidence struct {
	ConnType  string `json:"type"`
	MatchedID string `json:"matched_id"`
}

// RecallResult is one entry of a recall: the node, why it matched, and (for
// related matches) the connections that pulled it in. Direct matches carry
// no evidence.
type RecallResult struct {
	Node     Node
	Kind     MatchKind
	Evidence []Evidence
}

// Recall returns nodes whose tags intersect queryTags (direct matches, in
// node-insertion order) followed by nodes reachable from a direct match
// through one connection in either direction (related matches, in the order
// their first connection was encountered). A node appears at most once; a
// related node reachable through several connections collects all of them
// as evidence under its single entry. Empty queryTags yields an empty
// result.
func (s *Store) Recall(queryTags []string) []RecallResult {
	if len(queryTags) == 0 {
		return nil
	}

	querySet := make(map[string]struct{}, len(queryTags))
	for _, t := range queryTags {
		querySet[t] = struct{}{}
	}

	var results []RecallResult
	directIDs := make(map[string]struct{})
	for _, n := range s.nodes {
		if nodeHasAnyTag(n, querySet) {
			results = append(results, RecallResult{Node: n, Kind: MatchDirect})
			directIDs[n.ID] = struct{}{}
		}
	}
	if len(directIDs) == 0 {
		return nil
	}

	// One-hop expansion. Traversal treats a connection symmetrically, but
	// the evidence keeps the connection's original type and names the direct
	// match it reached through.
	related := make(map[string][]Evidence)
	var relatedOrder []string
	collect := func(nodeID string, ev Evidence) {
		if _, have := related[nodeID]; !have {
			relatedOrder = append(relatedOrder, nodeID)
		}
		related[nodeID] = append(related[nodeID], ev)
	}
	for _, c := range s.connections {
		_, fromDirect := directIDs[c.FromID]
		_, toDirect := directIDs[c.ToID]
		switch {
		case fromDirect && !toDirect:
			collect(c.ToID, Evidence{ConnType: c.Type, MatchedID: c.FromID})
		case toDirect && !fromDirect:
			collect(c.FromID, Evidence{ConnType: c.Type, MatchedID: c.ToID})
		}
	}

	for _, id := range relatedOrder {
		n, ok := s.nodeByID(id)
		if !ok {
			// Dangling endpoint from a corrupted load; nothing to emit.
			continue
		}
		results = append(results, RecallResult{Node: n, Kind: MatchRelated, Evidence: related[id]})
	}
	return results
}

func (s *Store) nodeByID(id string) (Node, bool) {
	for _, n := range s.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}
