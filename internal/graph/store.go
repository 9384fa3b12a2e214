// Package graph provides the in-process memory graph for Taproot: discrete
// memory nodes, typed directed connections between them, tag-based recall
// with one-hop relation expansion, and cascading forget.
//
// A Store is a plain in-memory data structure with no locking; callers that
// embed it in a concurrent host must serialize access externally. Persistence
// is owned by internal/persist — after any mutation the caller is expected to
// flush the store to disk.
package graph

import (
	"sort"
	"strconv"
	"strings"
)

// Node is a single memory entry. Nodes are never mutated in place; they are
// created by AddNode and destroyed by ForgetByPatternOrTags.
type Node struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// Connection is a directed, typed edge between two nodes. Multiple
// connections between the same pair are allowed when their types differ;
// the store does not deduplicate.
type Connection struct {
	FromID string `json:"from_id"`
	ToID   string `json:"to_id"`
	Type   string `json:"type"`
}

// Store owns the node and connection collections. Every connection's
// endpoints exist in the node collection at all times: AddConnection rejects
// dangling references and ForgetByPatternOrTags cascades removal.
type Store struct {
	nodes       []Node
	connections []Connection
	ids         map[string]struct{}
}

// NewStore returns an empty graph store.
func NewStore() *Store {
	return &Store{ids: make(map[string]struct{})}
}

// Restore builds a store directly from previously persisted collections.
// Connections are taken as-is, without re-checking referential integrity: a
// corrupted document can restore a graph with dangling connections, which is
// the documented load-time behavior, not an invitation to use this for
// ordinary mutation.
func Restore(nodes []Node, connections []Connection) *Store {
	s := NewStore()
	for _, n := range nodes {
		s.nodes = append(s.nodes, n)
		s.ids[n.ID] = struct{}{}
	}
	s.connections = append(s.connections, connections...)
	return s
}

// AddNode appends a new node. The id is caller-assigned and must be unique;
// a collision returns DuplicateIDError and leaves the store unchanged.
func (s *Store) AddNode(id, content string, tags []string) error {
	if _, exists := s.ids[id]; exists {
		return &DuplicateIDError{ID: id}
	}
	s.nodes = append(s.nodes, Node{ID: id, Content: content, Tags: dedupeTags(tags)})
	s.ids[id] = struct{}{}
	return nil
}

// AddConnection appends a directed typed connection. Both endpoints must
// already exist; otherwise DanglingReferenceError is returned and the store
// is unchanged.
func (s *Store) AddConnection(fromID, toID, connType string) error {
	_, fromOK := s.ids[fromID]
	_, toOK := s.ids[toID]
	if !fromOK || !toOK {
		return &DanglingReferenceError{FromID: fromID, ToID: toID}
	}
	s.connections = append(s.connections, Connection{FromID: fromID, ToID: toID, Type: connType})
	return nil
}

// ListTags returns the union of all nodes' tags, sorted. Empty store yields
// an empty list.
func (s *Store) ListTags() []string {
	seen := make(map[string]struct{})
	for _, n := range s.nodes {
		for _, t := range n.Tags {
			seen[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	return tags
}

// ForgetByPatternOrTags removes every node whose content contains pattern as
// a case-insensitive substring (if pattern is non-empty) or whose tags
// intersect tags (if non-empty). Connections touching a removed node are
// removed with it, regardless of the other endpoint's survival. Returns the
// number of nodes removed. Callers must supply at least one criterion; with
// both empty this is a no-op.
func (s *Store) ForgetByPatternOrTags(pattern string, tags []string) int {
	if pattern == "" && len(tags) == 0 {
		return 0
	}

	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}
	lowered := strings.ToLower(pattern)

	// Two-phase: stage the full removal set, then rebuild both collections,
	// so a forget never leaves a half-cascaded store.
	doomed := make(map[string]struct{})
	for _, n := range s.nodes {
		if pattern != "" && strings.Contains(strings.ToLower(n.Content), lowered) {
			doomed[n.ID] = struct{}{}
			continue
		}
		if len(tagSet) > 0 && nodeHasAnyTag(n, tagSet) {
			doomed[n.ID] = struct{}{}
		}
	}
	if len(doomed) == 0 {
		return 0
	}

	kept := s.nodes[:0]
	for _, n := range s.nodes {
		if _, gone := doomed[n.ID]; !gone {
			kept = append(kept, n)
		}
	}
	s.nodes = kept

	keptConns := s.connections[:0]
	for _, c := range s.connections {
		_, fromGone := doomed[c.FromID]
		_, toGone := doomed[c.ToID]
		if !fromGone && !toGone {
			keptConns = append(keptConns, c)
		}
	}
	s.connections = keptConns

	for id := range doomed {
		delete(s.ids, id)
	}
	return len(doomed)
}

// Disconnect removes every connection matching the exact ordered pair
// (fromID, toID), further filtered by connType when non-empty. Direction is
// significant: the reverse pair is untouched. Returns the count removed.
func (s *Store) Disconnect(fromID, toID, connType string) int {
	removed := 0
	kept := s.connections[:0]
	for _, c := range s.connections {
		if c.FromID == fromID && c.ToID == toID && (connType == "" || c.Type == connType) {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	s.connections = kept
	return removed
}

// Nodes returns all nodes in insertion order.
func (s *Store) Nodes() []Node {
	return s.nodes
}

// ListConnections returns all connections in insertion order.
func (s *Store) ListConnections() []Connection {
	return s.connections
}

// Size returns the node count.
func (s *Store) Size() int {
	return len(s.nodes)
}

// NextID returns the default id for a new node: the decimal node count,
// bumped past any id already taken so the uniqueness invariant holds even
// after forgets have left gaps.
func (s *Store) NextID() string {
	n := len(s.nodes)
	for {
		id := strconv.Itoa(n)
		if _, taken := s.ids[id]; !taken {
			return id
		}
		n++
	}
}

// Contains reports whether a node with the given id exists.
func (s *Store) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

func nodeHasAnyTag(n Node, tagSet map[string]struct{}) bool {
	for _, t := range n.Tags {
		if _, ok := tagSet[t]; ok {
			return true
		}
	}
	return false
}

// dedupeTags drops duplicate tags while preserving first-seen order. Always
// returns a non-nil slice so an untagged node serializes as an empty array.
func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
