package graph

import "fmt"

// DuplicateIDError reports an AddNode call whose id is already present.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("node id %q already exists", e.ID)
}

// DanglingReferenceError reports an AddConnection call where one or both
// endpoints do not exist in the store. The store is left unmodified.
type DanglingReferenceError struct {
	FromID string
	ToID   string
}

func (e *DanglingReferenceError) Error() string {
	return fmt.Sprintf("connection %s -> %s references a missing node", e.FromID, e.ToID)
}
