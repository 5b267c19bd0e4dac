// Package index defines the boundary between the synchroniser and a search
// index engine: mutation actions, field mappings and the Engine interface.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrIndexNotPrepared is returned for actions targeting an index whose mapping
// was never ensured.
var ErrIndexNotPrepared = errors.New("index not prepared")

// Engine is a search index engine that updaters write into.
type Engine interface {
	// Name returns the engine name used in logs and health messages.
	Name() string

	// EnsureMapping creates the index for (indexName, docType) if needed and
	// applies the field mapping to it.
	EnsureMapping(ctx context.Context, indexName, docType string, mapping Mapping) error

	// Apply executes actions in order. Later actions for the same document id
	// win. A non-nil error means the batch could not be submitted at all;
	// per-action failures are reported in the result.
	Apply(ctx context.Context, actions []Action) (*BulkResult, error)

	// LatestDocument returns the stored fields of the document that sorts
	// last by sortFields, all descending. It returns nil when the index is
	// empty.
	LatestDocument(ctx context.Context, indexName, docType string, sortFields ...string) (map[string]any, error)

	// Health checks that the engine is reachable.
	Health(ctx context.Context) error

	// Close releases engine resources.
	Close() error
}

// ActionType is the kind of mutation an Action performs.
type ActionType string

const (
	// ActionUpsert merges the document into any existing document with the
	// same id, creating it when absent.
	ActionUpsert ActionType = "update"

	// ActionDelete removes the document.
	ActionDelete ActionType = "delete"
)

// Action is a single index mutation.
type Action struct {
	Type      ActionType     `json:"op_type"`
	IndexName string         `json:"index"`
	DocType   string         `json:"type"`
	ID        string         `json:"id"`
	Document  map[string]any `json:"doc,omitempty"`
}

// NewUpsertAction builds an upsert of doc under id.
func NewUpsertAction(indexName, docType, id string, doc map[string]any) Action {
	return Action{
		Type:      ActionUpsert,
		IndexName: indexName,
		DocType:   docType,
		ID:        id,
		Document:  doc,
	}
}

// NewDeleteAction builds a delete of id.
func NewDeleteAction(indexName, docType, id string) Action {
	return Action{
		Type:      ActionDelete,
		IndexName: indexName,
		DocType:   docType,
		ID:        id,
	}
}

// Target identifies the (index, doc type) pair an action is written to.
type Target struct {
	IndexName string
	DocType   string
}

// Target returns the action's target.
func (a Action) Target() Target {
	return Target{IndexName: a.IndexName, DocType: a.DocType}
}

func (t Target) String() string {
	return t.IndexName + "/" + t.DocType
}

// ActionError describes one failed action in a bulk apply.
type ActionError struct {
	Index  int        `json:"index"`
	Type   ActionType `json:"op_type"`
	ID     string     `json:"id"`
	Reason string     `json:"reason"`
}

func (e ActionError) Error() string {
	return fmt.Sprintf("%s %s (action %d): %s", e.Type, e.ID, e.Index, e.Reason)
}

// BulkResult is the outcome of Engine.Apply.
type BulkResult struct {
	Succeeded int
	Errors    []ActionError
}

// Err returns a *BulkError when any action failed, nil otherwise.
func (r *BulkResult) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return &BulkError{Errors: r.Errors}
}

// BulkError reports the actions that failed in a bulk apply.
type BulkError struct {
	Errors []ActionError
}

func (e *BulkError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, ae := range e.Errors {
		msgs = append(msgs, ae.Error())
	}
	return fmt.Sprintf("%d bulk action(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}
