package meilisearch

import (
	"context"
	"fmt"

	"github.com/meilisearch/meilisearch-go"

	"github.com/hashicorp-forge/indexsync/pkg/index"
)

// actionGroup is a run of consecutive actions of the same type against the
// same index. Groups are submitted one at a time, in order, so the relative
// order of actions is preserved.
type actionGroup struct {
	target  index.Target
	kind    index.ActionType
	members []int
}

func groupActions(actions []index.Action) []actionGroup {
	var groups []actionGroup
	for i, action := range actions {
		n := len(groups)
		if n > 0 && groups[n-1].target == action.Target() && groups[n-1].kind == action.Type {
			groups[n-1].members = append(groups[n-1].members, i)
			continue
		}
		groups = append(groups, actionGroup{
			target:  action.Target(),
			kind:    action.Type,
			members: []int{i},
		})
	}
	return groups
}

// upsertDocument builds the partial document sent for an upsert.
func upsertDocument(action index.Action) map[string]any {
	doc := make(map[string]any, len(action.Document)+2)
	for k, v := range action.Document {
		doc[k] = v
	}
	doc[primaryKey] = DocumentKey(action.ID)
	doc[idField] = action.ID
	return doc
}

// Apply submits actions as a sequence of document tasks. Upserts use
// partial document updates, which merge into any existing document.
func (a *Adapter) Apply(ctx context.Context, actions []index.Action) (*index.BulkResult, error) {
	result := &index.BulkResult{}

	for _, group := range groupActions(actions) {
		idx := a.client.Index(IndexUID(group.target.IndexName, group.target.DocType))

		var (
			info *meilisearch.TaskInfo
			err  error
		)
		switch group.kind {
		case index.ActionUpsert:
			docs := make([]map[string]any, 0, len(group.members))
			for _, i := range group.members {
				docs = append(docs, upsertDocument(actions[i]))
			}
			info, err = idx.UpdateDocumentsWithContext(ctx, docs, nil)
		case index.ActionDelete:
			keys := make([]string, 0, len(group.members))
			for _, i := range group.members {
				keys = append(keys, DocumentKey(actions[i].ID))
			}
			info, err = idx.DeleteDocumentsWithContext(ctx, keys)
		default:
			for _, i := range group.members {
				result.Errors = append(result.Errors, actionError(i, actions[i], fmt.Sprintf("unsupported action type %q", group.kind)))
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to submit %d %s action(s) to %s: %w", len(group.members), group.kind, group.target, err)
		}

		task, err := a.client.WaitForTaskWithContext(ctx, info.TaskUID, a.pollInterval)
		if err != nil {
			return nil, fmt.Errorf("failed waiting for task %d: %w", info.TaskUID, err)
		}
		if task.Status != meilisearch.TaskStatusSucceeded {
			a.logger.Error("document task failed",
				"index", group.target.IndexName,
				"doc_type", group.target.DocType,
				"task", info.TaskUID,
				"status", task.Status,
				"error", task.Error.Message,
			)
			for _, i := range group.members {
				result.Errors = append(result.Errors, actionError(i, actions[i], task.Error.Message))
			}
			continue
		}

		result.Succeeded += len(group.members)
	}

	return result, nil
}

func actionError(i int, action index.Action, reason string) index.ActionError {
	return index.ActionError{Index: i, Type: action.Type, ID: action.ID, Reason: reason}
}
