package bleve

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"

	"github.com/hashicorp-forge/indexsync/pkg/index"
)

// pendingDoc is the state a document will have once the batch is committed.
type pendingDoc struct {
	doc     map[string]any
	deleted bool
}

// targetBatch collects the actions for one index.
type targetBatch struct {
	idx     bleve.Index
	docs    map[string]*pendingDoc
	members []int
	// lastAction is the position of the action that decided each id's
	// final state, used to attribute batch errors.
	lastAction map[string]int
}

// Apply executes actions in order. Upserts are merged into the stored
// document, or into the pending state of an earlier action in the same
// call, so the last action for an id wins.
func (a *Adapter) Apply(ctx context.Context, actions []index.Action) (*index.BulkResult, error) {
	result := &index.BulkResult{}
	if len(actions) == 0 {
		return result, nil
	}

	batches := make(map[index.Target]*targetBatch)
	var order []index.Target
	failed := make(map[int]bool)

	fail := func(i int, action index.Action, reason string) {
		failed[i] = true
		result.Errors = append(result.Errors, index.ActionError{
			Index:  i,
			Type:   action.Type,
			ID:     action.ID,
			Reason: reason,
		})
	}

	for i, action := range actions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		target := action.Target()
		tb, ok := batches[target]
		if !ok {
			idx, err := a.lookup(target)
			if err != nil {
				fail(i, action, err.Error())
				continue
			}
			tb = &targetBatch{
				idx:        idx,
				docs:       make(map[string]*pendingDoc),
				lastAction: make(map[string]int),
			}
			batches[target] = tb
			order = append(order, target)
		}

		if action.ID == "" {
			fail(i, action, "document id required")
			continue
		}

		switch action.Type {
		case index.ActionDelete:
			tb.docs[action.ID] = &pendingDoc{deleted: true}

		case index.ActionUpsert:
			merged, err := tb.base(ctx, action.ID)
			if err != nil {
				fail(i, action, err.Error())
				continue
			}
			for k, v := range action.Document {
				merged[k] = v
			}
			tb.docs[action.ID] = &pendingDoc{doc: merged}

		default:
			fail(i, action, fmt.Sprintf("unsupported action type %q", action.Type))
			continue
		}

		tb.members = append(tb.members, i)
		tb.lastAction[action.ID] = i
	}

	for _, target := range order {
		tb := batches[target]
		batch := tb.idx.NewBatch()

		for id, p := range tb.docs {
			if p.deleted {
				batch.Delete(id)
				continue
			}
			if err := batch.Index(id, p.doc); err != nil {
				i := tb.lastAction[id]
				fail(i, actions[i], err.Error())
			}
		}

		if err := tb.idx.Batch(batch); err != nil {
			a.logger.Error("bleve batch failed", "index", target.IndexName, "doc_type", target.DocType, "error", err)
			for _, i := range tb.members {
				if !failed[i] {
					fail(i, actions[i], err.Error())
				}
			}
		}
	}

	result.Succeeded = len(actions) - len(failed)
	return result, nil
}

// base returns a copy of the document an upsert of id should merge into.
func (tb *targetBatch) base(ctx context.Context, id string) (map[string]any, error) {
	if p, ok := tb.docs[id]; ok {
		out := make(map[string]any, len(p.doc))
		if !p.deleted {
			for k, v := range p.doc {
				out[k] = v
			}
		}
		return out, nil
	}

	stored, err := storedFields(ctx, tb.idx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	return stored, nil
}

// storedFields returns the stored fields of id, or an empty map when the
// document does not exist.
func storedFields(ctx context.Context, idx bleve.Index, id string) (map[string]any, error) {
	req := bleve.NewSearchRequest(bleve.NewDocIDQuery([]string{id}))
	req.Size = 1
	req.Fields = []string{"*"}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any)
	if len(res.Hits) == 0 {
		return out, nil
	}
	for k, v := range res.Hits[0].Fields {
		out[k] = v
	}
	return out, nil
}

// LatestDocument returns the stored fields of the document that sorts last
// by sortFields.
func (a *Adapter) LatestDocument(ctx context.Context, indexName, docType string, sortFields ...string) (map[string]any, error) {
	idx, err := a.lookup(index.Target{IndexName: indexName, DocType: docType})
	if err != nil {
		return nil, err
	}

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = 1
	req.Fields = []string{"*"}
	if len(sortFields) > 0 {
		order := make([]string, 0, len(sortFields))
		for _, f := range sortFields {
			order = append(order, "-"+f)
		}
		req.SortBy(order)
	}

	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search index %s/%s: %w", indexName, docType, err)
	}
	if len(res.Hits) == 0 {
		return nil, nil
	}

	doc := make(map[string]any, len(res.Hits[0].Fields))
	for k, v := range res.Hits[0].Fields {
		doc[k] = v
	}
	return doc, nil
}
