package bridge

import (
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	"golang.org/x/text/cases"
)

// Record is one synchronized item. Records are keyed by their "id" field;
// records without an id are carried in the ordered collection but cannot be
// addressed individually.
type Record = map[string]any

// Predicate decides whether a record matches a search query. Matches are
// returned in original collection order.
type Predicate func(query string, rec Record) bool

// DataBridge is the data-sync specialization: it holds an ordered collection
// of records and notifies the document side on every mutation.
//
// Notifications: "itemsLoaded" (full list), "itemUpdated" ({id, item} delta),
// "dataUpdated" (full list), "searchResults" (matching list).
// Document-callable operations: getAllItems, getItem, requestSearch.
type DataBridge struct {
	*Object

	mu        sync.Mutex
	items     []Record
	byID      map[string]Record
	predicate Predicate
}

// NewDataBridge creates a data-sync bridge. The default search predicate is
// a case-insensitive substring match over the "name" and "description"
// fields.
func NewDataBridge(name string) *DataBridge {
	d := &DataBridge{
		Object:    NewObject(name),
		byID:      make(map[string]Record),
		predicate: defaultPredicate,
	}
	for _, n := range []string{"itemsLoaded", "itemUpdated", "dataUpdated", "searchResults"} {
		d.DeclareNotification(n)
	}

	// Registration on a fresh object cannot collide.
	_ = d.RegisterOperation("getAllItems", func(map[string]any) (any, error) {
		return d.Items(), nil
	})
	_ = d.RegisterOperation("getItem", func(args map[string]any) (any, error) {
		id, _ := args["id"].(string)
		if rec, ok := d.Item(id); ok {
			return rec, nil
		}
		return Record{}, nil
	})
	_ = d.RegisterOperation("requestSearch", func(args map[string]any) (any, error) {
		query, _ := args["query"].(string)
		results := d.Search(query)
		d.Notify("searchResults", results)
		return results, nil
	})
	_ = d.RegisterOperation("replaceAll", func(args map[string]any) (any, error) {
		items, err := recordsArg(args["items"])
		if err != nil {
			return nil, err
		}
		d.ReplaceAll(items)
		return map[string]any{"count": len(items)}, nil
	})
	_ = d.RegisterOperation("addItem", func(args map[string]any) (any, error) {
		rec, ok := args["item"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("addItem requires an \"item\" object")
		}
		d.Add(rec)
		return map[string]any{"added": true}, nil
	})
	_ = d.RegisterOperation("updateItem", func(args map[string]any) (any, error) {
		id, _ := args["id"].(string)
		fields, ok := args["fields"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("updateItem requires a \"fields\" object")
		}
		return map[string]any{"found": d.Update(id, fields)}, nil
	})
	return d
}

// recordsArg coerces a decoded JSON array into records, rejecting anything
// that is not a list of objects.
func recordsArg(v any) ([]Record, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("replaceAll requires an \"items\" array")
	}
	items := make([]Record, 0, len(list))
	for i, entry := range list {
		rec, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("items[%d] is not an object", i)
		}
		items = append(items, rec)
	}
	return items, nil
}

// ReplaceAll swaps the whole collection and notifies the document side with
// the new full state.
func (d *DataBridge) ReplaceAll(items []Record) {
	d.mu.Lock()
	d.items = append([]Record(nil), items...)
	d.byID = make(map[string]Record, len(items))
	for _, rec := range d.items {
		if id, ok := rec["id"].(string); ok && id != "" {
			d.byID[id] = rec
		}
	}
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.Notify("itemsLoaded", snapshot)
	d.Notify("dataUpdated", snapshot)
}

// Add appends one record and notifies with both the delta and the new full
// state.
func (d *DataBridge) Add(rec Record) {
	d.mu.Lock()
	d.items = append(d.items, rec)
	id, hasID := rec["id"].(string)
	if hasID && id != "" {
		d.byID[id] = rec
	}
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	if hasID && id != "" {
		d.Notify("itemUpdated", map[string]any{"id": id, "item": rec})
	}
	d.Notify("dataUpdated", snapshot)
}

// Update merges fields into the record with the given id. An absent id is a
// not-found outcome, not an error: Update returns false, mutates nothing,
// and reports through the error side channel.
func (d *DataBridge) Update(id string, fields Record) bool {
	d.mu.Lock()
	rec, ok := d.byID[id]
	if !ok {
		d.mu.Unlock()
		d.emitError(fmt.Sprintf("item not found: %s", id))
		return false
	}
	for k, v := range fields {
		rec[k] = v
	}
	d.mu.Unlock()

	d.Notify("itemUpdated", map[string]any{"id": id, "item": fields})
	return true
}

// Remove deletes the record with the given id and notifies with the new full
// state. Returns false (and reports) if the id is absent.
func (d *DataBridge) Remove(id string) bool {
	d.mu.Lock()
	if _, ok := d.byID[id]; !ok {
		d.mu.Unlock()
		d.emitError(fmt.Sprintf("item not found for removal: %s", id))
		return false
	}
	delete(d.byID, id)
	kept := d.items[:0]
	for _, rec := range d.items {
		if recID, _ := rec["id"].(string); recID != id {
			kept = append(kept, rec)
		}
	}
	d.items = kept
	snapshot := d.snapshotLocked()
	d.mu.Unlock()

	d.Notify("itemsLoaded", snapshot)
	d.Notify("dataUpdated", snapshot)
	return true
}

// Items returns a copy of the collection in insertion order.
func (d *DataBridge) Items() []Record {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

// Item returns the record with the given id, if present.
func (d *DataBridge) Item(id string) (Record, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.byID[id]
	return rec, ok
}

// Search filters the collection with the installed predicate, preserving
// original order. A predicate panic skips the record rather than crossing
// the boundary.
func (d *DataBridge) Search(query string) []Record {
	d.mu.Lock()
	items := d.snapshotLocked()
	pred := d.predicate
	d.mu.Unlock()

	results := make([]Record, 0)
	for _, rec := range items {
		if matchRecord(pred, query, rec) {
			results = append(results, rec)
		}
	}
	return results
}

// SetPredicate installs a host-supplied search predicate. A nil predicate
// restores the default substring match.
func (d *DataBridge) SetPredicate(p Predicate) {
	d.mu.Lock()
	if p == nil {
		p = defaultPredicate
	}
	d.predicate = p
	d.mu.Unlock()
}

// SetPredicateExpr compiles source as an expr-lang boolean expression and
// installs it as the search predicate. The expression environment exposes
// the current record as "record" and the query string as "query", e.g.
// `record.kind == "mesh" && query in record.name`.
func (d *DataBridge) SetPredicateExpr(source string) error {
	program, err := expr.Compile(source,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("compile search predicate: %w", err)
	}
	d.SetPredicate(exprPredicate(program))
	return nil
}

func exprPredicate(program *exprvm.Program) Predicate {
	return func(query string, rec Record) bool {
		out, err := exprvm.Run(program, map[string]any{
			"record": rec,
			"query":  query,
		})
		if err != nil {
			return false
		}
		matched, _ := out.(bool)
		return matched
	}
}

func matchRecord(pred Predicate, query string, rec Record) (matched bool) {
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()
	return pred(query, rec)
}

// defaultPredicate is the original search behavior: case-insensitive
// substring over name and description, using Unicode case folding.
func defaultPredicate(query string, rec Record) bool {
	folded := cases.Fold().String(query)
	name, _ := rec["name"].(string)
	description, _ := rec["description"].(string)
	return strings.Contains(cases.Fold().String(name), folded) ||
		strings.Contains(cases.Fold().String(description), folded)
}

func (d *DataBridge) snapshotLocked() []Record {
	return append([]Record(nil), d.items...)
}
