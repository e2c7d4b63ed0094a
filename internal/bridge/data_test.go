package bridge

import (
	"encoding/json"
	"testing"
)

func TestDataBridge_ReplaceAllAndSearch(t *testing.T) {
	d := NewDataBridge("data")
	d.ReplaceAll([]Record{{"id": "1", "name": "A"}})

	results := d.Search("a")
	if len(results) != 1 {
		t.Fatalf("Search(a) returned %d records, want 1", len(results))
	}
	if results[0]["id"] != "1" || results[0]["name"] != "A" {
		t.Errorf("Search(a) = %v, want [{id:1 name:A}]", results)
	}

	if results := d.Search("z"); len(results) != 0 {
		t.Errorf("Search(z) = %v, want empty", results)
	}
}

func TestDataBridge_SearchOrderAndDescription(t *testing.T) {
	d := NewDataBridge("data")
	d.ReplaceAll([]Record{
		{"id": "1", "name": "Alpha", "description": "first"},
		{"id": "2", "name": "beta", "description": "ALPHA adjacent"},
		{"id": "3", "name": "Gamma"},
	})

	results := d.Search("alpha")
	if len(results) != 2 {
		t.Fatalf("Search(alpha) returned %d records, want 2", len(results))
	}
	// Original collection order is preserved.
	if results[0]["id"] != "1" || results[1]["id"] != "2" {
		t.Errorf("Search(alpha) order = [%v %v], want [1 2]", results[0]["id"], results[1]["id"])
	}
}

func TestDataBridge_UpdateExisting(t *testing.T) {
	d := NewDataBridge("data")
	d.ReplaceAll([]Record{{"id": "1", "name": "A"}})

	var deltas []string
	d.Subscribe("itemUpdated", func(payload string) { deltas = append(deltas, payload) })

	if !d.Update("1", Record{"name": "B"}) {
		t.Fatal("Update returned false for existing id")
	}
	rec, ok := d.Item("1")
	if !ok || rec["name"] != "B" {
		t.Errorf("Item(1) = %v, want name B", rec)
	}
	if len(deltas) != 1 {
		t.Errorf("itemUpdated fired %d times, want 1", len(deltas))
	}
}

func TestDataBridge_UpdateAbsentIsNotFound(t *testing.T) {
	d := NewDataBridge("data")
	var errs []string
	d.SetErrorCallback(func(msg string) { errs = append(errs, msg) })

	if d.Update("missing", Record{"name": "X"}) {
		t.Error("Update returned true for absent id")
	}
	if len(errs) != 1 {
		t.Errorf("error side channel fired %d times, want 1", len(errs))
	}
	if len(d.Items()) != 0 {
		t.Errorf("collection mutated by failed update: %v", d.Items())
	}
}

func TestDataBridge_AddAndRemove(t *testing.T) {
	d := NewDataBridge("data")
	d.Add(Record{"id": "1", "name": "A"})
	d.Add(Record{"id": "2", "name": "B"})

	if got := len(d.Items()); got != 2 {
		t.Fatalf("len(Items) = %d, want 2", got)
	}
	if !d.Remove("1") {
		t.Fatal("Remove(1) returned false")
	}
	items := d.Items()
	if len(items) != 1 || items[0]["id"] != "2" {
		t.Errorf("Items = %v, want [{id:2}]", items)
	}
	if d.Remove("1") {
		t.Error("second Remove(1) returned true")
	}
}

func TestDataBridge_MutationNotifications(t *testing.T) {
	d := NewDataBridge("data")
	var loads, updates []string
	d.Subscribe("itemsLoaded", func(p string) { loads = append(loads, p) })
	d.Subscribe("dataUpdated", func(p string) { updates = append(updates, p) })

	d.ReplaceAll([]Record{{"id": "1", "name": "A"}})

	if len(loads) != 1 || len(updates) != 1 {
		t.Fatalf("itemsLoaded=%d dataUpdated=%d, want 1 each", len(loads), len(updates))
	}
	var state []Record
	if err := json.Unmarshal([]byte(loads[0]), &state); err != nil {
		t.Fatalf("itemsLoaded payload not valid JSON: %q", loads[0])
	}
	if len(state) != 1 || state[0]["name"] != "A" {
		t.Errorf("itemsLoaded payload = %v, want full new state", state)
	}
}

func TestDataBridge_DocumentOperations(t *testing.T) {
	d := NewDataBridge("data")

	env := decodeEnvelope(t, d.Invoke("replaceAll", `{"items":[{"id":"1","name":"A"},{"id":"2","name":"B"}]}`))
	if env["status"] != "success" {
		t.Fatalf("replaceAll: %v", env)
	}

	env = decodeEnvelope(t, d.Invoke("getAllItems", "{}"))
	items, _ := env["value"].([]any)
	if len(items) != 2 {
		t.Fatalf("getAllItems returned %d items, want 2", len(items))
	}

	env = decodeEnvelope(t, d.Invoke("getItem", `{"id":"2"}`))
	item, _ := env["value"].(map[string]any)
	if item["name"] != "B" {
		t.Errorf("getItem(2) = %v, want name B", item)
	}

	env = decodeEnvelope(t, d.Invoke("updateItem", `{"id":"nope","fields":{"name":"X"}}`))
	result, _ := env["value"].(map[string]any)
	if result["found"] != false {
		t.Errorf("updateItem(nope) = %v, want found:false", result)
	}
}

func TestDataBridge_RequestSearchNotifies(t *testing.T) {
	d := NewDataBridge("data")
	d.ReplaceAll([]Record{{"id": "1", "name": "Alpha"}})

	var results []string
	d.Subscribe("searchResults", func(p string) { results = append(results, p) })

	env := decodeEnvelope(t, d.Invoke("requestSearch", `{"query":"alp"}`))
	if env["status"] != "success" {
		t.Fatalf("requestSearch: %v", env)
	}
	if len(results) != 1 {
		t.Fatalf("searchResults fired %d times, want 1", len(results))
	}
	var matched []Record
	if err := json.Unmarshal([]byte(results[0]), &matched); err != nil {
		t.Fatalf("searchResults payload not valid JSON: %q", results[0])
	}
	if len(matched) != 1 || matched[0]["id"] != "1" {
		t.Errorf("searchResults = %v, want [{id:1}]", matched)
	}
}

func TestDataBridge_ExprPredicate(t *testing.T) {
	d := NewDataBridge("data")
	d.ReplaceAll([]Record{
		{"id": "1", "name": "mesh-a", "kind": "mesh"},
		{"id": "2", "name": "tex-b", "kind": "texture"},
	})

	if err := d.SetPredicateExpr(`record.kind == query`); err != nil {
		t.Fatalf("SetPredicateExpr failed: %v", err)
	}
	results := d.Search("mesh")
	if len(results) != 1 || results[0]["id"] != "1" {
		t.Errorf("expr search = %v, want [{id:1}]", results)
	}

	if err := d.SetPredicateExpr(`record.kind ==`); err == nil {
		t.Error("expected compile error for malformed expression")
	}
}

func TestDataBridge_CustomPredicateAndReset(t *testing.T) {
	d := NewDataBridge("data")
	d.ReplaceAll([]Record{{"id": "1", "name": "A"}, {"id": "2", "name": "B"}})

	d.SetPredicate(func(query string, rec Record) bool {
		return rec["id"] == query
	})
	if results := d.Search("2"); len(results) != 1 || results[0]["id"] != "2" {
		t.Errorf("custom predicate = %v, want [{id:2}]", results)
	}

	d.SetPredicate(nil)
	if results := d.Search("a"); len(results) != 1 {
		t.Errorf("default predicate after reset = %v, want [{id:1}]", results)
	}
}
