package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

type entity struct {
	ID   string
	Name string
}

func entityToMap(e entity) map[string]any {
	return map[string]any{"id": e.ID, "name": e.Name}
}

func entityFromRecord(rec *neo4j.Record) (entity, error) {
	node, ok := rec.Values[0].(neo4j.Node)
	if !ok {
		return entity{}, errors.New("record is not a node")
	}
	e := entity{}
	if v, ok := node.Props["id"].(string); ok {
		e.ID = v
	}
	if v, ok := node.Props["name"].(string); ok {
		e.Name = v
	}
	return e, nil
}

// fakeResult yields canned records.
type fakeResult struct {
	records []*neo4j.Record
	pos     int
}

func (f *fakeResult) Next(context.Context) bool {
	if f.pos >= len(f.records) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeResult) Record() *neo4j.Record { return f.records[f.pos-1] }

// fakeSession records the last cypher/params and returns canned results.
type fakeSession struct {
	lastCypher string
	lastParams map[string]any
	records    []*neo4j.Record
	err        error
}

func (f *fakeSession) Run(_ context.Context, cypher string, params map[string]any) (result, error) {
	f.lastCypher = cypher
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	return &fakeResult{records: f.records}, nil
}

func (f *fakeSession) Close(context.Context) error { return nil }

func nodeRecord(props map[string]any) *neo4j.Record {
	return &neo4j.Record{
		Keys:   []string{"n"},
		Values: []any{neo4j.Node{Props: props}},
	}
}

func newTestRepo(sess *fakeSession) *Neo4jRepo[entity, string] {
	r := NewNeo4jRepo[entity, string](nil, "IngestionReport", entityToMap, entityFromRecord)
	r.newSession = func(context.Context) runner { return sess }
	return r
}

func TestGet(t *testing.T) {
	sess := &fakeSession{records: []*neo4j.Record{nodeRecord(map[string]any{"id": "r1", "name": "first"})}}
	r := newTestRepo(sess)

	got, err := r.Get(context.Background(), "r1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "r1" || got.Name != "first" {
		t.Errorf("got %+v", got)
	}
	if sess.lastParams["id"] != "r1" {
		t.Errorf("id param not passed: %v", sess.lastParams)
	}
}

func TestGetNotFound(t *testing.T) {
	r := newTestRepo(&fakeSession{})
	if _, err := r.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestCreate(t *testing.T) {
	sess := &fakeSession{records: []*neo4j.Record{nodeRecord(map[string]any{"id": "r2", "name": "created"})}}
	r := newTestRepo(sess)

	got, err := r.Create(context.Background(), entity{ID: "r2", Name: "created"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "r2" {
		t.Errorf("got %+v", got)
	}
	props, ok := sess.lastParams["props"].(map[string]any)
	if !ok || props["name"] != "created" {
		t.Errorf("props not passed: %v", sess.lastParams)
	}
}

func TestList(t *testing.T) {
	sess := &fakeSession{records: []*neo4j.Record{
		nodeRecord(map[string]any{"id": "a"}),
		nodeRecord(map[string]any{"id": "b"}),
	}}
	r := newTestRepo(sess)

	items, err := r.List(context.Background(), ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[1].ID != "b" {
		t.Errorf("got %+v", items)
	}
}

func TestRunError(t *testing.T) {
	sess := &fakeSession{err: errors.New("connection refused")}
	r := newTestRepo(sess)
	if _, err := r.Get(context.Background(), "x"); err == nil {
		t.Fatal("expected error")
	}
	if _, err := r.List(context.Background(), ListOpts{}); err == nil {
		t.Fatal("expected error")
	}
}
