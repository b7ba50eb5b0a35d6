package rules_test

import (
	"context"
	"os"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/kestrelnet/captureproxy/rules"
)

func TestMatchAllFiltersByMethodHostAndGlob(t *testing.T) {
	c := qt.New(t)

	snapshot := []rules.CaptureRule{
		{ID: "a", Pattern: "*/admin/*", Method: "GET", Host: "x", Enabled: true},
		{ID: "b", Pattern: "*/admin/*", Method: "POST", Host: "x", Enabled: true},
		{ID: "c", Pattern: "*/other/*", Method: "", Host: "", Enabled: true},
		{ID: "d", Pattern: "*/admin/*", Method: "GET", Host: "x", Enabled: false},
	}

	matched := rules.MatchAll(snapshot, "get", "X", "http://x/admin/ping")

	c.Assert(matched, qt.HasLen, 1)
	c.Assert(matched[0].ID, qt.Equals, "a")
}

func TestScheduleHandlersStableSortsByExecutionOrderPreservingRuleOrder(t *testing.T) {
	c := qt.New(t)

	matched := []rules.CaptureRule{
		{ID: "first", Handlers: []rules.Handler{
			{Kind: rules.HandlerModifyRequest, ExecutionOrder: 1},
		}},
		{ID: "second", Handlers: []rules.Handler{
			{Kind: rules.HandlerBlock, ExecutionOrder: 1},
			{Kind: rules.HandlerProxyForward, ExecutionOrder: 0},
		}},
	}

	scheduled := rules.ScheduleHandlers(matched)

	c.Assert(scheduled, qt.HasLen, 3)
	c.Assert(scheduled[0].Kind, qt.Equals, rules.HandlerProxyForward)
	c.Assert(scheduled[1].Kind, qt.Equals, rules.HandlerModifyRequest)
	c.Assert(scheduled[2].Kind, qt.Equals, rules.HandlerBlock)
}

func TestMemoryStoreSnapshotReflectsReplace(t *testing.T) {
	c := qt.New(t)

	store := rules.NewMemoryStore(nil)
	snap, err := store.Snapshot(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(snap, qt.HasLen, 0)

	store.Replace([]rules.CaptureRule{{ID: "a", Enabled: true}})
	snap, err = store.Snapshot(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(snap, qt.HasLen, 1)
	c.Assert(snap[0].ID, qt.Equals, "a")
}

func TestFileStoreLoadsAndReloads(t *testing.T) {
	c := qt.New(t)

	dir := t.TempDir()
	path := dir + "/rules.json"
	initial := `[{"ID":"a","Pattern":"*","Enabled":true}]`
	c.Assert(os.WriteFile(path, []byte(initial), 0o644), qt.IsNil)

	store, err := rules.NewFileStore(path)
	c.Assert(err, qt.IsNil)

	snap, err := store.Snapshot(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(snap, qt.HasLen, 1)
	c.Assert(snap[0].ID, qt.Equals, "a")

	updated := `[{"ID":"a","Pattern":"*","Enabled":true},{"ID":"b","Pattern":"*","Enabled":true}]`
	c.Assert(os.WriteFile(path, []byte(updated), 0o644), qt.IsNil)
	c.Assert(store.Reload(), qt.IsNil)

	snap, err = store.Snapshot(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(snap, qt.HasLen, 2)
}
