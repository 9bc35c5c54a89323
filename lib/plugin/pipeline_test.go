package plugin

import (
	"errors"
	"strings"
	"testing"

	"github.com/ValentinKolb/uKV/lib/driver"
	"github.com/puzpuzpuz/xsync/v3"
)

// newTestContext creates a context with a fresh metadata map for one
// top-level invocation.
func newTestContext(op Operation) *Context {
	return NewContext(nil, "test", driver.Info{}, driver.Config{Name: "test"}, op, xsync.NewMapOf[string, interface{}]())
}

// tracePlugin creates a plugin that appends its name to the trace on every
// set hook it runs.
func tracePlugin(name string, priority int, trace *[]string) Plugin {
	return Plugin{
		Name:     name,
		Priority: priority,
		BeforeSet: func(ctx *Context, key string, value []byte) (string, []byte, error) {
			*trace = append(*trace, "before:"+name)
			return key, value, nil
		},
		AfterSet: func(ctx *Context, key string, value []byte) error {
			*trace = append(*trace, "after:"+name)
			return nil
		},
	}
}

// TestPipelineOrdering verifies that before-hooks run in descending priority
// order and after-hooks in the exact mirror order.
func TestPipelineOrdering(t *testing.T) {
	p := NewPipeline()
	cfg := driver.Config{Name: "test"}
	var trace []string

	// register out of priority order on purpose
	for _, pl := range []Plugin{
		tracePlugin("mid", 100, &trace),
		tracePlugin("high", 300, &trace),
		tracePlugin("low", -100, &trace),
	} {
		if _, err := p.Register(pl, cfg); err != nil {
			t.Fatalf("failed to register %q: %v", pl.Name, err)
		}
	}

	ctx := newTestContext(OpSet)
	if _, _, err := p.RunBeforeSet(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("before-set chain failed: %v", err)
	}
	if err := p.RunAfterSet(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("after-set chain failed: %v", err)
	}

	want := []string{
		"before:high", "before:mid", "before:low",
		"after:low", "after:mid", "after:high",
	}
	if strings.Join(trace, ",") != strings.Join(want, ",") {
		t.Errorf("wrong hook order:\nwant %v\ngot  %v", want, trace)
	}
}

// TestEqualPriorityKeepsRegistrationOrder verifies the tie-breaker for
// plugins sharing one priority.
func TestEqualPriorityKeepsRegistrationOrder(t *testing.T) {
	p := NewPipeline()
	cfg := driver.Config{Name: "test"}
	var trace []string

	for _, name := range []string{"first", "second", "third"} {
		if _, err := p.Register(tracePlugin(name, 50, &trace), cfg); err != nil {
			t.Fatalf("failed to register %q: %v", name, err)
		}
	}

	ctx := newTestContext(OpSet)
	if _, _, err := p.RunBeforeSet(ctx, "k", nil); err != nil {
		t.Fatalf("before-set chain failed: %v", err)
	}

	want := []string{"before:first", "before:second", "before:third"}
	if strings.Join(trace, ",") != strings.Join(want, ",") {
		t.Errorf("wrong tie-break order:\nwant %v\ngot  %v", want, trace)
	}
}

// TestBeforeHooksRewriteKeyAndValue verifies that rewrites chain through
// subsequent hooks and that the after phase unwraps in reverse order.
func TestBeforeHooksRewriteKeyAndValue(t *testing.T) {
	p := NewPipeline()
	cfg := driver.Config{Name: "test"}

	wrap := func(name string, priority int) Plugin {
		return Plugin{
			Name:     name,
			Priority: priority,
			BeforeSet: func(ctx *Context, key string, value []byte) (string, []byte, error) {
				return key, []byte(name + "(" + string(value) + ")"), nil
			},
			AfterGet: func(ctx *Context, key string, value []byte, found bool) ([]byte, bool, error) {
				s := string(value)
				if !strings.HasPrefix(s, name+"(") || !strings.HasSuffix(s, ")") {
					return nil, false, errors.New("unexpected envelope")
				}
				return []byte(s[len(name)+1 : len(s)-1]), found, nil
			},
		}
	}

	if _, err := p.Register(wrap("outer", 200), cfg); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if _, err := p.Register(wrap("inner", 100), cfg); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	ctx := newTestContext(OpSet)
	_, stored, err := p.RunBeforeSet(ctx, "k", []byte("v"))
	if err != nil {
		t.Fatalf("before-set chain failed: %v", err)
	}
	// outer runs first, inner wraps last before storage
	if string(stored) != "inner(outer(v))" {
		t.Fatalf("wrong stored value: %s", stored)
	}

	ctx = newTestContext(OpGet)
	plain, found, err := p.RunAfterGet(ctx, "k", stored, true)
	if err != nil {
		t.Fatalf("after-get chain failed: %v", err)
	}
	if !found || string(plain) != "v" {
		t.Errorf("round trip mismatch: found=%v value=%s", found, plain)
	}
}

// TestBatchIsolation verifies that batch runs mark the invocation and that
// the mark never leaks into a fresh invocation.
func TestBatchIsolation(t *testing.T) {
	p := NewPipeline()
	cfg := driver.Config{Name: "test"}

	var sawBatch, sawSingle bool
	pl := Plugin{
		Name: "probe",
		BeforeSet: func(ctx *Context, key string, value []byte) (string, []byte, error) {
			sawSingle = ctx.IsBatch()
			return key, value, nil
		},
		BeforeSetItems: func(ctx *Context, items []driver.Item) ([]driver.Item, error) {
			sawBatch = ctx.IsBatch()
			return items, nil
		},
	}
	if _, err := p.Register(pl, cfg); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	batchCtx := newTestContext(OpSetItems)
	if _, err := p.RunBeforeSetItems(batchCtx, []driver.Item{{Key: "a"}}); err != nil {
		t.Fatalf("before-setItems failed: %v", err)
	}
	if !sawBatch {
		t.Error("batch hook did not observe the batch mark")
	}

	singleCtx := newTestContext(OpSet)
	if _, _, err := p.RunBeforeSet(singleCtx, "a", nil); err != nil {
		t.Fatalf("before-set failed: %v", err)
	}
	if sawSingle {
		t.Error("batch mark leaked into a fresh single-item invocation")
	}
}

// TestOnErrorObservers verifies that every OnError hook observes a failed
// hook, that a panicking observer is swallowed, and that the returned error
// carries its provenance.
func TestOnErrorObservers(t *testing.T) {
	p := NewPipeline()
	cfg := driver.Config{Name: "test"}
	boom := errors.New("boom")

	var observed []*HookError
	observer := Plugin{
		Name: "observer",
		OnError: func(ctx *Context, hookErr *HookError) {
			observed = append(observed, hookErr)
		},
	}
	panicker := Plugin{
		Name: "panicker",
		OnError: func(ctx *Context, hookErr *HookError) {
			panic("observer gone wrong")
		},
	}
	failing := Plugin{
		Name: "failing",
		BeforeSet: func(ctx *Context, key string, value []byte) (string, []byte, error) {
			return "", nil, boom
		},
	}

	for _, pl := range []Plugin{observer, panicker, failing} {
		if _, err := p.Register(pl, cfg); err != nil {
			t.Fatalf("failed to register %q: %v", pl.Name, err)
		}
	}

	ctx := newTestContext(OpSet)
	_, _, err := p.RunBeforeSet(ctx, "k", nil)
	if err == nil {
		t.Fatal("expected error from failing hook")
	}

	var hookErr *HookError
	if !errors.As(err, &hookErr) {
		t.Fatalf("expected a HookError, got %T", err)
	}
	if hookErr.Plugin != "failing" || hookErr.Stage != StageBefore || hookErr.Operation != OpSet || hookErr.Key != "k" {
		t.Errorf("wrong provenance: %+v", hookErr)
	}
	if !errors.Is(err, boom) {
		t.Error("original error not reachable via errors.Is")
	}
	if len(observed) != 1 || observed[0].Plugin != "failing" {
		t.Errorf("observer saw %d errors, expected exactly the failing hook", len(observed))
	}
}

// TestMetadataNamespacing verifies that two plugins never observe each
// other's persistent metadata and that state is shared within an invocation.
func TestMetadataNamespacing(t *testing.T) {
	p := NewPipeline()
	cfg := driver.Config{Name: "test"}
	meta := xsync.NewMapOf[string, interface{}]()

	mk := func(name string) Plugin {
		return Plugin{
			Name: name,
			BeforeSet: func(ctx *Context, key string, value []byte) (string, []byte, error) {
				ctx.SetMetadata("shared-key", name)
				return key, value, nil
			},
			AfterSet: func(ctx *Context, key string, value []byte) error {
				v, ok := ctx.Metadata("shared-key")
				if !ok || v.(string) != name {
					t.Errorf("plugin %q read foreign metadata: %v", name, v)
				}
				return nil
			},
		}
	}

	if _, err := p.Register(mk("alpha"), cfg); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if _, err := p.Register(mk("beta"), cfg); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	ctx := NewContext(nil, "test", driver.Info{}, cfg, OpSet, meta)
	if _, _, err := p.RunBeforeSet(ctx, "k", nil); err != nil {
		t.Fatalf("before-set failed: %v", err)
	}
	if err := p.RunAfterSet(ctx, "k", nil); err != nil {
		t.Fatalf("after-set failed: %v", err)
	}

	// metadata persists across invocations on the same map
	ctx2 := NewContext(nil, "test", driver.Info{}, cfg, OpSet, meta)
	if err := p.RunAfterSet(ctx2, "k", nil); err != nil {
		t.Fatalf("after-set on fresh invocation failed: %v", err)
	}
}

// TestDisabledPlugin verifies that a plugin disabled by its predicate stays
// registered but contributes no hooks.
func TestDisabledPlugin(t *testing.T) {
	p := NewPipeline()
	cfg := driver.Config{Name: "test"}

	called := false
	pl := Plugin{
		Name:    "disabled",
		Enabled: func(cfg driver.Config) bool { return false },
		BeforeSet: func(ctx *Context, key string, value []byte) (string, []byte, error) {
			called = true
			return key, value, nil
		},
	}
	if _, err := p.Register(pl, cfg); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	ctx := newTestContext(OpSet)
	if _, _, err := p.RunBeforeSet(ctx, "k", nil); err != nil {
		t.Fatalf("before-set failed: %v", err)
	}
	if called {
		t.Error("disabled plugin hook ran")
	}

	names := p.Plugins()
	if len(names) != 1 || names[0] != "disabled" {
		t.Errorf("disabled plugin missing from registration list: %v", names)
	}
}

// TestRegisterRejectsDuplicatesAndEmptyNames verifies registration
// validation.
func TestRegisterRejectsDuplicatesAndEmptyNames(t *testing.T) {
	p := NewPipeline()
	cfg := driver.Config{Name: "test"}

	if _, err := p.Register(Plugin{Name: ""}, cfg); driver.CodeOf(err) != driver.RetCInvalidArgument {
		t.Errorf("expected invalid-argument for empty name, got %v", err)
	}
	if _, err := p.Register(Plugin{Name: "dup"}, cfg); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if _, err := p.Register(Plugin{Name: "dup"}, cfg); driver.CodeOf(err) != driver.RetCInvalidArgument {
		t.Errorf("expected invalid-argument for duplicate name, got %v", err)
	}
}

// TestLifecycleHooks verifies init order, destroy-runs-all semantics and
// error propagation.
func TestLifecycleHooks(t *testing.T) {
	p := NewPipeline()
	cfg := driver.Config{Name: "test"}
	boom := errors.New("destroy failed")

	var trace []string
	mk := func(name string, destroyErr error) Plugin {
		return Plugin{
			Name: name,
			OnInit: func(ctx *Context) error {
				trace = append(trace, "init:"+name)
				return nil
			},
			OnDestroy: func(ctx *Context) error {
				trace = append(trace, "destroy:"+name)
				return destroyErr
			},
		}
	}

	if _, err := p.Register(mk("a", boom), cfg); err != nil {
		t.Fatalf("failed to register: %v", err)
	}
	if _, err := p.Register(mk("b", nil), cfg); err != nil {
		t.Fatalf("failed to register: %v", err)
	}

	if err := p.RunInit(newTestContext(OpSet)); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	err := p.RunDestroy(newTestContext(OpSet))
	if !errors.Is(err, boom) {
		t.Errorf("destroy did not surface the first error: %v", err)
	}

	want := []string{"init:a", "init:b", "destroy:a", "destroy:b"}
	if strings.Join(trace, ",") != strings.Join(want, ",") {
		t.Errorf("wrong lifecycle order:\nwant %v\ngot  %v", want, trace)
	}
}
