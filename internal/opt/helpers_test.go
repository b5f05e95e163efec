package opt_test

import (
	"testing"

	"gale/internal/ir"
	"gale/internal/irinterp"
)

func mustValidate(t *testing.T, m *ir.Module) {
	t.Helper()
	if err := ir.Validate(m); err != nil {
		t.Fatalf("expected valid module, got %v", err)
	}
}

func summary(t *testing.T, m *ir.Module) string {
	t.Helper()
	res, err := irinterp.Run(m, irinterp.Options{})
	if err != nil {
		t.Fatalf("interpreter failed: %v", err)
	}
	return res.Summary()
}

// closureModule creates main and a function called name that captures
// main's scope.
func closureModule(name string) (*ir.Module, *ir.Func, *ir.Func) {
	m := ir.NewModule()
	top := m.NewFunc("main", ir.NoScopeID)
	callee := m.NewFunc(name, top.Scope)
	return m, top, callee
}

// interpResult runs m and returns the class of its uncaught error, if any,
// and its summary.
func interpResult(t *testing.T, m *ir.Module) (string, string) {
	t.Helper()
	res, err := irinterp.Run(m, irinterp.Options{})
	if err != nil {
		t.Fatalf("interpreter failed: %v", err)
	}
	return res.ErrKind(), res.Summary()
}

// summaryWithGlobals runs m with the named globals defined as undefined.
func summaryWithGlobals(t *testing.T, m *ir.Module, names ...string) string {
	t.Helper()
	mach := irinterp.New(m, irinterp.Options{})
	for _, n := range names {
		mach.Globals[n] = irinterp.Undefined()
	}
	res, err := mach.Run()
	if err != nil {
		t.Fatalf("interpreter failed: %v", err)
	}
	return res.Summary()
}
