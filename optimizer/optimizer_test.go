package optimizer

import (
	"strings"
	"testing"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/plan"
	"github.com/vegasq/lazyframe/source"
)

func usersSource(t *testing.T, n int) *source.MemorySource {
	t.Helper()
	ids := make([]int64, n)
	names := make([]string, n)
	ages := make([]int64, n)
	scores := make([]float64, n)
	for i := range ids {
		ids[i] = int64(i)
		names[i] = "u"
		ages[i] = int64(20 + i%40)
		scores[i] = float64(i)
	}
	src, err := source.FromColumns(
		column.NewInt64Column("id", ids, nil),
		column.NewStringColumn("name", names, nil),
		column.NewInt64Column("age", ages, nil),
		column.NewFloat64Column("score", scores, nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

func ordersSource(t *testing.T, n int) *source.MemorySource {
	t.Helper()
	ids := make([]int64, n)
	totals := make([]float64, n)
	for i := range ids {
		ids[i] = int64(i)
		totals[i] = float64(i) * 1.5
	}
	src, err := source.FromColumns(
		column.NewInt64Column("id", ids, nil),
		column.NewFloat64Column("total", totals, nil),
	)
	if err != nil {
		t.Fatal(err)
	}
	return src
}

// optimize runs the default rules and verifies the root schema
// survived, which every rule must guarantee.
func optimize(t *testing.T, p *plan.Plan, root plan.NodeID) plan.NodeID {
	t.Helper()
	before := p.Schema(root)
	out, err := Optimize(p, root)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Schema(out).Equal(before) {
		t.Fatalf("schema changed: %s -> %s", before, p.Schema(out))
	}
	return out
}

func TestPredicatePushdownIntoScan(t *testing.T) {
	p := plan.New()
	scan, err := p.Scan(usersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Filter(scan, expr.Col("age").Gt(expr.Lit(30)))
	if err != nil {
		t.Fatal(err)
	}

	out := optimize(t, p, root)
	n := p.Node(out)
	if n.Kind != plan.KindScan {
		t.Fatalf("root = %s, want scan", n.Kind)
	}
	if n.Pushed == nil || n.Pushed.String() != "(col(age) > 30:int64)" {
		t.Errorf("pushed predicate = %v", n.Pushed)
	}
}

func TestPushdownSubstitutesThroughProject(t *testing.T) {
	p := plan.New()
	scan, err := p.Scan(usersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	proj, err := p.Project(scan, []*expr.Expr{
		expr.Col("age").Add(expr.Lit(1)).As("next_age"),
	})
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Filter(proj, expr.Col("next_age").Gt(expr.Lit(30)))
	if err != nil {
		t.Fatal(err)
	}

	out := optimize(t, p, root)
	n := p.Node(out)
	if n.Kind != plan.KindProject {
		t.Fatalf("root = %s, want project", n.Kind)
	}
	child := p.Node(n.Input)
	if child.Kind != plan.KindScan {
		t.Fatalf("project input = %s, want scan", child.Kind)
	}
	if child.Pushed == nil || child.Pushed.String() != "((col(age) + 1:int64) > 30:int64)" {
		t.Errorf("pushed predicate = %v", child.Pushed)
	}
}

func TestPredicateStaysAboveLimit(t *testing.T) {
	p := plan.New()
	scan, err := p.Scan(usersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	lim, err := p.Limit(scan, 3)
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Filter(lim, expr.Col("age").Gt(expr.Lit(30)))
	if err != nil {
		t.Fatal(err)
	}

	out := optimize(t, p, root)
	n := p.Node(out)
	if n.Kind != plan.KindFilter {
		t.Fatalf("root = %s, want filter above limit", n.Kind)
	}
	if p.Node(n.Input).Kind != plan.KindLimit {
		t.Errorf("filter input = %s, want limit", p.Node(n.Input).Kind)
	}
}

func TestPushdownSplitsAcrossInnerJoin(t *testing.T) {
	p := plan.New()
	left, err := p.Scan(usersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	right, err := p.Scan(ordersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	j, err := p.Join(left, right, []string{"id"}, []string{"id"}, plan.JoinInner)
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Filter(j, expr.Col("age").Gt(expr.Lit(30)).And(expr.Col("total").Gt(expr.Lit(10.0))))
	if err != nil {
		t.Fatal(err)
	}

	out := optimize(t, p, root)
	n := p.Node(out)
	if n.Kind != plan.KindJoin {
		t.Fatalf("root = %s, want join with both conjuncts absorbed", n.Kind)
	}
	lp := p.Node(n.Input).Pushed
	rp := p.Node(n.Right).Pushed
	if lp == nil || !strings.Contains(lp.String(), "col(age)") {
		t.Errorf("left scan pushed = %v", lp)
	}
	if rp == nil || !strings.Contains(rp.String(), "col(total)") {
		t.Errorf("right scan pushed = %v", rp)
	}
}

func TestLeftJoinKeepsRightPredicateAbove(t *testing.T) {
	p := plan.New()
	left, err := p.Scan(usersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	right, err := p.Scan(ordersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	j, err := p.Join(left, right, []string{"id"}, []string{"id"}, plan.JoinLeft)
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Filter(j, expr.Col("total").Gt(expr.Lit(10.0)))
	if err != nil {
		t.Fatal(err)
	}

	out := optimize(t, p, root)
	n := p.Node(out)
	if n.Kind != plan.KindFilter {
		t.Fatalf("root = %s, want filter kept above left join", n.Kind)
	}
	j2 := p.Node(n.Input)
	if j2.Kind != plan.KindJoin {
		t.Fatalf("filter input = %s, want join", j2.Kind)
	}
	if p.Node(j2.Right).Pushed != nil {
		t.Error("right-side predicate leaked below a left join")
	}
}

func TestProjectionNarrowsScan(t *testing.T) {
	p := plan.New()
	scan, err := p.Scan(usersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Project(scan, []*expr.Expr{expr.Col("name")})
	if err != nil {
		t.Fatal(err)
	}

	out := optimize(t, p, root)
	child := p.Node(p.Node(out).Input)
	if child.Kind != plan.KindScan {
		t.Fatalf("project input = %s, want scan", child.Kind)
	}
	if len(child.Columns) != 1 || child.Columns[0] != "name" {
		t.Errorf("scan columns = %v, want [name]", child.Columns)
	}
}

func TestCountStarKeepsOneScanColumn(t *testing.T) {
	p := plan.New()
	scan, err := p.Scan(usersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Aggregate(scan, nil, []*expr.Expr{expr.CountAll()})
	if err != nil {
		t.Fatal(err)
	}

	out := optimize(t, p, root)
	child := p.Node(p.Node(out).Input)
	if child.Kind != plan.KindScan {
		t.Fatalf("aggregate input = %s, want scan", child.Kind)
	}
	if len(child.Columns) != 1 {
		t.Errorf("scan columns = %v, want exactly one surviving column", child.Columns)
	}
}

func TestJoinReorderBuildsOnSmallerSide(t *testing.T) {
	small := usersSource(t, 10)
	big := ordersSource(t, 100)

	p := plan.New()
	left, err := p.Scan(small)
	if err != nil {
		t.Fatal(err)
	}
	right, err := p.Scan(big)
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Join(left, right, []string{"id"}, []string{"id"}, plan.JoinInner)
	if err != nil {
		t.Fatal(err)
	}
	want := p.Schema(root)

	out := optimize(t, p, root)
	n := p.Node(out)
	if n.Kind != plan.KindProject {
		t.Fatalf("root = %s, want column-order-restoring project", n.Kind)
	}
	if !p.Schema(out).Equal(want) {
		t.Fatalf("schema = %s, want %s", p.Schema(out), want)
	}
	j := p.Node(n.Input)
	if j.Kind != plan.KindJoin {
		t.Fatalf("project input = %s, want join", j.Kind)
	}
	if p.Node(j.Right).Source != small {
		t.Error("smaller input did not move to the build side")
	}
}

func TestJoinReorderLeavesGoodOrderAlone(t *testing.T) {
	p := plan.New()
	left, err := p.Scan(usersSource(t, 100))
	if err != nil {
		t.Fatal(err)
	}
	right, err := p.Scan(ordersSource(t, 10))
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Join(left, right, []string{"id"}, []string{"id"}, plan.JoinInner)
	if err != nil {
		t.Fatal(err)
	}

	out := optimize(t, p, root)
	if out != root {
		t.Errorf("well-ordered join was rewritten: %s", p.Describe(out))
	}
}

func TestDuplicateFiltersCollapse(t *testing.T) {
	p := plan.New()
	scan, err := p.Scan(usersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	pred := expr.Col("age").Gt(expr.Lit(30))
	f1, err := p.Filter(scan, pred)
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Filter(f1, expr.Col("age").Gt(expr.Lit(30)))
	if err != nil {
		t.Fatal(err)
	}
	// Identical filters intern to the same node, so the chain is
	// already one node deep; the pushed predicate must hold a single
	// conjunct either way.
	out := optimize(t, p, root)
	n := p.Node(out)
	if n.Kind != plan.KindScan {
		t.Fatalf("root = %s, want scan", n.Kind)
	}
	if got := len(expr.SplitConjunction(n.Pushed)); got != 1 {
		t.Errorf("pushed conjuncts = %d, want 1", got)
	}
}

func TestOptimizeIsIdempotent(t *testing.T) {
	p := plan.New()
	users, err := p.Scan(usersSource(t, 10))
	if err != nil {
		t.Fatal(err)
	}
	orders, err := p.Scan(ordersSource(t, 100))
	if err != nil {
		t.Fatal(err)
	}
	j, err := p.Join(users, orders, []string{"id"}, []string{"id"}, plan.JoinInner)
	if err != nil {
		t.Fatal(err)
	}
	f, err := p.Filter(j, expr.Col("age").Gt(expr.Lit(21)))
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Aggregate(f, []string{"name"}, []*expr.Expr{
		expr.Sum(expr.Col("total")).As("spend"),
		expr.CountAll(),
	})
	if err != nil {
		t.Fatal(err)
	}

	once := optimize(t, p, root)
	twice := optimize(t, p, once)
	if got, want := p.Describe(twice), p.Describe(once); got != want {
		t.Errorf("second optimization changed the plan:\nfirst:\n%s\nsecond:\n%s", want, got)
	}
}

func TestOptimizeWithNoRulesIsIdentity(t *testing.T) {
	p := plan.New()
	scan, err := p.Scan(usersSource(t, 5))
	if err != nil {
		t.Fatal(err)
	}
	root, err := p.Filter(scan, expr.Col("age").Gt(expr.Lit(30)))
	if err != nil {
		t.Fatal(err)
	}
	out, err := OptimizeWith(p, root, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out != root {
		t.Errorf("empty rule set rewrote the plan: %d -> %d", root, out)
	}
}
