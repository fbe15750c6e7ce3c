package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vegasq/lazyframe/column"
	"github.com/vegasq/lazyframe/expr"
	"github.com/vegasq/lazyframe/qerror"
	"github.com/vegasq/lazyframe/source"
)

// schemaOnlySource declares a schema but refuses to be read, proving
// that plan construction never touches data.
type schemaOnlySource struct {
	schema *column.Schema
}

func (s *schemaOnlySource) Schema() (*column.Schema, error) {
	return s.schema, nil
}

func (s *schemaOnlySource) Open(ctx context.Context, spec source.ScanSpec) (source.ChunkReader, error) {
	return nil, fmt.Errorf("plan construction must not open sources")
}

func usersSource(t *testing.T) source.Source {
	t.Helper()
	s, err := column.NewSchema(
		column.Field{Name: "id", Type: column.Int64},
		column.Field{Name: "name", Type: column.String},
		column.Field{Name: "age", Type: column.Int64},
		column.Field{Name: "score", Type: column.Float64},
	)
	if err != nil {
		t.Fatal(err)
	}
	return &schemaOnlySource{schema: s}
}

func TestBuildNeverReadsData(t *testing.T) {
	p := New()
	scan, err := p.Scan(usersSource(t))
	if err != nil {
		t.Fatal(err)
	}
	filtered, err := p.Filter(scan, expr.Col("age").Gt(expr.Lit(30)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Sort(filtered, []string{"name"}, nil); err != nil {
		t.Fatal(err)
	}
	// Reaching this point without the source's Open firing is the test.
}

func TestSchemaResolution(t *testing.T) {
	src := usersSource(t)

	tests := []struct {
		name       string
		build      func(p *Plan, scan NodeID) (NodeID, error)
		wantSchema string
		wantErr    bool
	}{
		{
			name: "filter passes schema through",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Filter(scan, expr.Col("age").Gt(expr.Lit(18)))
			},
			wantSchema: "id:int64, name:string, age:int64, score:float64",
		},
		{
			name: "filter predicate must be bool",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Filter(scan, expr.Col("age").Add(expr.Lit(1)))
			},
			wantErr: true,
		},
		{
			name: "filter on unknown column",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Filter(scan, expr.Col("missing").Gt(expr.Lit(1)))
			},
			wantErr: true,
		},
		{
			name: "project declares output list",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Project(scan, []*expr.Expr{
					expr.Col("name"),
					expr.Col("age").Add(expr.Lit(1)).As("next_age"),
				})
			},
			wantSchema: "name:string, next_age:int64",
		},
		{
			name: "project rejects duplicate output names",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Project(scan, []*expr.Expr{expr.Col("age"), expr.Lit(1).As("age")})
			},
			wantErr: true,
		},
		{
			name: "project rejects aggregates",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Project(scan, []*expr.Expr{expr.Sum(expr.Col("age"))})
			},
			wantErr: true,
		},
		{
			name: "aggregate schema is keys plus agg results",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Aggregate(scan, []string{"name"}, []*expr.Expr{
					expr.Sum(expr.Col("age")),
					expr.Mean(expr.Col("age")).As("avg_age"),
					expr.CountAll(),
				})
			},
			// mean of an integer column yields a float column.
			wantSchema: "name:string, age:int64, avg_age:float64, count:int64",
		},
		{
			name: "aggregate rejects plain expressions",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Aggregate(scan, []string{"name"}, []*expr.Expr{expr.Col("age")})
			},
			wantErr: true,
		},
		{
			name: "aggregate unknown group key",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Aggregate(scan, []string{"missing"}, []*expr.Expr{expr.CountAll()})
			},
			wantErr: true,
		},
		{
			name: "sort unknown key",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Sort(scan, []string{"missing"}, nil)
			},
			wantErr: true,
		},
		{
			name: "distinct subset passes schema through",
			build: func(p *Plan, scan NodeID) (NodeID, error) {
				return p.Distinct(scan, []string{"name"})
			},
			wantSchema: "id:int64, name:string, age:int64, score:float64",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New()
			scan, err := p.Scan(src)
			if err != nil {
				t.Fatal(err)
			}
			id, err := tt.build(p, scan)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected SchemaError, got success")
				}
				var se *qerror.SchemaError
				if !errors.As(err, &se) {
					t.Errorf("error is %T, want *qerror.SchemaError", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := p.Schema(id).String(); got != tt.wantSchema {
				t.Errorf("schema = %s, want %s", got, tt.wantSchema)
			}
		})
	}
}

func TestJoinSchema(t *testing.T) {
	p := New()
	left, err := p.Scan(usersSource(t))
	if err != nil {
		t.Fatal(err)
	}

	ordersSchema, _ := column.NewSchema(
		column.Field{Name: "id", Type: column.Int64},
		column.Field{Name: "total", Type: column.Float64},
	)
	right, err := p.Scan(&schemaOnlySource{schema: ordersSchema})
	if err != nil {
		t.Fatal(err)
	}

	// Same-named key pair merges into a single output column.
	j, err := p.Join(left, right, []string{"id"}, []string{"id"}, JoinInner)
	if err != nil {
		t.Fatal(err)
	}
	want := "id:int64, name:string, age:int64, score:float64, total:float64"
	if got := p.Schema(j).String(); got != want {
		t.Errorf("join schema = %s, want %s", got, want)
	}

	// Key type mismatch is a schema error.
	if _, err := p.Join(left, right, []string{"name"}, []string{"id"}, JoinInner); err == nil {
		t.Error("expected error for mismatched key types")
	}

	// Non-key collision is a schema error.
	clashSchema, _ := column.NewSchema(
		column.Field{Name: "user", Type: column.Int64},
		column.Field{Name: "name", Type: column.String},
	)
	clash, err := p.Scan(&schemaOnlySource{schema: clashSchema})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Join(left, clash, []string{"id"}, []string{"user"}, JoinInner); err == nil {
		t.Error("expected error for colliding non-key column")
	}
}

func TestInterningSharesIdenticalNodes(t *testing.T) {
	p := New()
	src := usersSource(t)
	scan1, err := p.Scan(src)
	if err != nil {
		t.Fatal(err)
	}
	scan2, err := p.Scan(src)
	if err != nil {
		t.Fatal(err)
	}
	if scan1 != scan2 {
		t.Errorf("identical scans interned to different IDs: %d vs %d", scan1, scan2)
	}

	pred := expr.Col("age").Gt(expr.Lit(30))
	f1, _ := p.Filter(scan1, pred)
	f2, _ := p.Filter(scan2, expr.Col("age").Gt(expr.Lit(30)))
	if f1 != f2 {
		t.Errorf("structurally identical filters interned to different IDs: %d vs %d", f1, f2)
	}

	// A shared prefix with two continuations keeps one copy of the prefix.
	before := p.Len()
	_, _ = p.Sort(f1, []string{"name"}, nil)
	_, _ = p.Limit(f1, 10)
	if p.Len() != before+2 {
		t.Errorf("two continuations added %d nodes, want 2", p.Len()-before)
	}
}

func TestGraftSharesAcrossPlans(t *testing.T) {
	src := usersSource(t)

	p1 := New()
	root1, err := p1.Scan(src)
	if err != nil {
		t.Fatal(err)
	}

	p2 := New()
	scan2, err := p2.Scan(src)
	if err != nil {
		t.Fatal(err)
	}
	filtered2, err := p2.Filter(scan2, expr.Col("age").Gt(expr.Lit(21)))
	if err != nil {
		t.Fatal(err)
	}

	grafted, err := p1.Graft(p2, filtered2)
	if err != nil {
		t.Fatal(err)
	}
	// The grafted scan references the same source and collapses onto
	// the existing scan node; only the filter is new.
	if p1.Len() != 2 {
		t.Errorf("plan has %d nodes after graft, want 2", p1.Len())
	}
	if p1.Node(grafted).Input != root1 {
		t.Errorf("grafted filter input = %d, want shared scan %d", p1.Node(grafted).Input, root1)
	}
}

func TestDescribe(t *testing.T) {
	p := New()
	scan, _ := p.Scan(usersSource(t))
	f, _ := p.Filter(scan, expr.Col("age").Ge(expr.Lit(18)))
	root, _ := p.Sort(f, []string{"age"}, []bool{true})

	out := p.Describe(root)
	for _, want := range []string{"sort", "filter", "scan", "keys=[age]", "(col(age) >= 18:int64)"} {
		if !strings.Contains(out, want) {
			t.Errorf("Describe output missing %q:\n%s", want, out)
		}
	}
}
