package nrtest

import (
	"testing"

	"github.com/nrlog/nr/lib/nr"
)

func newHashMapReplica(t *testing.T) *nr.Replica[HashMapOp, HashMapReadOp, HashMapResult] {
	t.Helper()

	l, err := nr.NewLog[HashMapOp](nr.DefaultConfig(), "")
	if err != nil {
		t.Fatalf("NewLog: %v", err)
	}
	r, err := nr.NewReplica[HashMapOp, HashMapReadOp, HashMapResult](l, NewHashMap())
	if err != nil {
		t.Fatalf("NewReplica: %v", err)
	}
	return r
}

func TestHashMapSetGet(t *testing.T) {
	r := newHashMapReplica(t)
	tkn, err := r.Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.ExecuteMut(HashMapOp{Key: "a", Value: []byte("1")}, tkn)
	r.ExecuteMut(HashMapOp{Key: "b", Value: []byte("2")}, tkn)

	got := r.Execute(HashMapReadOp{Key: "a"}, tkn)
	if !got.Found || string(got.Value) != "1" {
		t.Fatalf("get a: %+v", got)
	}

	got = r.Execute(HashMapReadOp{Key: "missing"}, tkn)
	if got.Found {
		t.Fatalf("get missing: expected not found, got %+v", got)
	}
}

func TestHashMapDelete(t *testing.T) {
	r := newHashMapReplica(t)
	tkn, err := r.Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.ExecuteMut(HashMapOp{Key: "a", Value: []byte("1")}, tkn)
	res := r.ExecuteMut(HashMapOp{Key: "a", Delete: true}, tkn)
	if !res.Found || string(res.Value) != "1" {
		t.Fatalf("delete result: %+v", res)
	}

	got := r.Execute(HashMapReadOp{Key: "a"}, tkn)
	if got.Found {
		t.Fatalf("get after delete: expected not found, got %+v", got)
	}
}

func TestHashMapExpiry(t *testing.T) {
	r := newHashMapReplica(t)
	tkn, err := r.Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.ExecuteMut(HashMapOp{Key: "a", Value: []byte("1"), TTLTicks: 2}, tkn)

	// tick 1: still alive
	r.ExecuteMut(HashMapOp{Key: "other", Value: []byte("x")}, tkn)
	if got := r.Execute(HashMapReadOp{Key: "a"}, tkn); !got.Found {
		t.Fatalf("expected a to still be alive after one tick")
	}

	// tick 2, 3: should now be reaped on the next mutation
	r.ExecuteMut(HashMapOp{Key: "other", Value: []byte("y")}, tkn)
	r.ExecuteMut(HashMapOp{Key: "other", Value: []byte("z")}, tkn)

	if got := r.Execute(HashMapReadOp{Key: "a"}, tkn); got.Found {
		t.Fatalf("expected a to have expired, got %+v", got)
	}
}

func TestHashMapHasDoesNotLeakValue(t *testing.T) {
	r := newHashMapReplica(t)
	tkn, err := r.Register()
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	r.ExecuteMut(HashMapOp{Key: "a", Value: []byte("secret")}, tkn)
	got := r.Execute(HashMapReadOp{Key: "a", Has: true}, tkn)
	if !got.Found {
		t.Fatalf("expected Has to report found")
	}
	if got.Value != nil {
		t.Fatalf("Has must not return the value, got %q", got.Value)
	}
}
