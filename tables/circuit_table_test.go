package tables

import "testing"

func TestCircuitTableAllocateIDUnique(t *testing.T) {
	ct := NewCircuitTable()
	seen := make(map[uint32]bool)
	for i := 0; i < 100; i++ {
		id, err := ct.AllocateID()
		if err != nil {
			t.Fatalf("AllocateID: %v", err)
		}
		if seen[id] {
			t.Fatalf("AllocateID returned a duplicate id %d", id)
		}
		seen[id] = true
	}
}

func TestCircuitTableInsertLookupRemove(t *testing.T) {
	ct := NewCircuitTable()
	ct.Insert(8080, 42)

	id, ok := ct.Lookup(8080)
	if !ok || id != 42 {
		t.Fatalf("Lookup(8080) = (%d, %v), want (42, true)", id, ok)
	}

	if _, ok := ct.Lookup(9090); ok {
		t.Fatal("Lookup(9090) should miss")
	}

	ct.Remove(42)
	if _, ok := ct.Lookup(8080); ok {
		t.Fatal("Lookup(8080) should miss after Remove(42)")
	}
}
