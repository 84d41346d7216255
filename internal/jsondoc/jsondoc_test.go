package jsondoc

import (
	"encoding/json"
	"testing"
)

func TestParseObject_KeyOrder(t *testing.T) {
	doc := []byte(`{"zeta":1,"alpha":2,"mid":3}`)
	obj, err := ParseObject(doc)
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}
	want := []string{"zeta", "alpha", "mid"}
	keys := obj.Keys()
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(keys))
	}
	for i, k := range want {
		if keys[i] != k {
			t.Errorf("key %d: expected %q, got %q", i, k, keys[i])
		}
	}
}

func TestParse_Scalars(t *testing.T) {
	obj, err := ParseObject([]byte(`{"s":"x","n":42,"f":1.5,"b":true,"z":null}`))
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}
	if v, _ := obj.Get("s"); v != "x" {
		t.Errorf("string: got %v", v)
	}
	if v, _ := obj.Get("n"); v != json.Number("42") {
		t.Errorf("number: got %v", v)
	}
	if v, _ := obj.Get("b"); v != true {
		t.Errorf("bool: got %v", v)
	}
	if v, ok := obj.Get("z"); !ok || v != nil {
		t.Errorf("null: got %v present=%v", v, ok)
	}
}

func TestParse_TrailingData(t *testing.T) {
	if _, err := Parse([]byte(`{"a":1} garbage`)); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestDump_PreservesOrder(t *testing.T) {
	src := `{"b":1,"a":{"y":true,"x":null},"c":[1,"two"]}`
	v, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := Dump(v); got != src {
		t.Errorf("Dump: expected %s, got %s", src, got)
	}
}

func TestSet_ReplacesInPlace(t *testing.T) {
	obj, err := ParseObject([]byte(`{"id":0,"name":"Bob"}`))
	if err != nil {
		t.Fatalf("ParseObject failed: %v", err)
	}
	obj.Set("id", json.Number("7"))
	keys := obj.Keys()
	if keys[0] != "id" || keys[1] != "name" {
		t.Errorf("key order changed: %v", keys)
	}
	if v, _ := obj.Get("id"); v != json.Number("7") {
		t.Errorf("id not replaced: %v", v)
	}
}

func TestRows(t *testing.T) {
	single, _ := Parse([]byte(`{"a":1}`))
	rows, ok := Rows(single)
	if !ok || len(rows) != 1 {
		t.Fatalf("single object: got %d rows, ok=%v", len(rows), ok)
	}

	arr, _ := Parse([]byte(`[{"a":1},{"a":2}]`))
	rows, ok = Rows(arr)
	if !ok || len(rows) != 2 {
		t.Fatalf("array: got %d rows, ok=%v", len(rows), ok)
	}

	empty, _ := Parse([]byte(`[]`))
	rows, ok = Rows(empty)
	if !ok || len(rows) != 0 {
		t.Fatalf("empty array: got %d rows, ok=%v", len(rows), ok)
	}

	scalar, _ := Parse([]byte(`"nope"`))
	if _, ok := Rows(scalar); ok {
		t.Fatal("scalar should not yield rows")
	}
}

func TestSample(t *testing.T) {
	arr, _ := Parse([]byte(`[{"first":true},{"second":true}]`))
	obj, ok := Sample(arr)
	if !ok {
		t.Fatal("expected sample from array")
	}
	if _, present := obj.Get("first"); !present {
		t.Error("sample should be the first element")
	}

	empty, _ := Parse([]byte(`[]`))
	if _, ok := Sample(empty); ok {
		t.Error("empty array should have no sample")
	}
}
