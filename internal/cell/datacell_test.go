package cell

import "testing"

func TestDatacell_ScalarRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		d    Datacell
	}{
		{"null", Null()},
		{"bool_true", NewBool(true)},
		{"bool_false", NewBool(false)},
		{"uint", NewUint(42)},
		{"int_negative", NewInt(-7)},
		{"float", NewFloat(3.5)},
		{"bin", NewBin([]byte{1, 2, 3})},
		{"str", NewStr("hello")},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			clone := c.d.Clone()
			if !c.d.Equal(clone) {
				t.Fatalf("clone not equal to original for %s", c.name)
			}
		})
	}
}

func TestDatacell_AccessorsRejectWrongClass(t *testing.T) {
	d := NewUint(5)
	if _, ok := d.Bool(); ok {
		t.Fatal("Bool() should fail on a uint cell")
	}
	if _, ok := d.Str(); ok {
		t.Fatal("Str() should fail on a uint cell")
	}
	v, ok := d.Uint()
	if !ok || v != 5 {
		t.Fatalf("Uint() = %d, %v; want 5, true", v, ok)
	}
}

func TestDatacell_NullIsNullableOnly(t *testing.T) {
	n := Null()
	if !n.IsNull() {
		t.Fatal("Null() should report IsNull true")
	}
	if NewUint(0).IsNull() {
		t.Fatal("a zero uint is not null")
	}
}

func TestDatacell_CloneIsIndependent(t *testing.T) {
	d := NewBin([]byte{1, 2, 3})
	clone := d.Clone()
	b, _ := clone.Bin()
	b[0] = 99
	orig, _ := d.Bin()
	if orig[0] == 99 {
		t.Fatal("mutating clone's bytes affected the original")
	}
}

func TestDatacell_ListNestedEqual(t *testing.T) {
	a := NewList([]Datacell{NewUint(1), NewStr("x"), NewList([]Datacell{NewBool(true)})})
	b := a.Clone()
	if !a.Equal(b) {
		t.Fatal("nested list clone should be equal to original")
	}
	c := NewList([]Datacell{NewUint(1), NewStr("y")})
	if a.Equal(c) {
		t.Fatal("lists with different contents should not be equal")
	}
}

func TestDatacell_DifferentClassesNeverEqual(t *testing.T) {
	if NewUint(1).Equal(NewInt(1)) {
		t.Fatal("uint(1) must not equal int(1): different classes")
	}
}

func TestDatacell_NewQWValuePreservesBits(t *testing.T) {
	f := NewFloat(2.25)
	rebuilt := NewQWValue(TagClassFloat, f.QW())
	if !f.Equal(rebuilt) {
		t.Fatal("NewQWValue should reconstruct an equal float cell from the same bit pattern")
	}
}
