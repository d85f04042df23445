package modal

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResidual(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 0; n < 100; n++ {
		var m, tgt Vector
		for i := range m {
			m[i] = rng.NormFloat64()
			tgt[i] = rng.NormFloat64()
		}
		r := Residual(m, tgt)
		for i := range r {
			if r[i] != m[i]-tgt[i] {
				t.Fatalf("residual[%d] = %v, want %v", i, r[i], m[i]-tgt[i])
			}
		}
		if again := Residual(m, tgt); again != r {
			t.Fatalf("residual not idempotent: %v vs %v", again, r)
		}
	}
}

func TestResidual_DoesNotMutateInputs(t *testing.T) {
	m := VectorFrom(1, 2, 3)
	tgt := VectorFrom(0.5, 0.5, 0.5)
	mCopy, tCopy := m, tgt

	_ = Residual(m, tgt)

	if diff := cmp.Diff(mCopy, m); diff != "" {
		t.Errorf("measured mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(tCopy, tgt); diff != "" {
		t.Errorf("target mutated (-want +got):\n%s", diff)
	}
}

func TestVectorFrom_PadsWithZero(t *testing.T) {
	v := VectorFrom(1.0, 2.0)
	want := Vector{1.0, 2.0}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Errorf("VectorFrom mismatch (-want +got):\n%s", diff)
	}
}

func TestDerived_Within(t *testing.T) {
	tests := []struct {
		name   string
		d      Derived
		within bool
	}{
		{"zeros", Derived{}, true},
		{"upper edge", Derived{0.01, -0.01, 0.01}, true},
		{"just outside", Derived{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0.0100001}, false},
		{"one at 0.02", Derived{0.02}, false},
		{"negative outside", Derived{0, -0.03}, false},
		{"NaN", Derived{math.NaN()}, false},
		{"Inf", Derived{math.Inf(1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Within(0.01); got != tt.within {
				t.Errorf("Within(0.01) = %v, want %v", got, tt.within)
			}
		})
	}
}

func TestVector_Derived(t *testing.T) {
	var v Vector
	for i := range v {
		v[i] = float64(i)
	}
	d := v.Derived()
	for k := range d {
		if d[k] != float64(k+FirstDerivedMode) {
			t.Errorf("derived[%d] = %v, want %v", k, d[k], float64(k+FirstDerivedMode))
		}
	}
}

func TestModeCount(t *testing.T) {
	tests := []struct {
		order int
		want  int
	}{
		{-1, 0},
		{0, 2},
		{3, 11},
		{4, 16},
		{10, 16},
		{20, 16},
	}
	for _, tt := range tests {
		if got := ModeCount(tt.order); got != tt.want {
			t.Errorf("ModeCount(%d) = %d, want %d", tt.order, got, tt.want)
		}
	}
}

func TestVoltages_Validate(t *testing.T) {
	if err := make(Voltages, MaxActuators).Validate(); err != nil {
		t.Errorf("60 voltages should be valid: %v", err)
	}
	if err := make(Voltages, MaxActuators+1).Validate(); !errors.Is(err, ErrTooManyActuators) {
		t.Errorf("expected ErrTooManyActuators, got %v", err)
	}
	if err := (Voltages{1, math.NaN()}).Validate(); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("expected ErrInvalidValue, got %v", err)
	}
}

func TestMask_Has(t *testing.T) {
	if !AllModes.Has(15) {
		t.Error("AllModes should select mode 15")
	}
	m := Mask(1 << 4)
	if !m.Has(4) || m.Has(5) {
		t.Errorf("mask %b selection wrong", m)
	}
	if m.Has(40) {
		t.Error("out of range mode should not be selected")
	}
}

func TestRMS(t *testing.T) {
	d := Derived{3, 4}
	want := math.Sqrt(25.0 / DerivedModes)
	if got := d.RMS(); math.Abs(got-want) > 1e-12 {
		t.Errorf("RMS = %v, want %v", got, want)
	}
}
