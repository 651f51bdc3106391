package bloom

import (
	"fmt"
	"testing"
)

func TestNoFalseNegatives(t *testing.T) {
	f := New(1000, 0.01)
	keys := make([][]byte, 1000)
	for i := range keys {
		keys[i] = []byte(fmt.Sprintf("territory\x00\x00LABEL %d", i))
		f.Add(keys[i])
	}

	for i, key := range keys {
		if !f.MayContain(key) {
			t.Fatalf("false negative for key %d", i)
		}
	}
	if f.Count() != 1000 {
		t.Errorf("count = %d, want 1000", f.Count())
	}
}

func TestFalsePositiveRate(t *testing.T) {
	f := New(10000, 0.01)
	for i := 0; i < 10000; i++ {
		f.Add([]byte(fmt.Sprintf("added-%d", i)))
	}

	falsePositives := 0
	probes := 10000
	for i := 0; i < probes; i++ {
		if f.MayContain([]byte(fmt.Sprintf("never-added-%d", i))) {
			falsePositives++
		}
	}

	// Allow generous slack over the 1% target; the point is that misses
	// stay rare, not the exact rate.
	if rate := float64(falsePositives) / float64(probes); rate > 0.05 {
		t.Errorf("false positive rate %.3f exceeds 0.05", rate)
	}
}

func TestEmptyFilterContainsNothing(t *testing.T) {
	f := New(100, 0.01)
	if f.MayContain([]byte("anything")) {
		t.Error("empty filter should contain nothing")
	}
}

func TestDegenerateParameters(t *testing.T) {
	// Bad sizing inputs fall back to sane defaults instead of panicking.
	f := New(0, 2.0)
	f.Add([]byte("key"))
	if !f.MayContain([]byte("key")) {
		t.Error("filter with fallback parameters should still work")
	}
}
