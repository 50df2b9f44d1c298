package engine

import (
	"fmt"
	"testing"
)

func TestRandomRollerBoundaries(t *testing.T) {
	r := RandomRoller{}
	for i := 0; i < 1000; i++ {
		if r.Admit("1.2.3.4", "rule", 0) {
			t.Fatal("percentage 0 must never admit")
		}
		if !r.Admit("1.2.3.4", "rule", 100) {
			t.Fatal("percentage 100 must always admit")
		}
	}
	if r.Admit("1.2.3.4", "rule", -5) {
		t.Error("negative percentage must never admit")
	}
	if !r.Admit("1.2.3.4", "rule", 150) {
		t.Error("percentage above 100 must always admit")
	}
}

func TestRandomRollerDistribution(t *testing.T) {
	r := RandomRoller{}
	const n = 10000
	const percentage = 30

	admitted := 0
	for i := 0; i < n; i++ {
		if r.Admit("1.2.3.4", "rule", percentage) {
			admitted++
		}
	}

	// Expect roughly 30% of 10000 = 3000; allow a wide band so the test
	// is not flaky (5 sigma is about +-230 here).
	if admitted < 2600 || admitted > 3400 {
		t.Errorf("admitted %d of %d at %d%%, expected near %d", admitted, n, percentage, n*percentage/100)
	}
}

func TestStickyRollerDeterministic(t *testing.T) {
	r := StickyRoller{Salt: "salt"}

	for p := 1; p < 100; p += 7 {
		first := r.Admit("10.0.0.1", "rule-a", p)
		for i := 0; i < 50; i++ {
			if got := r.Admit("10.0.0.1", "rule-a", p); got != first {
				t.Fatalf("sticky decision changed between calls at %d%%", p)
			}
		}
	}
}

func TestStickyRollerBoundaries(t *testing.T) {
	r := StickyRoller{Salt: "salt"}
	if r.Admit("10.0.0.1", "rule", 0) {
		t.Error("percentage 0 must never admit")
	}
	if !r.Admit("10.0.0.1", "rule", 100) {
		t.Error("percentage 100 must always admit")
	}
	if r.Admit("", "rule", 50) {
		t.Error("empty subject must never admit")
	}
}

func TestStickyRollerMonotonic(t *testing.T) {
	// Raising a rule's percentage must only ever add subjects, never drop
	// one that was already admitted.
	r := StickyRoller{Salt: "salt"}
	for i := 0; i < 200; i++ {
		subject := fmt.Sprintf("10.0.0.%d", i)
		admittedAt := -1
		for p := 0; p <= 100; p += 5 {
			admitted := r.Admit(subject, "rule", p)
			if admitted && admittedAt == -1 {
				admittedAt = p
			}
			if !admitted && admittedAt != -1 {
				t.Fatalf("subject %s admitted at %d%% but rejected at %d%%", subject, admittedAt, p)
			}
		}
	}
}

func TestStickyRollerSaltChangesBuckets(t *testing.T) {
	a := StickyRoller{Salt: "one"}
	b := StickyRoller{Salt: "two"}

	differs := false
	for i := 0; i < 200; i++ {
		subject := fmt.Sprintf("10.0.0.%d", i)
		if a.Admit(subject, "rule", 50) != b.Admit(subject, "rule", 50) {
			differs = true
			break
		}
	}
	if !differs {
		t.Error("expected different salts to produce different buckets for at least one subject")
	}
}

func TestFixedRoller(t *testing.T) {
	if !FixedRoller(true).Admit("x", "y", 0) {
		t.Error("FixedRoller(true) must admit regardless of percentage")
	}
	if FixedRoller(false).Admit("x", "y", 100) {
		t.Error("FixedRoller(false) must reject regardless of percentage")
	}
}
