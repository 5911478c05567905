package workerentry

import "testing"

// Scenario A: enough free slots to run the whole batch.
func TestAdmissionDecideAdmitsAll(t *testing.T) {
	a := newAdmission(10)
	admitted, ok := a.decide(4)
	if !ok || admitted != 4 {
		t.Fatalf("decide(4): got (%d, %v), want (4, true)", admitted, ok)
	}
	if a.snapshot() != 6 {
		t.Errorf("free after decide: got %d, want 6", a.snapshot())
	}
}

// Scenario C: no free slots at all — caller must nack and retry.
func TestAdmissionDecideRejectsWhenFull(t *testing.T) {
	a := newAdmission(0)
	admitted, ok := a.decide(3)
	if ok || admitted != 0 {
		t.Fatalf("decide(3) at zero capacity: got (%d, %v), want (0, false)", admitted, ok)
	}
}

// Scenario B: partial capacity — admit a prefix, leave the rest for the
// caller to requeue as a fresh message.
func TestAdmissionDecideSplitsPartial(t *testing.T) {
	a := newAdmission(2)
	admitted, ok := a.decide(5)
	if !ok || admitted != 2 {
		t.Fatalf("decide(5) at capacity 2: got (%d, %v), want (2, true)", admitted, ok)
	}
	if a.snapshot() != 0 {
		t.Errorf("free after partial admit: got %d, want 0", a.snapshot())
	}
}

func TestAdmissionReleaseRestoresCapacity(t *testing.T) {
	a := newAdmission(5)
	admitted, ok := a.decide(5)
	if !ok || admitted != 5 {
		t.Fatalf("decide(5): got (%d, %v)", admitted, ok)
	}
	if a.snapshot() != 0 {
		t.Fatalf("expected 0 free, got %d", a.snapshot())
	}
	a.release(5)
	if a.snapshot() != 5 {
		t.Errorf("free after release: got %d, want 5", a.snapshot())
	}
}
