package flowcontrol

import (
	"sync"
	"testing"
)

func TestAccountantNotDoneWithoutExpectation(t *testing.T) {
	a := NewAccountant()
	for i := 0; i < 5; i++ {
		if done := a.Count(); done {
			t.Fatalf("Count() reported done before an expectation was ever set")
		}
	}
	if a.Done() {
		t.Fatalf("Done() true before ExpectedNItems arrives")
	}
}

func TestAccountantDoneAtThreshold(t *testing.T) {
	a := NewAccountant()
	a.Count()
	a.Count()
	if done := a.SetExpected(3); done {
		t.Fatalf("SetExpected(3) with count=2 reported done early")
	}
	if done := a.Count(); !done {
		t.Fatalf("Count() at threshold should report done")
	}
	if a.Observed() != 3 {
		t.Fatalf("Observed() = %d, want 3", a.Observed())
	}
}

func TestAccountantExpectationArrivesFirst(t *testing.T) {
	a := NewAccountant()
	a.SetExpected(2)
	if a.Count() {
		t.Fatalf("Count() after first task should not be done yet")
	}
	if !a.Count() {
		t.Fatalf("Count() after second task should be done")
	}
}

func TestAccountantSetExpectedIsOneShot(t *testing.T) {
	a := NewAccountant()
	a.SetExpected(1)
	a.SetExpected(100)
	if !a.Count() {
		t.Fatalf("second SetExpected call should have been ignored")
	}
}

func TestAccountantConcurrentCount(t *testing.T) {
	a := NewAccountant()
	a.SetExpected(100)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Count()
		}()
	}
	wg.Wait()

	if !a.Done() {
		t.Fatalf("expected Accountant to be done after 100 concurrent counts")
	}
	if a.Observed() != 100 {
		t.Fatalf("Observed() = %d, want 100", a.Observed())
	}
}
