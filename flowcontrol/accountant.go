// Package flowcontrol centralizes the termination predicate shared by the
// Collator, Parallel and Sink scaffolds: a stage is done once it has
// observed at least as many EndOfTask signals as the ExpectedNItems count
// it was told to expect.
package flowcontrol

import "sync"

// Accountant tracks completed-task counts against an expected total. The
// expected total starts at infinity so a stage never terminates before it
// has received its one-shot ExpectedNItems message (spec.md §4.4).
type Accountant struct {
	mu       sync.Mutex
	count    int
	expected int
	hasExp   bool
}

// NewAccountant returns an Accountant with no expectation set yet.
func NewAccountant() *Accountant {
	return &Accountant{}
}

// Count records one EndOfTask observation and reports whether the stage has
// now satisfied its expectation.
func (a *Accountant) Count() (done bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count++
	return a.satisfied()
}

// SetExpected records the one-shot ExpectedNItems total. Only the first call
// takes effect; subsequent calls are ignored since the protocol only ever
// sends the count once per stage (spec.md §4.4).
func (a *Accountant) SetExpected(n int) (done bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.hasExp {
		a.expected = n
		a.hasExp = true
	}
	return a.satisfied()
}

// Done reports whether the current count already satisfies the expectation.
func (a *Accountant) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.satisfied()
}

func (a *Accountant) satisfied() bool {
	return a.hasExp && a.count >= a.expected
}

// Observed returns the number of EndOfTask signals seen so far.
func (a *Accountant) Observed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}
