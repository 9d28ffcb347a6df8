package keypool

import (
	"errors"
	"fmt"
	"time"
)

// Pool is the ordered collection of records. Slice order is rotation order and
// only changes through Add (append) and Remove.
//
// Every mutating method works in place on the slice; callers persist the pool
// through a Store after any mutation.
type Pool []KeyRecord

func (p Pool) index(name string) int {
	for i := range p {
		if p[i].Name == name {
			return i
		}
	}
	return -1
}

func (p Pool) clearCurrent() {
	for i := range p {
		p[i].Current = false
	}
}

func (p Pool) firstActive() int {
	for i := range p {
		if p[i].Active {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no slice storage with p.
func (p Pool) Clone() Pool {
	if p == nil {
		return nil
	}
	return append(Pool(make([]KeyRecord, 0, len(p))), p...)
}

// Find returns a copy of the named record.
func (p Pool) Find(name string) (KeyRecord, bool) {
	i := p.index(name)
	if i < 0 {
		return KeyRecord{}, false
	}
	return p[i], true
}

// Current returns the active record flagged current without touching the pool.
func (p Pool) Current() (KeyRecord, bool) {
	for i := range p {
		if p[i].Active && p[i].Current {
			return p[i], true
		}
	}
	return KeyRecord{}, false
}

// Add appends a record. The first record added to an empty pool becomes current.
// A duplicate name leaves the pool untouched.
func (p *Pool) Add(rec KeyRecord) error {
	if p.index(rec.Name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateName, rec.Name)
	}
	rec.Active = true
	rec.Exhausted = false
	rec.Current = len(*p) == 0
	rec.LastUsed = nil
	rec.LastMarkedExhausted = nil
	*p = append(*p, rec)
	return nil
}

// Remove deletes the named record and reports whether it existed.
func (p *Pool) Remove(name string) bool {
	i := p.index(name)
	if i < 0 {
		return false
	}
	*p = append((*p)[:i], (*p)[i+1:]...)
	return true
}

// GetActive returns the current active record. When no active record is flagged
// current, the first active record in pool order is adopted as current.
// It returns false only when the pool has no active record.
func (p Pool) GetActive(now time.Time) (KeyRecord, bool) {
	if rec, ok := p.Current(); ok {
		return rec, true
	}
	i := p.firstActive()
	if i < 0 {
		return KeyRecord{}, false
	}
	// a current flag left on an inactive record would break the single-current rule
	p.clearCurrent()
	p[i].Current = true
	p[i].LastUsed = stamp(now)
	return p[i], true
}

// EnsureCurrent normalizes a freshly loaded pool so that exactly one active
// record is current whenever any record is active, and reports whether it
// changed anything.
func (p Pool) EnsureCurrent(now time.Time) bool {
	current := -1
	changed := false
	for i := range p {
		if !p[i].Current {
			continue
		}
		if p[i].Active && current < 0 {
			current = i
			continue
		}
		p[i].Current = false
		changed = true
	}
	if current >= 0 {
		return changed
	}
	if i := p.firstActive(); i >= 0 {
		p[i].Current = true
		p[i].LastUsed = stamp(now)
		return true
	}
	return changed
}

// Advance selects the next active record after from, wrapping around the pool,
// and makes it the only current record. The slot of from itself is tried last.
// When from is unknown the first active record is selected. It returns false
// when no record is active.
func (p Pool) Advance(from string, now time.Time) (KeyRecord, bool) {
	p.clearCurrent()
	n := len(p)
	start := p.index(from)
	if start < 0 {
		i := p.firstActive()
		if i < 0 {
			return KeyRecord{}, false
		}
		return p.selectAt(i, now), true
	}
	for step := 1; step <= n; step++ {
		i := (start + step) % n
		if p[i].Active {
			return p.selectAt(i, now), true
		}
	}
	return KeyRecord{}, false
}

func (p Pool) selectAt(i int, now time.Time) KeyRecord {
	p[i].Current = true
	p[i].LastUsed = stamp(now)
	return p[i]
}

// MarkExhausted takes the named record out of rotation. It never selects a
// replacement; call Advance for that.
func (p Pool) MarkExhausted(name string, now time.Time) bool {
	i := p.index(name)
	if i < 0 {
		return false
	}
	p[i].Active = false
	p[i].Current = false
	p[i].Exhausted = true
	p[i].LastMarkedExhausted = stamp(now)
	return true
}

// Activate returns the named record to rotation without making it current.
func (p Pool) Activate(name string) bool {
	i := p.index(name)
	if i < 0 {
		return false
	}
	p[i].Active = true
	p[i].Exhausted = false
	return true
}

// ResetAll reactivates every record and makes the first one current.
func (p Pool) ResetAll() {
	for i := range p {
		p[i].Active = true
		p[i].Exhausted = false
		p[i].Current = false
	}
	if len(p) > 0 {
		p[0].Current = true
	}
}

// SelectCurrent is the operator override: the named record becomes the only
// current record whatever its active flag. Exhausted records are refused so that
// an exhausted record is never current; the pool is left untouched then.
func (p Pool) SelectCurrent(name string, now time.Time) bool {
	i := p.index(name)
	if i < 0 || p[i].Exhausted {
		return false
	}
	p.clearCurrent()
	p.selectAt(i, now)
	return true
}

// Validate reports every violated pool invariant.
func (p Pool) Validate() error {
	var errs []error
	seen := make(map[string]struct{}, len(p))
	current := 0
	for _, r := range p {
		if _, dup := seen[r.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateName, r.Name))
		}
		seen[r.Name] = struct{}{}
		if r.Current {
			current++
		}
		if r.Exhausted && (r.Active || r.Current) {
			errs = append(errs, fmt.Errorf("exhausted key %s is still active or current", r.Name))
		}
	}
	if current > 1 {
		errs = append(errs, fmt.Errorf("%d keys are marked current", current))
	}
	return errors.Join(errs...)
}
