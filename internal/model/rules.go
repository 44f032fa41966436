package model

import "time"

// The transition rules below are shared by the authoritative engine and by
// observers applying an optimistic prediction. They never touch storage.

// ShouldBeCompleted is the derived completion condition
func (r *Room) ShouldBeCompleted() bool {
	return r.TargetCount > 0 && r.TotalCount >= r.TargetCount
}

// Evaluate re-derives IsCompleted and CompletedAt from the counters.
// CompletedAt is stamped only on the false->true edge and cleared on true->false.
// It reports whether the room just became completed.
func (r *Room) Evaluate(now time.Time) bool {
	done := r.ShouldBeCompleted()
	switch {
	case done && !r.IsCompleted:
		r.IsCompleted = true
		t := now
		r.CompletedAt = &t
		return true
	case !done:
		r.IsCompleted = false
		r.CompletedAt = nil
	}
	return false
}

// Touch records an interaction
func (r *Room) Touch(now time.Time) {
	t := now
	r.LastActive = &t
}

// ApplyTap adds one to the total. It returns false without changing anything
// when the room is already completed.
func (r *Room) ApplyTap(now time.Time) bool {
	if r.IsCompleted {
		return false
	}
	r.TotalCount++
	r.Evaluate(now)
	r.Touch(now)
	return true
}

// ApplyBulkAdjust adds a signed amount to the total, floored at zero.
// Completion fires at or past the target, so a single credit may overshoot.
func (r *Room) ApplyBulkAdjust(amount int, now time.Time) {
	if amount == 0 {
		return
	}
	r.TotalCount = clampZero(r.TotalCount + amount)
	r.Evaluate(now)
	r.Touch(now)
}

// ApplyReset zeroes the total and reopens the room
func (r *Room) ApplyReset(now time.Time) {
	r.TotalCount = 0
	r.IsCompleted = false
	r.CompletedAt = nil
	r.Touch(now)
}

// ApplyTarget replaces the target and re-evaluates against the existing total
func (r *Room) ApplyTarget(target int, now time.Time) {
	r.TargetCount = target
	r.Evaluate(now)
	r.Touch(now)
}

// AddCount adjusts the personal count, floored at zero
func (p *Participant) AddCount(delta int) {
	p.PersonalCount = clampZero(p.PersonalCount + delta)
}

func clampZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
