package engine

import (
	"math/rand"

	"github.com/cespare/xxhash/v2"
)

// Roller decides whether a visit is admitted by a rule's percentage gate.
// The subject is the visitor identity (client IP) and ruleID salts the
// decision so one rule's outcome does not predict another's.
//
// Implementations must guarantee the boundary behavior: percentage 0 never
// admits and percentage 100 always admits.
type Roller interface {
	Admit(subject, ruleID string, percentage int) bool
}

// RandomRoller draws a fresh uniform value per visit, so repeat visits by
// the same client re-roll. This is the default admission behavior.
type RandomRoller struct{}

func (RandomRoller) Admit(_, _ string, percentage int) bool {
	if percentage <= 0 {
		return false
	}
	if percentage >= 100 {
		return true
	}
	// Draw in [0,100); admit when the draw falls below the threshold.
	return rand.Intn(100) < percentage
}

// StickyRoller buckets each (subject, rule) pair deterministically, so the
// same visitor gets the same decision on every visit and raising a rule's
// percentage only ever adds visitors.
type StickyRoller struct {
	Salt string
}

func (s StickyRoller) Admit(subject, ruleID string, percentage int) bool {
	if percentage <= 0 || subject == "" {
		return false
	}
	if percentage >= 100 {
		return true
	}
	bucket := xxhash.Sum64String(subject+":"+ruleID+":"+s.Salt) % 100
	return int(bucket) < percentage
}

// FixedRoller always returns its value. Intended for tests.
type FixedRoller bool

func (f FixedRoller) Admit(_, _ string, _ int) bool { return bool(f) }
