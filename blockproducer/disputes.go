// (c) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package blockproducer

import (
	"sync"

	"github.com/luxfi/luxtensor/types"
)

// DisputeClaim is an optimistic-AI fraud claim awaiting its
// challenge-period deadline: at the deadline the claim is processed
// and the defendant is slashed if the claim was invalidated. No
// evidence-submission or challenge-verification subsystem exists
// elsewhere in this module — see DESIGN.md — so resolution here is
// limited to the height-deadline bookkeeping the production loop
// needs to decide whether to slash the defendant.
type DisputeClaim struct {
	Defendant   types.Address
	Deadline    types.Height
	Invalidated bool
}

// disputeTracker holds pending disputes and resolves the ones whose
// deadline has passed.
type disputeTracker struct {
	mu     sync.Mutex
	claims []DisputeClaim
}

func newDisputeTracker() *disputeTracker { return &disputeTracker{} }

// Submit registers a new dispute claim.
func (d *disputeTracker) Submit(c DisputeClaim) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claims = append(d.claims, c)
}

// ProcessDue resolves every claim whose deadline is at or before
// height, slashing the defendant via slash when the claim was
// invalidated, and drops resolved claims from the tracker.
func (d *disputeTracker) ProcessDue(height types.Height, slash func(defendant types.Address)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	remaining := d.claims[:0]
	for _, c := range d.claims {
		if c.Deadline > height {
			remaining = append(remaining, c)
			continue
		}
		if c.Invalidated {
			slash(c.Defendant)
		}
	}
	d.claims = remaining
}

// Pending returns the number of unresolved dispute claims.
func (d *disputeTracker) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claims)
}
