package forge

import (
	"iter"
	"math"
)

// ResourceLedger maps resource ids to unsigned counts. It is the single source
// of truth for currencies and crafting materials of one session. Absent ids
// read as zero and no operation can take a count below zero.
type ResourceLedger struct {
	counts     map[string]uint64
	order      []string
	capacities map[string]uint64
	retired    map[string]struct{}
}

// NewResourceLedger creates an empty ledger.
func NewResourceLedger() *ResourceLedger {
	return &ResourceLedger{
		counts:     make(map[string]uint64),
		capacities: make(map[string]uint64),
		retired:    make(map[string]struct{}),
	}
}

// Get returns the count for id, 0 for unknown ids.
func (l *ResourceLedger) Get(id string) uint64 {
	return l.counts[id]
}

// Has reports whether id has an entry, even a zero one.
func (l *ResourceLedger) Has(id string) bool {
	_, ok := l.counts[id]
	return ok
}

// Retire marks resource ids that older data may still reference. Costs naming
// them are treated as satisfied and never debited.
func (l *ResourceLedger) Retire(ids ...string) {
	for _, id := range ids {
		l.retired[id] = struct{}{}
	}
}

// IsRetired reports whether id was retired.
func (l *ResourceLedger) IsRetired(id string) bool {
	_, ok := l.retired[id]
	return ok
}

// SetCapacity registers a ceiling for id. Counts already above it are clamped.
func (l *ResourceLedger) SetCapacity(id string, capacity uint64) {
	l.capacities[id] = capacity
	if count, ok := l.counts[id]; ok && count > capacity {
		l.counts[id] = capacity
	}
}

// Capacity returns the ceiling registered for id.
func (l *ResourceLedger) Capacity(id string) (uint64, bool) {
	capacity, ok := l.capacities[id]
	return capacity, ok
}

// Capacities returns a copy of all registered ceilings.
func (l *ResourceLedger) Capacities() map[string]uint64 {
	out := make(map[string]uint64, len(l.capacities))
	for id, capacity := range l.capacities {
		out[id] = capacity
	}
	return out
}

// CanAfford reports whether every non-retired entry of cost is covered.
func (l *ResourceLedger) CanAfford(cost Cost) bool {
	for _, entry := range cost.merged() {
		if l.IsRetired(entry.Resource) {
			continue
		}
		if l.counts[entry.Resource] < entry.Amount {
			return false
		}
	}
	return true
}

// Shortfall lists every resource of cost the ledger cannot cover, in cost
// order. It is empty when the cost is affordable.
func (l *ResourceLedger) Shortfall(cost Cost) []Shortfall {
	var shortfalls []Shortfall
	for _, entry := range cost.merged() {
		if l.IsRetired(entry.Resource) {
			continue
		}
		have := l.counts[entry.Resource]
		if have < entry.Amount {
			shortfalls = append(shortfalls, Shortfall{Resource: entry.Resource, Needed: entry.Amount, Have: have})
		}
	}
	return shortfalls
}

// Spend debits cost. It checks affordability first and returns an
// *InsufficientResourcesError without touching the ledger when the cost is not
// covered.
func (l *ResourceLedger) Spend(cost Cost) error {
	// Check the whole cost before any mutation
	if shortfalls := l.Shortfall(cost); len(shortfalls) > 0 {
		return &InsufficientResourcesError{Shortfalls: shortfalls}
	}

	for _, entry := range cost.merged() {
		if l.IsRetired(entry.Resource) || entry.Amount == 0 {
			continue
		}
		l.counts[entry.Resource] = saturatingSub(l.counts[entry.Resource], entry.Amount)
	}
	return nil
}

// Add increases id by amount, saturating at the uint64 maximum. Capacities are
// not applied.
func (l *ResourceLedger) Add(id string, amount uint64) {
	if amount == 0 {
		return
	}
	l.set(id, saturatingAdd(l.counts[id], amount))
}

// AddClamped adds amount to id and clamps the result to capacity. It returns
// the amount actually added.
func (l *ResourceLedger) AddClamped(id string, amount, capacity uint64) uint64 {
	before := l.counts[id]
	after := saturatingAdd(before, amount)
	if after > capacity {
		after = capacity
	}
	if after < before {
		// Already above the ceiling; never take anything away.
		return 0
	}
	l.set(id, after)
	return after - before
}

// Grant adds amount to id, clamping to the registered capacity if there is
// one. It returns the amount actually added.
func (l *ResourceLedger) Grant(id string, amount uint64) uint64 {
	if capacity, ok := l.capacities[id]; ok {
		return l.AddClamped(id, amount, capacity)
	}
	before := l.counts[id]
	l.Add(id, amount)
	return l.counts[id] - before
}

// IncrementOrInsert inserts id at amount if absent, else adds amount.
func (l *ResourceLedger) IncrementOrInsert(id string, amount uint64) {
	l.set(id, saturatingAdd(l.counts[id], amount))
}

// Entries yields resources in insertion order.
func (l *ResourceLedger) Entries() iter.Seq2[string, uint64] {
	return func(yield func(string, uint64) bool) {
		for _, id := range l.order {
			if !yield(id, l.counts[id]) {
				return
			}
		}
	}
}

// Order returns resource ids in insertion order.
func (l *ResourceLedger) Order() []string {
	return append([]string(nil), l.order...)
}

// Snapshot returns a copy of all counts.
func (l *ResourceLedger) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, len(l.counts))
	for id, count := range l.counts {
		out[id] = count
	}
	return out
}

// Len returns the number of resource entries.
func (l *ResourceLedger) Len() int {
	return len(l.order)
}

func (l *ResourceLedger) set(id string, count uint64) {
	if _, ok := l.counts[id]; !ok {
		l.order = append(l.order, id)
	}
	l.counts[id] = count
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
