package cachefs

// evictionPolicy owns the ordering of the resident blocks and picks eviction victims.
type evictionPolicy interface {
	// touch records a use of b. It is called exactly once for every block served,
	// in ascending block number order within a single read. A freshly loaded block
	// enters the queue through its first touch.
	touch(b *block)

	// selectVictim returns the id of the block to evict without changing residency.
	// returns false if the queue is empty.
	selectVictim() (int, bool)

	// remove drops id from the queue. Used once the cache evicts the victim.
	remove(id int)

	// queue returns the ordering structure, head first.
	queue() *evictionQueue

	// reset drops every id.
	reset()
}

// newEvictionPolicy creates the policy for the configured algorithm.
func newEvictionPolicy(options *Options, store *blockStore) evictionPolicy {
	switch options.Algorithm {
	case LFU:
		return newLFUPolicy(store)
	case FBR:
		return newFBRPolicy(store, options.OldFraction, options.NewFraction)
	}
	return newLRUPolicy()
}
