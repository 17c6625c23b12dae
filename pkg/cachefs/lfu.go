package cachefs

// lfuPolicy keeps the queue ascending by reference count.
// Blocks with equal counts stay in the order they reached that count, oldest first.
type lfuPolicy struct {
	q     *evictionQueue
	store *blockStore
}

func newLFUPolicy(store *blockStore) *lfuPolicy {
	return &lfuPolicy{
		q:     newEvictionQueue(),
		store: store,
	}
}

// touch increments the reference count of b and moves it right before the
// first block with a strictly greater count, or to the tail if there is none.
func (p *lfuPolicy) touch(b *block) {
	b.referenceNum++

	// every block in front of b has a count <= the old count of b, so the
	// insertion point can only be behind b.
	start := p.q.dummy.next
	if n, ok := p.q.nodes[b.id]; ok {
		start = n.next
		p.q.remove(b.id)
	}

	mark := start
	for ; mark != &p.q.dummy; mark = mark.next {
		if p.store.get(mark.id).referenceNum > b.referenceNum {
			break
		}
	}
	p.q.insertBefore(b.id, mark)
}

func (p *lfuPolicy) selectVictim() (int, bool) {
	return p.q.front()
}

func (p *lfuPolicy) remove(id int) {
	p.q.remove(id)
}

func (p *lfuPolicy) queue() *evictionQueue {
	return p.q
}

func (p *lfuPolicy) reset() {
	p.q.reset()
}
