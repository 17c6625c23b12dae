package cachefs

// lruPolicy keeps the queue ordered from least to most recently used.
type lruPolicy struct {
	q *evictionQueue
}

func newLRUPolicy() *lruPolicy {
	return &lruPolicy{q: newEvictionQueue()}
}

func (p *lruPolicy) touch(b *block) {
	p.q.remove(b.id)
	p.q.pushBack(b.id)
}

func (p *lruPolicy) selectVictim() (int, bool) {
	return p.q.front()
}

func (p *lruPolicy) remove(id int) {
	p.q.remove(id)
}

func (p *lruPolicy) queue() *evictionQueue {
	return p.q
}

func (p *lruPolicy) reset() {
	p.q.reset()
}
