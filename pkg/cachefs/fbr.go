package cachefs

/*
	FBR keeps a single recency queue, least recently used at the head.
	The queue is split by position:

		head [ OLD | MIDDLE | NEW ] tail

	The NEW partition is the tail fraction newFraction of the queue, the OLD partition
	the head fraction oldFraction. A block in NEW doesn't get its reference count bumped
	when it is touched again, so a burst of reuse right after a load doesn't make it look
	popular. Victims are only chosen from OLD: the least referenced block there, the one
	nearest the head on ties. The head itself is always eligible, even when oldFraction
	is too small to cover a single block.
*/

type fbrPolicy struct {
	q     *evictionQueue
	store *blockStore

	oldFraction, newFraction float64
}

func newFBRPolicy(store *blockStore, oldFraction, newFraction float64) *fbrPolicy {
	return &fbrPolicy{
		q:           newEvictionQueue(),
		store:       store,
		oldFraction: oldFraction,
		newFraction: newFraction,
	}
}

// isNew reports whether id is inside the NEW partition.
// The position is measured from the tail: 0 for the tail, 1 just past the head.
// A block that is not queued yet isn't new.
func (p *fbrPolicy) isNew(id int) bool {
	i := p.q.position(id)
	if i < 0 {
		return false
	}
	n := p.q.len()
	pos := float64(n-(i+1)) / float64(n)
	return pos <= p.newFraction
}

func (p *fbrPolicy) touch(b *block) {
	if !p.isNew(b.id) {
		b.referenceNum++
	}

	p.q.remove(b.id)
	p.q.pushBack(b.id)
}

// selectVictim scans the OLD partition for the smallest reference count.
func (p *fbrPolicy) selectVictim() (int, bool) {
	n := p.q.len()
	if n == 0 {
		return -1, false
	}

	victim := -1
	var minRef uint64
	i := 0
	p.q.ascend(func(id int) bool {
		if i > 0 && float64(i+1)/float64(n) > p.oldFraction {
			return false
		}
		ref := p.store.get(id).referenceNum
		if victim == -1 || ref < minRef {
			victim = id
			minRef = ref
		}
		i++
		return true
	})
	return victim, true
}

func (p *fbrPolicy) remove(id int) {
	p.q.remove(id)
}

func (p *fbrPolicy) queue() *evictionQueue {
	return p.q
}

func (p *fbrPolicy) reset() {
	p.q.reset()
}
