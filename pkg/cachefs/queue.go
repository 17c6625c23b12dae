package cachefs

// queueNode is an entry of the eviction queue.
type queueNode struct {
	id         int
	next, prev *queueNode
}

// evictionQueue is an ordered sequence of resident block ids.
//
// It's a doubly linked list with a dummy head, so the head of the queue is dummy.next
// and the tail is dummy.prev. The index from id to node makes membership tests and
// removal O(1); positional queries walk the list.
type evictionQueue struct {
	dummy queueNode
	nodes map[int]*queueNode
}

func newEvictionQueue() *evictionQueue {
	q := &evictionQueue{
		nodes: make(map[int]*queueNode),
	}
	q.dummy.next = &q.dummy
	q.dummy.prev = &q.dummy
	return q
}

func (q *evictionQueue) len() int {
	return len(q.nodes)
}

func (q *evictionQueue) contains(id int) bool {
	_, ok := q.nodes[id]
	return ok
}

// front returns the id at the head of the queue.
func (q *evictionQueue) front() (int, bool) {
	if q.dummy.next == &q.dummy {
		return -1, false
	}
	return q.dummy.next.id, true
}

// pushBack appends id at the tail.
func (q *evictionQueue) pushBack(id int) {
	q.insertBefore(id, &q.dummy)
}

// insertBefore links id in front of mark. Passing the dummy appends at the tail.
func (q *evictionQueue) insertBefore(id int, mark *queueNode) {
	n := &queueNode{id: id, next: mark, prev: mark.prev}
	mark.prev.next = n
	mark.prev = n
	q.nodes[id] = n
}

// remove unlinks id, reports whether it was present.
func (q *evictionQueue) remove(id int) bool {
	n, ok := q.nodes[id]
	if !ok {
		return false
	}
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next, n.prev = nil, nil
	delete(q.nodes, id)
	return true
}

// position returns the zero based index of id counted from the head, -1 if absent.
func (q *evictionQueue) position(id int) int {
	target, ok := q.nodes[id]
	if !ok {
		return -1
	}
	i := 0
	for n := q.dummy.next; n != &q.dummy; n = n.next {
		if n == target {
			return i
		}
		i++
	}
	return -1
}

// ascend calls fn on each id from head to tail until fn returns false.
func (q *evictionQueue) ascend(fn func(id int) bool) {
	for n := q.dummy.next; n != &q.dummy; n = n.next {
		if !fn(n.id) {
			return
		}
	}
}

// descend calls fn on each id from tail to head until fn returns false.
func (q *evictionQueue) descend(fn func(id int) bool) {
	for n := q.dummy.prev; n != &q.dummy; n = n.prev {
		if !fn(n.id) {
			return
		}
	}
}

// ids returns the queue contents from head to tail.
func (q *evictionQueue) ids() []int {
	ids := make([]int, 0, len(q.nodes))
	q.ascend(func(id int) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

func (q *evictionQueue) reset() {
	for _, n := range q.nodes {
		n.next, n.prev = nil, nil
	}
	q.nodes = make(map[int]*queueNode)
	q.dummy.next = &q.dummy
	q.dummy.prev = &q.dummy
}
