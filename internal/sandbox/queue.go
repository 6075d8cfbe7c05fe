package sandbox

import "container/list"

// grant hands an isolate (or a terminal error) to a queued request
type grant struct {
	slot *slot
	err  error
}

// pendingRequest is a caller parked in the wait queue
type pendingRequest struct {
	input *ExecuteInput
	ready chan grant
	elem  *list.Element
}

func newPendingRequest(input *ExecuteInput) *pendingRequest {
	return &pendingRequest{
		input: input,
		ready: make(chan grant, 1),
	}
}

// waitQueue is a bounded FIFO of pending requests. Not safe for concurrent use;
// the pool guards it with its own mutex.
type waitQueue struct {
	items *list.List
	limit int
}

func newWaitQueue(limit int) *waitQueue {
	return &waitQueue{items: list.New(), limit: limit}
}

// push appends req unless the queue is at its limit
func (q *waitQueue) push(req *pendingRequest) bool {
	if q.items.Len() >= q.limit {
		return false
	}
	req.elem = q.items.PushBack(req)
	return true
}

// pop removes and returns the oldest request
func (q *waitQueue) pop() *pendingRequest {
	front := q.items.Front()
	if front == nil {
		return nil
	}
	req := q.items.Remove(front).(*pendingRequest)
	req.elem = nil
	return req
}

// remove drops req if it is still queued and reports whether it was
func (q *waitQueue) remove(req *pendingRequest) bool {
	if req.elem == nil {
		return false
	}
	q.items.Remove(req.elem)
	req.elem = nil
	return true
}

// drain empties the queue, returning requests oldest first
func (q *waitQueue) drain() []*pendingRequest {
	out := make([]*pendingRequest, 0, q.items.Len())
	for req := q.pop(); req != nil; req = q.pop() {
		out = append(out, req)
	}
	return out
}

func (q *waitQueue) len() int {
	return q.items.Len()
}
