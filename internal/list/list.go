// Package list implements an intrusive doubly linked list: sentinel
// head and tail elements bracket the list so interior insertion and
// removal need no nil checks. The list holds no payload of its own —
// callers embed an Elem as the first field of the structure they want
// linked and recover it from the Elem's address.
package list

// Elem is one link in a List. An interior element has both neighbors
// non-nil; the tail sentinel has a non-nil prev and a nil next; the
// head sentinel has a non-nil next and a nil prev.
type Elem struct {
	prev, next *Elem
}

// List is a sentinel-bracketed intrusive doubly linked list.
type List struct {
	head, tail Elem
}

// Init resets list to the empty state. A List's zero value is not
// ready for use; callers must call Init first.
func (l *List) Init() {
	l.head.prev = nil
	l.head.next = &l.tail
	l.tail.prev = &l.head
	l.tail.next = nil
}

// Begin returns the first element of l, which is &l.tail if l is empty.
func (l *List) Begin() *Elem {
	return l.head.next
}

// End returns l's tail sentinel.
func (l *List) End() *Elem {
	return &l.tail
}

func isInterior(e *Elem) bool {
	return e != nil && e.prev != nil && e.next != nil
}

func isTail(e *Elem) bool {
	return e != nil && e.prev != nil && e.next == nil
}

// InsertBefore splices elem into the list just before before, which
// must be an interior element or the tail sentinel (the latter case is
// equivalent to PushBack).
func (l *List) InsertBefore(before, elem *Elem) {
	if !isInterior(before) && !isTail(before) {
		panic("list: insert point is not interior or tail")
	}

	elem.prev = before.prev
	elem.next = before
	before.prev.next = elem
	before.prev = elem
}

// PushFront inserts elem at the front of l.
func (l *List) PushFront(elem *Elem) {
	l.InsertBefore(l.Begin(), elem)
}

// PushBack inserts elem at the back of l.
func (l *List) PushBack(elem *Elem) {
	l.InsertBefore(l.End(), elem)
}

// Remove unlinks elem from its list and returns the element that
// followed it. elem must be interior; behavior is undefined otherwise.
// The returned successor lets callers iterate-and-remove safely:
//
//	for e := l.Begin(); e != l.End(); e = l.Remove(e) { ... }
func (l *List) Remove(elem *Elem) *Elem {
	if !isInterior(elem) {
		panic("list: remove of non-interior element")
	}

	elem.prev.next = elem.next
	elem.next.prev = elem.prev
	next := elem.next
	elem.prev, elem.next = nil, nil
	return next
}

// PopFront removes and returns the first element of l. It panics if l
// is empty.
func (l *List) PopFront() *Elem {
	if l.Empty() {
		panic("list: pop of empty list")
	}

	front := l.Begin()
	l.Remove(front)
	return front
}

// Empty reports whether l has no interior elements.
func (l *List) Empty() bool {
	return l.Begin() == l.End()
}
