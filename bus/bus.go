// Package bus provides typed publish/subscribe topics used to fan out
// lifecycle and message notifications (show, reset, select, message, state).
package bus

// Topic delivers values of one payload type to its subscribers in
// subscription order. Topics are not safe for concurrent use; they are
// owned by the event loop like everything else they connect.
type Topic[T any] struct {
	name string
	next int
	subs []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// NewTopic creates an empty topic.
func NewTopic[T any](name string) *Topic[T] {
	return &Topic[T]{name: name}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string {
	return t.name
}

// Subscribe registers fn and returns a function that removes it again.
func (t *Topic[T]) Subscribe(fn func(T)) (cancel func()) {
	t.next++
	id := t.next
	t.subs = append(t.subs, subscriber[T]{id: id, fn: fn})
	return func() {
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish calls every subscriber with v. Subscribers added or removed
// during Publish take effect on the next call.
func (t *Topic[T]) Publish(v T) {
	subs := t.subs
	for _, s := range subs {
		s.fn(v)
	}
}

// Len returns the number of subscribers.
func (t *Topic[T]) Len() int {
	return len(t.subs)
}
