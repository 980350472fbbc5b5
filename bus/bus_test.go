package bus

import "testing"

func TestPublishOrder(t *testing.T) {
	topic := NewTopic[int]("message")
	var got []string

	topic.Subscribe(func(v int) { got = append(got, "a") })
	topic.Subscribe(func(v int) { got = append(got, "b") })
	topic.Publish(1)

	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("got %v", got)
	}
	if topic.Name() != "message" {
		t.Fatalf("name=%q", topic.Name())
	}
}

func TestCancel(t *testing.T) {
	topic := NewTopic[string]("reset")
	calls := 0
	cancel := topic.Subscribe(func(string) { calls++ })
	other := 0
	topic.Subscribe(func(string) { other++ })

	topic.Publish("x")
	cancel()
	cancel() // second cancel is harmless
	topic.Publish("y")

	if calls != 1 {
		t.Fatalf("calls=%d", calls)
	}
	if other != 2 {
		t.Fatalf("other=%d", other)
	}
	if topic.Len() != 1 {
		t.Fatalf("len=%d", topic.Len())
	}
}

func TestSubscribeDuringPublish(t *testing.T) {
	topic := NewTopic[struct{}]("show")
	late := 0
	topic.Subscribe(func(struct{}) {
		topic.Subscribe(func(struct{}) { late++ })
	})

	topic.Publish(struct{}{})
	if late != 0 {
		t.Fatalf("subscriber added during publish ran: %d", late)
	}
	topic.Publish(struct{}{})
	if late != 1 {
		t.Fatalf("late=%d", late)
	}
}
