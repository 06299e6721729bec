package notify

import "testing"

func TestNotifier_SubscribeUnsubscribe(t *testing.T) {
	n := New()
	var a, b int
	unsubA := n.Subscribe(func() { a++ })
	n.Subscribe(func() { b++ })

	n.Notify()
	unsubA()
	unsubA()
	n.Notify()

	if a != 1 {
		t.Errorf("a = %d, want 1", a)
	}
	if b != 2 {
		t.Errorf("b = %d, want 2", b)
	}
	if n.Len() != 1 {
		t.Errorf("Len() = %d, want 1", n.Len())
	}
}

func TestNotifier_Order(t *testing.T) {
	n := New()
	var got []int
	for i := 0; i < 5; i++ {
		n.Subscribe(func() { got = append(got, i) })
	}
	n.Notify()
	for i, v := range got {
		if v != i {
			t.Fatalf("notification order = %v", got)
		}
	}
}

func TestNotifier_UnsubscribeDuringNotify(t *testing.T) {
	n := New()
	var unsub func()
	calls := 0
	unsub = n.Subscribe(func() {
		calls++
		unsub()
	})
	n.Notify()
	n.Notify()
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
