package events

import "testing"

func TestPublishDecode(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()
	defer h.Unsubscribe(ch)

	h.Publish(ChargeState, ChargeStateEvent{From: "charging", To: "inhibited", Level: 80})

	ev := <-ch
	if ev.Name != ChargeState {
		t.Fatalf("got event %q", ev.Name)
	}
	p, err := DecodeAs[ChargeStateEvent](ev)
	if err != nil {
		t.Fatal(err)
	}
	if p.From != "charging" || p.To != "inhibited" || p.Level != 80 {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestPublishDropsForSlowSubscriber(t *testing.T) {
	h := NewEventHub()
	ch := h.Subscribe()

	for i := 0; i < 100; i++ {
		h.Publish(Warning, WarningEvent{Message: "x"})
	}
	if len(ch) != cap(ch) {
		t.Errorf("expected a full buffer, got %d/%d", len(ch), cap(ch))
	}

	h.Unsubscribe(ch)
	h.Unsubscribe(ch)
	if h.Subscribers() != 0 {
		t.Errorf("expected no subscribers")
	}
	if _, ok := <-drain(ch); ok {
		t.Error("channel should be closed after Unsubscribe")
	}
}

func TestNilHub(t *testing.T) {
	var h *EventHub
	h.Publish(Warning, WarningEvent{})
}

func drain(ch chan Event) chan Event {
	for len(ch) > 0 {
		<-ch
	}
	return ch
}

func TestDecodeEmpty(t *testing.T) {
	v, err := DecodeAs[WarningEvent](Event{Name: Warning})
	if err != nil || v.Message != "" {
		t.Errorf("DecodeAs(empty) = %+v, %v", v, err)
	}
}
