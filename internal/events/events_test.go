package events

import "testing"

func TestBus_PublishDeliversToSubscriber(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(Event{Type: TradeCreated, TradeID: 42})

	select {
	case e := <-ch:
		if e.TradeID != 42 || e.Type != TradeCreated {
			t.Errorf("got %+v, want TradeCreated/42", e)
		}
	default:
		t.Fatal("expected an event to be immediately available")
	}
}

func TestBus_PublishWithNoSubscribersDoesNotBlock(t *testing.T) {
	b := NewBus()
	b.Publish(Event{Type: TradeClosed, TradeID: 1})
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	b.Publish(Event{Type: RollLinked, TradeID: 7})

	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after unsubscribe")
	}
}
