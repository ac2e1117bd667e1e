package notify

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestChangeType_String(t *testing.T) {
	tests := []struct {
		ct   ChangeType
		want string
	}{
		{ChangeSet, "set"},
		{ChangeDelete, "delete"},
		{ChangeReload, "reload"},
		{ChangeType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.ct.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.ct, got, tt.want)
		}
	}
}

func TestNotifier_Subscribe(t *testing.T) {
	n := New()
	defer n.Close()

	var received atomic.Bool
	sub := n.Subscribe(func(change Change) {
		received.Store(true)
	})

	n.NotifySet("removeMaxRes", false, true, SourceAPI)
	if !received.Load() {
		t.Error("observer did not receive notification")
	}

	sub.Unsubscribe()
	received.Store(false)
	n.NotifySet("removeMaxRes", true, false, SourceAPI)
	if received.Load() {
		t.Error("unsubscribed observer received notification")
	}
	if n.Len() != 0 {
		t.Errorf("Len() = %d, want 0", n.Len())
	}
}

func TestNotifier_SubscribeKey(t *testing.T) {
	n := New()
	defer n.Close()

	var flagChanges, otherChanges atomic.Int32
	sub := n.SubscribeKey("removeMaxRes", func(change Change) {
		flagChanges.Add(1)
	})
	n.SubscribeKey("logLevel", func(change Change) {
		otherChanges.Add(1)
	})

	n.NotifySet("removeMaxRes", false, true, SourceAPI)
	n.NotifySet("removeMaxRes", true, false, SourceFile)
	n.NotifySet("logLevel", "info", "debug", SourceFile)
	n.NotifySet("removeMaxResolution", nil, true, SourceAPI)

	if got := flagChanges.Load(); got != 2 {
		t.Errorf("flag observer received %d changes, want 2", got)
	}
	if got := otherChanges.Load(); got != 1 {
		t.Errorf("other observer received %d changes, want 1", got)
	}
	if sub.Key() != "removeMaxRes" {
		t.Errorf("Key() = %q", sub.Key())
	}
}

func TestNotifier_NotifySet(t *testing.T) {
	n := New()
	defer n.Close()

	var got Change
	n.Subscribe(func(change Change) {
		got = change
	})

	n.NotifySet("removeMaxRes", false, true, SourceFile)

	want := Change{Key: "removeMaxRes", Type: ChangeSet, Old: false, New: true, Source: SourceFile}
	if got != want {
		t.Errorf("change = %+v, want %+v", got, want)
	}
}

func TestNotifier_NotifyDelete(t *testing.T) {
	n := New()
	defer n.Close()

	var got Change
	n.Subscribe(func(change Change) {
		got = change
	})

	n.NotifyDelete("removeMaxRes", true, SourceFile)

	if got.Type != ChangeDelete {
		t.Errorf("Type = %v, want ChangeDelete", got.Type)
	}
	if got.Old != true || got.New != nil {
		t.Errorf("Old/New = %v/%v, want true/nil", got.Old, got.New)
	}
}

func TestNotifier_ReloadReachesKeyObservers(t *testing.T) {
	n := New()
	defer n.Close()

	var keyReceived atomic.Bool
	n.SubscribeKey("removeMaxRes", func(change Change) {
		if change.Type == ChangeReload {
			keyReceived.Store(true)
		}
	})

	n.Notify(Change{Type: ChangeReload, Source: SourceFile})

	if !keyReceived.Load() {
		t.Error("key observer did not receive reload")
	}
}

func TestNotifier_DeliveryOrder(t *testing.T) {
	n := New()
	defer n.Close()

	var order []int
	for i := range 5 {
		n.Subscribe(func(Change) {
			order = append(order, i)
		})
	}

	n.NotifySet("k", nil, 1, SourceAPI)

	for i, v := range order {
		if v != i {
			t.Fatalf("delivery order = %v, want ascending", order)
		}
	}
	if len(order) != 5 {
		t.Fatalf("delivered %d, want 5", len(order))
	}
}

func TestNotifier_ObserverMayResubscribe(t *testing.T) {
	n := New()
	defer n.Close()

	var inner atomic.Int32
	var sub *Subscription
	sub = n.Subscribe(func(Change) {
		sub.Unsubscribe()
		n.Subscribe(func(Change) {
			inner.Add(1)
		})
	})

	// Must not deadlock.
	n.NotifySet("k", nil, 1, SourceAPI)
	if inner.Load() != 0 {
		t.Error("observer added mid-delivery ran in the same delivery")
	}

	n.NotifySet("k", 1, 2, SourceAPI)
	if inner.Load() != 1 {
		t.Errorf("inner = %d, want 1", inner.Load())
	}
}

func TestNotifier_Async(t *testing.T) {
	n := New(WithAsync(100))
	defer n.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	n.Subscribe(func(change Change) {
		wg.Done()
	})

	n.NotifySet("removeMaxRes", false, true, SourceAPI)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("timeout waiting for async notification")
	}
}

func TestBatch(t *testing.T) {
	n := New()
	defer n.Close()

	var changes []Change
	n.Subscribe(func(change Change) {
		changes = append(changes, change)
	})

	batch := n.NewBatch()
	batch.Set("a", nil, true, SourceFile)
	batch.Set("b", nil, false, SourceFile)
	batch.Add(Change{Key: "c", Type: ChangeDelete, Old: true})

	if batch.Len() != 3 {
		t.Errorf("Len() = %d, want 3", batch.Len())
	}
	if len(changes) != 0 {
		t.Error("changes sent before Commit()")
	}

	batch.Commit()

	if len(changes) != 3 {
		t.Fatalf("received %d changes after Commit(), want 3", len(changes))
	}
	if changes[0].Key != "a" || changes[2].Key != "c" {
		t.Errorf("commit order = %q..%q", changes[0].Key, changes[2].Key)
	}
	if batch.Len() != 0 {
		t.Errorf("Len() = %d after Commit(), want 0", batch.Len())
	}

	batch.Set("d", nil, 1, SourceFile)
	batch.Discard()
	batch.Commit()
	if len(changes) != 3 {
		t.Error("discarded change was delivered")
	}
}

func TestNotifier_ConcurrentAccess(t *testing.T) {
	n := New()
	defer n.Close()

	var count atomic.Int32
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Subscribe(func(change Change) {
				count.Add(1)
			})
		}()
	}
	wg.Wait()

	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.NotifySet("k", nil, i, SourceAPI)
		}()
	}
	wg.Wait()

	if got := count.Load(); got != 100 {
		t.Errorf("count = %d, want 100", got)
	}
}

func TestNotifier_CloseIdempotent(t *testing.T) {
	for _, async := range []bool{false, true} {
		var n *Notifier
		if async {
			n = New(WithAsync(10))
		} else {
			n = New()
		}
		n.Close()
		n.Close()

		// Notify after close must neither panic nor block.
		n.NotifySet("k", nil, 1, SourceAPI)
	}
}
