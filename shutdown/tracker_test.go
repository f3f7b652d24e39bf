package shutdown

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestOperationTracker_Lifecycle(t *testing.T) {
	tr := NewOperationTracker()
	if !tr.Start() || !tr.Start() {
		t.Fatal("Start() rejected on open tracker")
	}
	if tr.ActiveCount() != 2 {
		t.Errorf("ActiveCount() = %d", tr.ActiveCount())
	}
	tr.Close()
	if tr.Start() {
		t.Error("Start() accepted after Close")
	}
	if !tr.IsClosed() {
		t.Error("IsClosed() = false")
	}
	if err := tr.Wait(10 * time.Millisecond); !errors.Is(err, ErrWaitTimeout) {
		t.Errorf("Wait() = %v, want timeout", err)
	}
	tr.Done()
	tr.Done()
	if err := tr.Wait(time.Second); err != nil {
		t.Errorf("Wait() = %v", err)
	}
}

func TestOperationTracker_Concurrent(t *testing.T) {
	tr := NewOperationTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.Start() {
				time.Sleep(time.Millisecond)
				tr.Done()
			}
		}()
	}
	wg.Wait()
	if err := tr.Wait(time.Second); err != nil {
		t.Fatal(err)
	}
	if tr.ActiveCount() != 0 {
		t.Errorf("ActiveCount() = %d", tr.ActiveCount())
	}
}
