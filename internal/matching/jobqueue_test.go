package matching

import (
	"testing"
	"time"
)

func TestJobQueuePreservesProducerOrder(t *testing.T) {
	q := NewJobQueue[int](10)
	for i := 1; i <= 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) failed", i)
		}
	}
	if q.Size() != 5 {
		t.Fatalf("Size = %d, want 5", q.Size())
	}
	for i := 1; i <= 5; i++ {
		job := q.Pop()
		if !job.Valid {
			t.Fatalf("Pop %d returned invalid job", i)
		}
		if job.Data != i {
			t.Errorf("Pop returned %d, want %d", job.Data, i)
		}
	}
	if q.Size() != 0 {
		t.Errorf("Size after drain = %d", q.Size())
	}
}

func TestJobQueuePopBlocksUntilPush(t *testing.T) {
	q := NewJobQueue[int](1)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Push(42)
	}()

	job := q.Pop()
	if !job.Valid || job.Data != 42 {
		t.Fatalf("Pop = %+v, want valid 42", job)
	}
}

func TestJobQueuePushBlocksAtCapacity(t *testing.T) {
	q := NewJobQueue[int](1)
	if !q.Push(1) {
		t.Fatal("first Push failed")
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Pop()
	}()

	// Blocks until the consumer makes room.
	if !q.Push(2) {
		t.Fatal("second Push failed")
	}
	job := q.Pop()
	if !job.Valid || job.Data != 2 {
		t.Fatalf("Pop = %+v, want valid 2", job)
	}
}

func TestJobQueueStopPoisonsConsumers(t *testing.T) {
	q := NewJobQueue[int](1)

	popped := make(chan Job[int], 1)
	go func() {
		popped <- q.Pop()
	}()

	time.Sleep(20 * time.Millisecond)
	q.Stop()

	job := <-popped
	if job.Valid {
		t.Fatalf("Pop on stopped queue returned valid job %+v", job)
	}

	if q.Push(1) {
		t.Error("Push on stopped queue should fail")
	}
	if job := q.Pop(); job.Valid {
		t.Error("Pop on stopped queue should be invalid")
	}

	// Stop is idempotent.
	q.Stop()
}

func TestJobQueueWaitReturnsAfterDrain(t *testing.T) {
	q := NewJobQueue[int](10)
	for i := 0; i < 3; i++ {
		q.Push(i)
	}

	go func() {
		for i := 0; i < 3; i++ {
			time.Sleep(5 * time.Millisecond)
			q.Pop()
		}
	}()

	q.Wait()
	if q.Size() != 0 {
		t.Errorf("Size after Wait = %d", q.Size())
	}
}
