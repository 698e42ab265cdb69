package orchestrator

import (
	"fmt"
	"testing"

	"inkwell-ai-api/internal/domain/entity"
)

func chunkEvent(jobID, delta string) entity.StreamEvent {
	return entity.StreamEvent{JobID: jobID, Kind: entity.EventChunk, ContentDelta: delta}
}

func TestBroadcasterOrderPerSubscriber(t *testing.T) {
	b := newBroadcaster("job-1", 16)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	for i := 0; i < 5; i++ {
		b.Publish(chunkEvent("job-1", fmt.Sprintf("c%d", i)))
	}

	for i := 0; i < 5; i++ {
		ev := <-ch
		if want := fmt.Sprintf("c%d", i); ev.ContentDelta != want {
			t.Fatalf("event %d delta = %q, want %q", i, ev.ContentDelta, want)
		}
	}
}

func TestBroadcasterReplayForLateSubscriber(t *testing.T) {
	b := newBroadcaster("job-1", 16)

	b.Publish(entity.StreamEvent{JobID: "job-1", Kind: entity.EventStageChange, Status: entity.JobStatusGenerating})
	b.Publish(chunkEvent("job-1", "hello "))
	b.Publish(chunkEvent("job-1", "world"))

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	// 迟到订阅先按序重放内容块，再收到状态对齐事件
	if ev := <-ch; ev.ContentDelta != "hello " {
		t.Fatalf("replayed chunk = %q, want %q", ev.ContentDelta, "hello ")
	}
	if ev := <-ch; ev.ContentDelta != "world" {
		t.Fatalf("replayed chunk = %q, want %q", ev.ContentDelta, "world")
	}
	ev := <-ch
	if ev.Kind != entity.EventStageChange || ev.Status != entity.JobStatusGenerating {
		t.Fatalf("status alignment event = %+v, want stage_change generating", ev)
	}

	// 重放完成后接续实时事件
	b.Publish(chunkEvent("job-1", "!"))
	if ev := <-ch; ev.ContentDelta != "!" {
		t.Fatalf("live chunk = %q, want %q", ev.ContentDelta, "!")
	}
}

func TestBroadcasterReplayProgressMonotone(t *testing.T) {
	progressChunk := func(delta string, progress int) entity.StreamEvent {
		return entity.StreamEvent{JobID: "job-1", Kind: entity.EventChunk, ContentDelta: delta, Progress: progress}
	}

	t.Run("status ahead of chunks", func(t *testing.T) {
		b := newBroadcaster("job-1", 16)
		b.Publish(progressChunk("a", 25))
		b.Publish(progressChunk("b", 40))
		b.Publish(entity.StreamEvent{JobID: "job-1", Kind: entity.EventProgress, Progress: 80})

		ch, unsubscribe := b.Subscribe()
		defer unsubscribe()

		var got []int
		for i := 0; i < 3; i++ {
			got = append(got, (<-ch).Progress)
		}
		for i := 1; i < len(got); i++ {
			if got[i] < got[i-1] {
				t.Fatalf("progress went backwards in replay: %v", got)
			}
		}
		if got[len(got)-1] != 80 {
			t.Fatalf("final replayed progress = %d, want 80", got[len(got)-1])
		}
	})

	t.Run("status behind chunks is raised", func(t *testing.T) {
		b := newBroadcaster("job-1", 16)
		b.Publish(entity.StreamEvent{JobID: "job-1", Kind: entity.EventProgress, Progress: 30})
		b.Publish(progressChunk("a", 25))
		b.Publish(progressChunk("b", 40))

		ch, unsubscribe := b.Subscribe()
		defer unsubscribe()

		<-ch
		<-ch
		if ev := <-ch; ev.Kind != entity.EventProgress || ev.Progress != 40 {
			t.Fatalf("alignment event = %+v, want progress raised to 40", ev)
		}
	})
}

func TestBroadcasterSubscribeAfterTerminal(t *testing.T) {
	b := newBroadcaster("job-1", 16)
	b.Publish(chunkEvent("job-1", "partial"))
	b.Publish(entity.StreamEvent{JobID: "job-1", Kind: entity.EventTerminal, Status: entity.JobStatusCompleted})
	b.Close()

	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	if ev := <-ch; ev.ContentDelta != "partial" {
		t.Fatalf("replayed chunk = %q, want %q", ev.ContentDelta, "partial")
	}
	ev := <-ch
	if ev.Kind != entity.EventTerminal {
		t.Fatalf("event kind = %s, want terminal", ev.Kind)
	}
	if _, ok := <-ch; ok {
		t.Fatal("channel left open after terminal replay")
	}
}

func TestBroadcasterDropsOldestWhenFull(t *testing.T) {
	b := newBroadcaster("job-1", 16)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	// 订阅者不消费；超出缓冲后最旧的事件被丢弃，发布方不阻塞
	total := cap(ch) + 10
	for i := 0; i < total; i++ {
		b.Publish(chunkEvent("job-1", fmt.Sprintf("c%d", i)))
	}

	ev := <-ch
	if want := fmt.Sprintf("c%d", total-cap(ch)); ev.ContentDelta != want {
		t.Fatalf("oldest surviving event = %q, want %q", ev.ContentDelta, want)
	}
	// 最新事件仍应在缓冲尾部
	var last entity.StreamEvent
	for i := 0; i < cap(ch)-1; i++ {
		last = <-ch
	}
	if want := fmt.Sprintf("c%d", total-1); last.ContentDelta != want {
		t.Fatalf("newest event = %q, want %q", last.ContentDelta, want)
	}
}

func TestBroadcasterSlowSubscriberDoesNotBlockOthers(t *testing.T) {
	b := newBroadcaster("job-1", 4)
	slow, unsubSlow := b.Subscribe()
	defer unsubSlow()
	fast, unsubFast := b.Subscribe()
	defer unsubFast()

	for i := 0; i < 50; i++ {
		b.Publish(chunkEvent("job-1", fmt.Sprintf("c%d", i)))
	}

	// 快订阅者消费自己的缓冲，慢订阅者的积压不影响它
	drained := 0
	for len(fast) > 0 {
		<-fast
		drained++
	}
	if drained == 0 {
		t.Fatal("fast subscriber received nothing")
	}
	if len(slow) != cap(slow) {
		t.Fatalf("slow subscriber buffer = %d, want full %d", len(slow), cap(slow))
	}
}

func TestBroadcasterUnsubscribeIdempotent(t *testing.T) {
	b := newBroadcaster("job-1", 4)
	_, unsubscribe := b.Subscribe()
	unsubscribe()
	unsubscribe() // 重复退订不应 panic

	b.Publish(chunkEvent("job-1", "after"))
}

func TestBroadcasterPublishAfterClose(t *testing.T) {
	b := newBroadcaster("job-1", 4)
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Close()
	b.Publish(chunkEvent("job-1", "late")) // 关闭后的发布被忽略

	if _, ok := <-ch; ok {
		t.Fatal("subscriber channel not closed on Close")
	}
}
