package chat

import (
	"sync"
	"testing"
	"time"
)

type signalRecorder struct {
	mu     sync.Mutex
	values []bool
}

func (r *signalRecorder) record(v bool) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *signalRecorder) snapshot() []bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.values))
	copy(out, r.values)
	return out
}

func TestInputChanged_BurstProducesOneTypingTrue(t *testing.T) {
	rec := &signalRecorder{}
	n := newTypingNotifier(rec.record, 10*time.Millisecond, 60*time.Millisecond)

	// A keystroke burst well inside the debounce window.
	n.InputChanged("h")
	n.InputChanged("he")
	n.InputChanged("hel")
	n.InputChanged("hello")

	time.Sleep(30 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != true {
		t.Fatalf("expected exactly one typing:true, got %v", got)
	}
}

func TestQuietWindow_SendsTypingFalse(t *testing.T) {
	rec := &signalRecorder{}
	n := newTypingNotifier(rec.record, 10*time.Millisecond, 40*time.Millisecond)

	n.InputChanged("hello")

	// Wait past debounce + quiet window + trailing debounce.
	time.Sleep(120 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 {
		t.Fatalf("expected [true false], got %v", got)
	}
	if got[0] != true || got[1] != false {
		t.Errorf("expected [true false], got %v", got)
	}
}

func TestInputChanged_ContinuedTypingDefersQuietWindow(t *testing.T) {
	rec := &signalRecorder{}
	n := newTypingNotifier(rec.record, 5*time.Millisecond, 50*time.Millisecond)

	n.InputChanged("h")
	time.Sleep(30 * time.Millisecond)
	n.InputChanged("he") // re-arms the quiet window
	time.Sleep(30 * time.Millisecond)

	// 60ms after the first keystroke but only 30ms after the last: no
	// typing:false yet.
	got := rec.snapshot()
	for _, v := range got {
		if v == false {
			t.Fatalf("quiet window fired while typing continued: %v", got)
		}
	}
}

func TestInputChanged_EmptyTextSendsFalse(t *testing.T) {
	rec := &signalRecorder{}
	n := newTypingNotifier(rec.record, 5*time.Millisecond, time.Hour)

	n.InputChanged("hello")
	time.Sleep(20 * time.Millisecond)
	n.InputChanged("")
	time.Sleep(20 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("expected [true false], got %v", got)
	}
}

func TestInputBlurred_SendsFalse(t *testing.T) {
	rec := &signalRecorder{}
	n := newTypingNotifier(rec.record, 5*time.Millisecond, time.Hour)

	n.InputChanged("hello")
	time.Sleep(20 * time.Millisecond)
	n.InputBlurred()
	time.Sleep(20 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 || got[1] != false {
		t.Fatalf("expected a trailing false after blur, got %v", got)
	}
}

func TestMessageSent_SendsFalseAndCancelsQuietWindow(t *testing.T) {
	rec := &signalRecorder{}
	n := newTypingNotifier(rec.record, 5*time.Millisecond, 40*time.Millisecond)

	n.InputChanged("hello")
	time.Sleep(20 * time.Millisecond)
	n.MessageSent()
	time.Sleep(100 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 2 || got[0] != true || got[1] != false {
		t.Fatalf("expected exactly [true false], got %v", got)
	}
}
