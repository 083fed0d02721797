package transport

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// recv registers a handler on end and returns the channel it feeds.
func recv(end *PipeEnd) <-chan []byte {
	ch := make(chan []byte, 16)
	end.OnMessage(func(data []byte) {
		ch <- data
	})
	return ch
}

func expectMessage(t *testing.T, ch <-chan []byte, want string) {
	t.Helper()
	select {
	case got := <-ch:
		if string(got) != want {
			t.Fatalf("message = %q, want %q", got, want)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for %q", want)
	}
}

// TestPipe_AutoProcess verifies that messages flow automatically by default.
func TestPipe_AutoProcess(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	if !p.AutoProcess() {
		t.Fatal("AutoProcess should be true by default")
	}

	got := recv(p.End1())
	if err := p.End0().Publish([]byte("auto-delivered message")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	expectMessage(t, got, "auto-delivered message")
}

// TestPipe_ManualProcess verifies delivery with auto-process disabled.
func TestPipe_ManualProcess(t *testing.T) {
	p := NewPipeWithConfig(PipeConfig{AutoProcess: false})
	defer p.Close()

	if p.AutoProcess() {
		t.Fatal("AutoProcess should be false")
	}

	got := recv(p.End1())
	if err := p.End0().Publish([]byte("manual")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-got:
		t.Fatal("message delivered before Process")
	case <-time.After(20 * time.Millisecond):
	}

	if n := p.Process(); n != 1 {
		t.Fatalf("Process() = %d, want 1", n)
	}
	expectMessage(t, got, "manual")
}

func TestPipe_Bidirectional(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	got0 := recv(p.End0())
	got1 := recv(p.End1())

	if err := p.End0().Publish([]byte("ping")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	expectMessage(t, got1, "ping")

	if err := p.End1().Publish([]byte("pong")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	expectMessage(t, got0, "pong")
}

// Messages published in order arrive in order.
func TestPipe_Ordering(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	got := recv(p.End1())
	msgs := []string{"one", "two", "three"}
	for _, m := range msgs {
		if err := p.End0().Publish([]byte(m)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}
	for _, m := range msgs {
		expectMessage(t, got, m)
	}
}

func TestPipeEnd_SetPublishError(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	errBoom := errors.New("boom")
	got := recv(p.End1())

	p.End0().SetPublishError(errBoom)
	if err := p.End0().Publish([]byte("lost")); !errors.Is(err, errBoom) {
		t.Fatalf("Publish() error = %v, want %v", err, errBoom)
	}

	// Injection is one-shot.
	if err := p.End0().Publish([]byte("kept")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	expectMessage(t, got, "kept")

	if n := p.End0().Published(); n != 1 {
		t.Errorf("Published() = %d, want 1", n)
	}
}

func TestPipe_Closed(t *testing.T) {
	p := NewPipe()
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if err := p.End0().Publish([]byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish() error = %v, want %v", err, ErrClosed)
	}
}

func TestNetworkCondition_DropRate(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	var delivered atomic.Int32
	p.End1().OnMessage(func([]byte) { delivered.Add(1) })

	p.SetCondition(NetworkCondition{DropRate: 1.0})
	for i := 0; i < 10; i++ {
		if err := p.End0().Publish([]byte("dropped")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	time.Sleep(30 * time.Millisecond)
	if n := delivered.Load(); n != 0 {
		t.Errorf("delivered = %d, want 0 with DropRate 1.0", n)
	}
}

func TestNetworkCondition_Delay(t *testing.T) {
	p := NewPipe()
	defer p.Close()

	got := recv(p.End1())
	p.SetCondition(NetworkCondition{DelayMin: 20 * time.Millisecond, DelayMax: 30 * time.Millisecond})

	start := time.Now()
	if err := p.End0().Publish([]byte("slow")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	expectMessage(t, got, "slow")

	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 20ms", elapsed)
	}
}
