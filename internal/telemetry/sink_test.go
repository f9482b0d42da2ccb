package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/silentarmy/stratum-miner/pkg/log"
)

func testLogger() *log.Logger {
	return log.New("test", "0", "error", "text")
}

func TestAsyncSink_PublishesInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string

	sink := newAsyncSink("test", testLogger(), func(_ context.Context, line string) error {
		mu.Lock()
		got = append(got, line)
		mu.Unlock()
		return nil
	})

	sink.Publish("one")
	sink.Publish("two")
	sink.Publish("three")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sink.Close(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "one" || got[2] != "three" {
		t.Errorf("got %v", got)
	}
}

func TestAsyncSink_DoesNotBlockOnFullBuffer(t *testing.T) {
	block := make(chan struct{})
	sink := newAsyncSink("test", testLogger(), func(_ context.Context, line string) error {
		<-block
		return nil
	})
	defer close(block)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			sink.Publish("line")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked; expected a full buffer to drop samples instead")
	}
}

func TestNewKafkaSink(t *testing.T) {
	sink := NewKafkaSink([]string{"localhost:9092"}, testLogger())
	if sink == nil {
		t.Fatal("NewKafkaSink returned nil")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	sink.Close(ctx)
}
