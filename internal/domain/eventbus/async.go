package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 1000
)

// Publisher is what producers depend on.
type Publisher interface {
	PublishAsync(topic string, args ...interface{}) bool
}

// AsyncEventBus fans events out to subscribers on a fixed worker pool.
// PublishAsync never blocks: when the queue is full the event is dropped.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	pending   sync.WaitGroup

	// mu orders pending.Add in PublishAsync against the Wait in Stop.
	mu       sync.Mutex
	stopping bool

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool

	dropped  atomic.Int64
	panicked atomic.Int64
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus creates a bus; zero values fall back to 4 workers and a queue of 1000.
func NewAsyncEventBus(workerNum, queueSize int) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = defaultWorkers
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, queueSize),
		stopChan:  make(chan struct{}),
	}
}

// Start launches the workers. Calling it twice is a no-op.
func (aeb *AsyncEventBus) Start() {
	aeb.startOnce.Do(func() {
		aeb.started.Store(true)
		for i := 0; i < aeb.workerNum; i++ {
			aeb.wg.Add(1)
			go aeb.worker()
		}
	})
}

// Stop drains queued events and waits for the workers to exit.
// Events queued on a bus that was never started are discarded.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.mu.Lock()
		aeb.stopping = true
		aeb.mu.Unlock()

		if aeb.started.Load() {
			aeb.pending.Wait()
		}
		close(aeb.stopChan)
		aeb.wg.Wait()
	})
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			aeb.deliver(event)
		}
	}
}

func (aeb *AsyncEventBus) deliver(event asyncEvent) {
	defer aeb.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			aeb.panicked.Add(1)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish delivers synchronously on the caller's goroutine.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues the event and reports whether it was accepted.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) bool {
	aeb.mu.Lock()
	if aeb.stopping {
		aeb.mu.Unlock()
		aeb.dropped.Add(1)
		return false
	}
	aeb.pending.Add(1)
	aeb.mu.Unlock()

	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
		return true
	default:
		aeb.pending.Done()
		aeb.dropped.Add(1)
		return false
	}
}

func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// Flush blocks until every accepted event has been delivered. It must not race
// with concurrent publishers; use Stop for that.
func (aeb *AsyncEventBus) Flush() {
	aeb.pending.Wait()
}

// Dropped counts events rejected because the queue was full or the bus stopped.
func (aeb *AsyncEventBus) Dropped() int64 {
	return aeb.dropped.Load()
}

// Panicked counts subscriber panics recovered by the workers.
func (aeb *AsyncEventBus) Panicked() int64 {
	return aeb.panicked.Load()
}
