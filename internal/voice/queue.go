package voice

import (
	"context"
	"sync"
)

// SpeechQueue feeds replies to a single synthesis worker so utterances
// never overlap. Wait blocks until everything queued has been spoken.
type SpeechQueue struct {
	synth   Synthesizer
	onError func(error)

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan string
	wg     sync.WaitGroup // outstanding jobs
	done   chan struct{}
	once   sync.Once
}

// NewSpeechQueue starts the worker. onError, when non-nil, receives
// synthesis failures; they never stop the queue.
func NewSpeechQueue(ctx context.Context, synth Synthesizer, onError func(error)) *SpeechQueue {
	ctx, cancel := context.WithCancel(ctx)
	q := &SpeechQueue{
		synth:   synth,
		onError: onError,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(chan string, 16),
		done:    make(chan struct{}),
	}
	go q.work()
	return q
}

func (q *SpeechQueue) work() {
	defer close(q.done)
	for text := range q.jobs {
		if q.ctx.Err() == nil {
			if err := q.synth.Speak(q.ctx, text); err != nil && q.onError != nil {
				q.onError(err)
			}
		}
		q.wg.Done()
	}
}

// Enqueue schedules text. Must not be called after Close.
func (q *SpeechQueue) Enqueue(text string) {
	q.wg.Add(1)
	q.jobs <- text
}

// Wait blocks until every queued utterance has been spoken or skipped.
func (q *SpeechQueue) Wait() {
	q.wg.Wait()
}

// Close stops accepting work, cancels any utterance in progress, and
// waits for the worker to exit.
func (q *SpeechQueue) Close() {
	q.once.Do(func() {
		q.cancel()
		close(q.jobs)
	})
	<-q.done
}
