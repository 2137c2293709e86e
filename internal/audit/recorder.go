// Package audit durably records every access or mutation of protected
// clinical data. Denials and approvals are written synchronously before the
// caller's response is finalized; allowed mutations are queued with
// reliable delivery; allowed reads may be sampled for cost control.
package audit

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"caseshare.org/internal/cases"
	"caseshare.org/internal/obs"
)

const (
	appendAttempts = 3
	queueCapacity  = 1024
)

type queued struct {
	ev         Event
	bestEffort bool
}

// Recorder routes events to the sink and mirrors them to the structured
// log. Safe for concurrent use.
type Recorder struct {
	sink         Sink
	log          *zap.Logger
	sampleRate   float64
	durableVerbs map[string]bool

	queue chan queued
	wg    sync.WaitGroup

	rndMu sync.Mutex
	rnd   *rand.Rand

	now func() time.Time
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSampleRate sets the fraction of allowed read events that are
// recorded. Denials and writes are never sampled.
func WithSampleRate(rate float64) Option {
	return func(r *Recorder) {
		if rate >= 0 && rate <= 1 {
			r.sampleRate = rate
		}
	}
}

// WithDurableVerbs marks additional verbs whose events must be durable
// before the response is finalized.
func WithDurableVerbs(verbs ...string) Option {
	return func(r *Recorder) {
		for _, v := range verbs {
			r.durableVerbs[v] = true
		}
	}
}

// NewRecorder builds a recorder over the given sink and starts its
// delivery worker. Call Close to drain the queue on shutdown.
func NewRecorder(sink Sink, log *zap.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		sink:         sink,
		log:          log,
		sampleRate:   1.0,
		durableVerbs: map[string]bool{"plan.approve": true},
		queue:        make(chan queued, queueCapacity),
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record writes one event. Denials and durable verbs block until the sink
// accepted the event and surface cases.ErrAuditWrite on failure; every
// other event is queued with reliable delivery and never fails the caller.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	e.stamp(r.now())
	r.mirror(e)
	if e.Outcome == OutcomeDenied || r.durableVerbs[e.Verb] {
		if err := r.append(ctx, e); err != nil {
			obs.ObserveAuditWriteFailure()
			r.log.Error("durable audit write failed",
				zap.String("event_id", e.ID),
				zap.String("verb", e.Verb),
				zap.Error(err))
			return fmt.Errorf("%w: %v", cases.ErrAuditWrite, err)
		}
		obs.ObserveAuditEvent(string(e.Outcome), "sync")
		return nil
	}
	r.enqueue(queued{ev: e})
	return nil
}

// RecordRead writes an allowed-read event, subject to the configured
// sampling rate. Delivery is best effort; a full queue drops the event.
func (r *Recorder) RecordRead(ctx context.Context, e Event) {
	if !r.sampled() {
		return
	}
	e.stamp(r.now())
	r.mirror(e)
	select {
	case r.queue <- queued{ev: e, bestEffort: true}:
		obs.SetAuditQueueDepth(len(r.queue))
	default:
		r.log.Warn("audit queue full, dropping sampled read event", zap.String("verb", e.Verb))
	}
}

// Close drains the async queue. No Record calls may race with Close.
func (r *Recorder) Close() {
	close(r.queue)
	r.wg.Wait()
}

func (r *Recorder) sampled() bool {
	if r.sampleRate >= 1 {
		return true
	}
	if r.sampleRate <= 0 {
		return false
	}
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.rnd.Float64() < r.sampleRate
}

func (r *Recorder) enqueue(q queued) {
	select {
	case r.queue <- q:
		obs.SetAuditQueueDepth(len(r.queue))
	default:
		// Queue full on a must-record event: write inline instead of dropping.
		if err := r.append(context.Background(), q.ev); err != nil {
			obs.ObserveAuditWriteFailure()
			r.log.Error("audit write failed with full queue",
				zap.String("event_id", q.ev.ID), zap.Error(err))
		}
	}
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for q := range r.queue {
		obs.SetAuditQueueDepth(len(r.queue))
		err := r.append(context.Background(), q.ev)
		if err == nil {
			obs.ObserveAuditEvent(string(q.ev.Outcome), "async")
			continue
		}
		if q.bestEffort {
			r.log.Warn("sampled audit event dropped after retries",
				zap.String("event_id", q.ev.ID), zap.Error(err))
			continue
		}
		obs.ObserveAuditWriteFailure()
		r.log.Error("audit write failed after retries",
			zap.String("event_id", q.ev.ID),
			zap.String("verb", q.ev.Verb),
			zap.Error(err))
	}
}

// append retries transient sink failures with a short backoff.
func (r *Recorder) append(ctx context.Context, e Event) error {
	var err error
	for attempt := 1; attempt <= appendAttempts; attempt++ {
		err = r.sink.Append(ctx, e)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return err
}

func (r *Recorder) mirror(e Event) {
	r.log.Info("audit",
		zap.String("event_id", e.ID),
		zap.String("actor_id", e.ActorID),
		zap.String("verb", e.Verb),
		zap.String("object_type", e.ObjectType),
		zap.String("object_id", e.ObjectID),
		zap.String("org_context", e.OrgContext),
		zap.String("outcome", string(e.Outcome)),
		zap.Time("timestamp", e.Timestamp))
}

// Stream exports matching events in id order across pagination boundaries,
// invoking fn for each event until the range is exhausted.
func (r *Recorder) Stream(ctx context.Context, f Filter, pageSize int, fn func(Event) error) error {
	if pageSize <= 0 {
		pageSize = 500
	}
	after := ""
	for {
		page, err := r.sink.Export(ctx, f, after, pageSize)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		for _, e := range page {
			if err := fn(e); err != nil {
				return err
			}
		}
		after = page[len(page)-1].ID
	}
}
