package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/hupe1980/termsort/term"
)

// RetryPolicy bounds how long Claim waits for work.
type RetryPolicy struct {
	Attempts int           // default 3
	Wait     time.Duration // per attempt, default 10ms
}

// Config configures a Dispatcher.
type Config struct {
	Buckets  int // default 4
	MinSteal int // smallest unprocessed range worth splitting, default 2
	Retry    RetryPolicy
	Logger   *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Buckets <= 0 {
		c.Buckets = 4
	}
	if c.MinSteal < 2 {
		c.MinSteal = 2
	}
	if c.Retry.Attempts <= 0 {
		c.Retry.Attempts = 3
	}
	if c.Retry.Wait <= 0 {
		c.Retry.Wait = 10 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	return c
}

// Stats summarizes the work handed out so far.
type Stats struct {
	Assigned  uint32 // sequence numbers handed out, steals included
	Completed uint64
	Steals    int64
	Timeouts  int64
	Primary   int64
	Derived   int64
}

// Dispatcher distributes input ranges over a fixed set of buckets. Buckets
// cycle free -> filling -> ready -> merging -> done -> free.
type Dispatcher struct {
	cfg     Config
	buckets []*ThreadBucket
	free    chan *ThreadBucket
	ready   chan *ThreadBucket

	mu        sync.Mutex
	seq       uint32
	active    map[uint32]*ThreadBucket
	pending   map[uint32]int // unfinished pieces per assignment
	completed *roaring.Bitmap
	closed    bool

	steals   *xsync.Counter
	timeouts *xsync.Counter
	primary  *xsync.Counter
	derived  *xsync.Counter
}

// New returns a dispatcher with cfg.Buckets free buckets.
func New(cfg Config) *Dispatcher {
	cfg = cfg.withDefaults()
	d := &Dispatcher{
		cfg:       cfg,
		buckets:   make([]*ThreadBucket, cfg.Buckets),
		free:      make(chan *ThreadBucket, cfg.Buckets),
		ready:     make(chan *ThreadBucket, cfg.Buckets),
		active:    make(map[uint32]*ThreadBucket),
		pending:   make(map[uint32]int),
		completed: roaring.New(),
		steals:    xsync.NewCounter(),
		timeouts:  xsync.NewCounter(),
		primary:   xsync.NewCounter(),
		derived:   xsync.NewCounter(),
	}
	for i := range d.buckets {
		d.buckets[i] = &ThreadBucket{slot: i}
		d.free <- d.buckets[i]
	}

	return d
}

// Assign hands a range of input terms to the next free bucket, waiting for
// one if all are busy. The returned sequence number can be polled.
func (d *Dispatcher) Assign(ctx context.Context, terms []term.Term) (uint32, error) {
	var b *ThreadBucket
	select {
	case b = <-d.free:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.free <- b
		return 0, ErrClosed
	}
	d.seq++
	b.fill(d.seq, d.seq, terms)
	d.active[d.seq] = b
	d.pending[d.seq] = 1
	d.ready <- b

	return d.seq, nil
}

// Poll reports the state of an assignment. A range split by a steal is done
// once all of its pieces are.
func (d *Dispatcher) Poll(seq uint32) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.completed.Contains(seq) {
		return StatusDone
	}
	if b, ok := d.active[seq]; ok {
		return b.Status()
	}
	if d.pending[seq] > 0 {
		return StatusMerging
	}

	return StatusFree
}

// Claim returns a ready bucket for a worker. When none shows up within a
// retry wait it tries to steal; after the last attempt it gives up with
// ErrSchedulingTimeout. Once the dispatcher is closed and nothing is left
// to claim or steal, Claim returns ErrClosed.
func (d *Dispatcher) Claim(ctx context.Context) (*ThreadBucket, error) {
	timer := time.NewTimer(d.cfg.Retry.Wait)
	defer timer.Stop()

	for attempt := range d.cfg.Retry.Attempts {
		if attempt > 0 {
			timer.Reset(d.cfg.Retry.Wait)
		}
		select {
		case b, ok := <-d.ready:
			if !ok {
				if b, ok := d.Steal(); ok {
					return b, nil
				}
				return nil, ErrClosed
			}
			b.mu.Lock()
			b.status = StatusMerging
			b.mu.Unlock()
			return b, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		if b, ok := d.Steal(); ok {
			return b, nil
		}
	}
	d.timeouts.Inc()
	d.cfg.Logger.Debug("no bucket within retry policy",
		"attempts", d.cfg.Retry.Attempts, "wait", d.cfg.Retry.Wait)

	return nil, ErrSchedulingTimeout
}

// Steal splits the unprocessed upper half off the busiest bucket into a free
// bucket and returns it already claimed. It fails when no bucket is free or
// no bucket holds at least MinSteal unprocessed terms.
func (d *Dispatcher) Steal() (*ThreadBucket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var victim *ThreadBucket
	most := 0
	for _, b := range d.buckets {
		b.mu.Lock()
		if n := b.remaining(); b.status == StatusMerging && n > most {
			victim, most = b, n
		}
		b.mu.Unlock()
	}
	if victim == nil || most < d.cfg.MinSteal {
		return nil, false
	}

	var nb *ThreadBucket
	select {
	case nb = <-d.free:
	default:
		return nil, false
	}
	upper, root, ok := victim.split(d.cfg.MinSteal)
	if !ok {
		d.free <- nb
		return nil, false
	}

	d.seq++
	nb.fill(d.seq, root, upper)
	nb.mu.Lock()
	nb.status = StatusMerging
	nb.mu.Unlock()
	d.active[d.seq] = nb
	d.pending[root]++
	d.steals.Inc()
	d.cfg.Logger.Debug("bucket stolen", "root", root, "seq", d.seq, "terms", len(upper))

	return nb, true
}

// Complete marks a claimed bucket done and returns it to the free pool.
func (d *Dispatcher) Complete(b *ThreadBucket) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b.mu.Lock()
	if b.status != StatusMerging {
		b.mu.Unlock()
		return
	}
	b.status = StatusDone
	seq, root := b.seq, b.root
	primary, derived := b.primary, b.derived
	b.mu.Unlock()

	d.primary.Add(primary)
	d.derived.Add(derived)
	delete(d.active, seq)
	if seq != root {
		d.completed.Add(seq)
	}
	if d.pending[root]--; d.pending[root] <= 0 {
		delete(d.pending, root)
		d.completed.Add(root)
	}

	b.release()
	d.free <- b
}

// Close stops accepting assignments. Ranges already assigned can still be
// claimed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.ready)
}

// Completed returns a copy of the finished sequence numbers.
func (d *Dispatcher) Completed() *roaring.Bitmap {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.completed.Clone()
}

// Stats returns the dispatch counters.
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	assigned, completed := d.seq, d.completed.GetCardinality()
	d.mu.Unlock()

	return Stats{
		Assigned:  assigned,
		Completed: completed,
		Steals:    d.steals.Value(),
		Timeouts:  d.timeouts.Value(),
		Primary:   d.primary.Value(),
		Derived:   d.derived.Value(),
	}
}
