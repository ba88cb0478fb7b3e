package progress

import (
	"fmt"
	"io"
	"time"

	"hashcc/internal/metrics"

	"github.com/schollz/progressbar/v3"
)

type SnapshotFn func() metrics.Snapshot

// Bar renders byte progress. A negative total switches to spinner mode,
// used when the size of the work is unknown up front.
type Bar struct {
	bar  *progressbar.ProgressBar
	ch   chan int64
	done chan struct{}
	stop chan struct{}

	snap   SnapshotFn
	lastB  int64
	lastAt time.Time
}

func New(w io.Writer, totalBytes int64, snap SnapshotFn) *Bar {
	b := &Bar{
		ch:     make(chan int64, 16384),
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		snap:   snap,
		lastAt: time.Now(),
	}

	b.bar = progressbar.NewOptions64(
		totalBytes,
		progressbar.OptionSetWriter(w),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionSetDescription("hashing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetPredictTime(totalBytes > 0),
		progressbar.OptionThrottle(120*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	_ = b.bar.RenderBlank()
	go func() {
		defer close(b.done)
		for n := range b.ch {
			_ = b.bar.Add64(n)
		}
		_ = b.bar.Finish()
	}()

	go func() {
		t := time.NewTicker(1 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				b.updateDescription()
			case <-b.stop:
				return
			}
		}
	}()

	return b
}

// AddBytes is safe to call from any worker. A nil Bar ignores it.
func (b *Bar) AddBytes(n int64) {
	if b == nil || n <= 0 {
		return
	}
	b.ch <- n
}

func (b *Bar) Close() {
	if b == nil {
		return
	}
	close(b.stop)
	close(b.ch)
	<-b.done
}

func (b *Bar) updateDescription() {
	if b.snap == nil {
		return
	}
	snap := b.snap()

	now := time.Now()
	dt := now.Sub(b.lastAt).Seconds()

	mbps := 0.0
	if dt > 0 {
		dBytes := snap.BytesHashed - b.lastB
		mbps = (float64(dBytes) / 1_000_000.0) / dt
	}

	b.lastB = snap.BytesHashed
	b.lastAt = now

	total := "?"
	if snap.Total > 0 {
		total = fmt.Sprint(snap.Total)
	}
	desc := fmt.Sprintf("hashing %d/%s files | ok=%d failed=%d missing=%d err=%d | %.1f MB/s",
		snap.Processed, total, snap.OK, snap.Failed, snap.Missing, snap.Errors+snap.Rejected, mbps,
	)
	b.bar.Describe(desc)
}
