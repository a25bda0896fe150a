package dedupe_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/okian/keystudy/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

// record claims and completes key, as a successful write does.
func record(d dedupe.Deduper, key string) dedupe.State {
	st := d.Claim(context.Background(), key)
	if st == dedupe.Claimed {
		d.Complete(context.Background(), key)
	}
	return st
}

func TestDedupe(t *testing.T) {
	ctx := context.Background()

	Convey("Given an in-memory deduper", t, func() {
		Convey("When a key is claimed for the first time", func() {
			d := dedupe.NewInMemoryDeduper()
			st := d.Claim(ctx, "save_events:abc")

			Convey("Then it is owned by the caller", func() {
				So(st, ShouldEqual, dedupe.Claimed)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then a retry before completion is told it is in progress", func() {
				So(d.Claim(ctx, "save_events:abc"), ShouldEqual, dedupe.InProgress)
			})

			Convey("Then a retry after completion is told it is done", func() {
				d.Complete(ctx, "save_events:abc")
				So(d.Claim(ctx, "save_events:abc"), ShouldEqual, dedupe.Done)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then the same key under another operation is independent", func() {
				So(d.Claim(ctx, "save_features:abc"), ShouldEqual, dedupe.Claimed)
				So(d.Size(), ShouldEqual, 2)
			})
		})

		Convey("When a claimed key is released after a failed write", func() {
			d := dedupe.NewInMemoryDeduper()
			d.Claim(ctx, "k1")
			d.Release(ctx, "k1")

			Convey("Then the retry owns the key again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.Claim(ctx, "k1"), ShouldEqual, dedupe.Claimed)
			})
		})

		Convey("When a completed key is released", func() {
			d := dedupe.NewInMemoryDeduper()
			record(d, "k1")
			d.Release(ctx, "k1")

			Convey("Then it stays done", func() {
				So(d.Claim(ctx, "k1"), ShouldEqual, dedupe.Done)
			})
		})

		Convey("When an unknown key is released or completed", func() {
			d := dedupe.NewInMemoryDeduper()
			record(d, "k1")
			d.Release(ctx, "missing")
			d.Complete(ctx, "missing")

			Convey("Then nothing changes", func() {
				So(d.Size(), ShouldEqual, 1)
				So(d.Claim(ctx, "missing"), ShouldEqual, dedupe.Claimed)
			})
		})

		Convey("When the bounded deduper is full of completed keys", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for _, k := range []string{"k1", "k2", "k3", "k4"} {
				So(record(d, k), ShouldEqual, dedupe.Claimed)
			}

			Convey("Then the oldest key is evicted and the newer ones are kept", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.Claim(ctx, "k2"), ShouldEqual, dedupe.Done)
				So(d.Claim(ctx, "k3"), ShouldEqual, dedupe.Done)
				So(d.Claim(ctx, "k4"), ShouldEqual, dedupe.Done)
				So(d.Claim(ctx, "k1"), ShouldEqual, dedupe.Claimed)
				So(d.Size(), ShouldEqual, 3)
			})
		})

		Convey("When the oldest key is still in progress", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			d.Claim(ctx, "slow")
			record(d, "fast")
			d.Claim(ctx, "next")

			Convey("Then the oldest completed key is evicted instead", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.Claim(ctx, "slow"), ShouldEqual, dedupe.InProgress)
				So(d.Claim(ctx, "next"), ShouldEqual, dedupe.InProgress)
			})
		})

		Convey("When a released key frees a slot", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			d.Claim(ctx, "k1")
			record(d, "k2")
			d.Release(ctx, "k1")
			record(d, "k3")

			Convey("Then no other key is evicted", func() {
				So(d.Claim(ctx, "k2"), ShouldEqual, dedupe.Done)
				So(d.Claim(ctx, "k3"), ShouldEqual, dedupe.Done)
			})
		})

		Convey("When the size is zero or negative", func() {
			for _, size := range []int{0, -1} {
				d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(size))
				for i := 0; i < 1000; i++ {
					record(d, fmt.Sprintf("k-%d", i))
				}

				So(d.Size(), ShouldEqual, 1000)
				So(d.Claim(ctx, "k-0"), ShouldEqual, dedupe.Done)
			}
		})

		Convey("When keys are empty or very long", func() {
			d := dedupe.NewInMemoryDeduper()
			long := strings.Repeat("x", 10_000)

			So(record(d, ""), ShouldEqual, dedupe.Claimed)
			So(record(d, ""), ShouldEqual, dedupe.Done)
			So(record(d, long), ShouldEqual, dedupe.Claimed)
			So(record(d, long), ShouldEqual, dedupe.Done)
		})

		Convey("When states are printed", func() {
			So(dedupe.InProgress.String(), ShouldEqual, "in_progress")
			So(dedupe.State(9).String(), ShouldEqual, "unknown")
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given one key retried from many goroutines", t, func() {
		d := dedupe.NewInMemoryDeduper()
		const workers = 16

		var (
			wg    sync.WaitGroup
			mu    sync.Mutex
			owned int
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if d.Claim(context.Background(), "save_events:retry") == dedupe.Claimed {
					mu.Lock()
					owned++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one caller wins", func() {
			So(owned, ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})

	Convey("Given distinct keys from many goroutines", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		var wg sync.WaitGroup
		for g := 0; g < 10; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					record(d, fmt.Sprintf("k-%d-%d", g, j))
				}
			}(g)
		}
		wg.Wait()

		Convey("Then every key is recorded", func() {
			So(d.Size(), ShouldEqual, 1000)
		})
	})
}
