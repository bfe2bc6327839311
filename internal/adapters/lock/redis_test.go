package lock_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okian/trust/internal/adapters/lock"
	. "github.com/smartystreets/goconvey/convey"
)

// Runs only when TRUST_TEST_REDIS_ADDR points at a disposable Redis.
func TestRedisGuard(t *testing.T) {
	addr := os.Getenv("TRUST_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRUST_TEST_REDIS_ADDR not set")
	}

	Convey("Given a redis guard", t, func() {
		ctx := context.Background()
		rdb, err := lock.DialRedis(ctx, addr, "", 0)
		So(err, ShouldBeNil)
		defer func() { _ = rdb.Close() }()

		g := lock.NewRedisGuard(rdb,
			lock.WithRedisTimeout(5*time.Second),
			lock.WithKeyPrefix("trust:test:"+uuid.NewString()+":"),
		)

		Convey("When many goroutines mutate the same user", func() {
			counter := 0
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_ = g.WithUserLock(ctx, "user-1", func(context.Context) error {
						v := counter
						time.Sleep(time.Millisecond)
						counter = v + 1
						return nil
					})
				}()
			}
			wg.Wait()

			Convey("Then no increment is lost", func() {
				So(counter, ShouldEqual, 20)
			})
		})

		Convey("When a lease is held past a short timeout", func() {
			short := lock.NewRedisGuard(rdb, lock.WithRedisTimeout(20*time.Millisecond), lock.WithKeyPrefix("trust:test:"+uuid.NewString()+":"))
			held := make(chan struct{})
			release := make(chan struct{})
			go func() {
				_ = short.WithUserLock(ctx, "user-1", func(context.Context) error {
					close(held)
					<-release
					return nil
				})
			}()
			<-held
			err := short.WithUserLock(ctx, "user-1", func(context.Context) error { return nil })
			close(release)

			So(errors.Is(err, lock.ErrBusy), ShouldBeTrue)
		})
	})
}
