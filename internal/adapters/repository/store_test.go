package repository_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/trust/internal/adapters/repository"
	"github.com/okian/trust/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func openStores(t *testing.T) map[string]func() repository.Store {
	t.Helper()
	return map[string]func() repository.Store{
		"memory": func() repository.Store { return repository.NewMemoryStore() },
		"sqlite": func() repository.Store {
			dsn := filepath.Join(t.TempDir(), "ledger", "trust.db")
			s, err := repository.Open(context.Background(), repository.Config{
				Driver:      repository.DriverSQLite,
				DSN:         dsn,
				AutoMigrate: true,
			})
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

// appendN writes n positive_review events for user starting at seq 1.
func appendN(ctx context.Context, s repository.Store, user string, n int) []model.Event {
	out := make([]model.Event, 0, n)
	score := 0
	for i := 1; i <= n; i++ {
		score += 10
		ev := model.Event{
			ID:             fmt.Sprintf("%s-%d", user, i),
			UserID:         user,
			Type:           "positive_review",
			WeightApplied:  10,
			BaseWeight:     10,
			Seq:            int64(i),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
			ResultingScore: score,
		}
		p := model.Profile{UserID: user, Score: score, Level: "new", Version: int64(i), UpdatedAt: ev.CreatedAt}
		So(s.Append(ctx, ev, p), ShouldBeNil)
		out = append(out, ev)
	}
	return out
}

func TestStoreContract(t *testing.T) {
	for name, open := range openStores(t) {
		Convey("Given a "+name+" store", t, func() {
			ctx := context.Background()
			s := open()

			Convey("When nothing was recorded", func() {
				_, ok, err := s.Profile(ctx, "u1")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)

				n := 0
				for _, err := range s.Events(ctx, "u1", 10) {
					So(err, ShouldBeNil)
					n++
				}
				So(n, ShouldEqual, 0)
			})

			Convey("When events are appended", func() {
				written := appendN(ctx, s, "u1", 5)

				Convey("Then the profile follows the last event", func() {
					p, ok, err := s.Profile(ctx, "u1")
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
					So(p.Score, ShouldEqual, 50)
					So(p.Version, ShouldEqual, 5)
					So(p.UpdatedAt.Equal(written[4].CreatedAt), ShouldBeTrue)
				})

				Convey("Then history is newest first and limited", func() {
					var seqs []int64
					for ev, err := range s.Events(ctx, "u1", 3) {
						So(err, ShouldBeNil)
						seqs = append(seqs, ev.Seq)
					}
					So(seqs, ShouldResemble, []int64{5, 4, 3})
				})

				Convey("Then the history sequence is single-use", func() {
					seq := s.Events(ctx, "u1", 10)
					for range seq {
					}
					var second []error
					for _, err := range seq {
						second = append(second, err)
					}
					So(second, ShouldHaveLength, 1)
					So(errors.Is(second[0], repository.ErrSequenceConsumed), ShouldBeTrue)
				})

				Convey("Then replay is oldest first and complete", func() {
					var seqs []int64
					So(s.Replay(ctx, "u1", func(ev model.Event) error {
						seqs = append(seqs, ev.Seq)
						return nil
					}), ShouldBeNil)
					So(seqs, ShouldResemble, []int64{1, 2, 3, 4, 5})
				})

				Convey("Then events are found by id", func() {
					ev, ok, err := s.FindEvent(ctx, "u1-3")
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
					So(ev.Seq, ShouldEqual, 3)
					So(ev.ResultingScore, ShouldEqual, 30)
					So(ev.CreatedAt.Equal(written[2].CreatedAt), ShouldBeTrue)
					So(ev.Context, ShouldBeNil)

					_, ok, err = s.FindEvent(ctx, "missing")
					So(err, ShouldBeNil)
					So(ok, ShouldBeFalse)
				})

				Convey("Then CountSince counts a trailing window", func() {
					n, err := s.CountSince(ctx, "u1", "positive_review", base.Add(3*time.Minute))
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 3)

					n, err = s.CountSince(ctx, "u1", "dispute_lost", base)
					So(err, ShouldBeNil)
					So(n, ShouldEqual, 0)
				})

				Convey("Then a stale append is a conflict and leaves no trace", func() {
					ev := model.Event{ID: "stale", UserID: "u1", Type: "positive_review", Seq: 5, CreatedAt: base.Add(time.Hour)}
					err := s.Append(ctx, ev, model.Profile{UserID: "u1", Score: 999, Version: 5})
					So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)

					_, ok, _ := s.FindEvent(ctx, "stale")
					So(ok, ShouldBeFalse)
					p, _, _ := s.Profile(ctx, "u1")
					So(p.Score, ShouldEqual, 50)
				})

				Convey("Then a reused event id is a conflict", func() {
					ev := model.Event{ID: "u1-1", UserID: "u1", Type: "positive_review", Seq: 6, CreatedAt: base.Add(time.Hour)}
					err := s.Append(ctx, ev, model.Profile{UserID: "u1", Score: 60, Version: 6})
					So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)

					p, _, _ := s.Profile(ctx, "u1")
					So(p.Version, ShouldEqual, 5)
				})

				Convey("Then SaveProfile is conditional on the version", func() {
					So(s.SaveProfile(ctx, model.Profile{UserID: "u1", Score: 40, Level: "new", Version: 5, UpdatedAt: base}), ShouldBeNil)
					p, _, _ := s.Profile(ctx, "u1")
					So(p.Score, ShouldEqual, 40)

					err := s.SaveProfile(ctx, model.Profile{UserID: "u1", Score: 1, Version: 4})
					So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				})

				Convey("Then SaveProfile of an unknown user is not found", func() {
					err := s.SaveProfile(ctx, model.Profile{UserID: "nobody", Score: 1, Version: 1})
					So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
					So(errors.Is(err, repository.ErrConflict), ShouldBeFalse)

					_, ok, _ := s.Profile(ctx, "nobody")
					So(ok, ShouldBeFalse)
				})

				Convey("Then stats count users and events", func() {
					appendN(ctx, s, "u2", 2)
					st, err := s.Stats(ctx)
					So(err, ShouldBeNil)
					So(st, ShouldResemble, repository.Stats{Profiles: 2, Events: 7})
				})
			})

			Convey("When an event carries context", func() {
				raw := json.RawMessage(`{"order_id":"o-1","rating":5}`)
				ev := model.Event{ID: "c1", UserID: "u3", Type: "positive_review", WeightApplied: 10, BaseWeight: 10, Context: raw, Seq: 1, CreatedAt: base, ResultingScore: 10}
				So(s.Append(ctx, ev, model.Profile{UserID: "u3", Score: 10, Level: "new", Version: 1, UpdatedAt: base}), ShouldBeNil)

				Convey("Then it round-trips as the same object", func() {
					got, ok, err := s.FindEvent(ctx, "c1")
					So(err, ShouldBeNil)
					So(ok, ShouldBeTrue)
					var m map[string]any
					So(json.Unmarshal(got.Context, &m), ShouldBeNil)
					So(m["order_id"], ShouldEqual, "o-1")
					So(m["rating"], ShouldEqual, 5.0)
				})
			})

			Convey("When event and profile disagree", func() {
				ev := model.Event{ID: "x", UserID: "u1", Seq: 1}
				err := s.Append(ctx, ev, model.Profile{UserID: "u1", Version: 2})
				So(errors.Is(err, repository.ErrInvalidAppend), ShouldBeTrue)
			})

			Convey("When many writers race for the same seq", func() {
				var wg sync.WaitGroup
				var mu sync.Mutex
				wins := 0
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						ev := model.Event{ID: fmt.Sprintf("race-%d", i), UserID: "u4", Type: "positive_review", Seq: 1, CreatedAt: base}
						if s.Append(ctx, ev, model.Profile{UserID: "u4", Score: i, Version: 1, UpdatedAt: base}) == nil {
							mu.Lock()
							wins++
							mu.Unlock()
						}
					}(i)
				}
				wg.Wait()

				Convey("Then exactly one commits", func() {
					So(wins, ShouldEqual, 1)
					st, err := s.Stats(ctx)
					So(err, ShouldBeNil)
					So(st.Events, ShouldEqual, 1)
				})
			})
		})
	}
}

func TestOpen(t *testing.T) {
	Convey("Given store configurations", t, func() {
		ctx := context.Background()

		Convey("When the driver is empty", func() {
			s, err := repository.Open(ctx, repository.Config{})
			So(err, ShouldBeNil)
			_, isMemory := s.(*repository.MemoryStore)
			So(isMemory, ShouldBeTrue)
		})

		Convey("When the driver is unknown", func() {
			_, err := repository.Open(ctx, repository.Config{Driver: "oracle"})
			So(errors.Is(err, repository.ErrUnsupportedDriver), ShouldBeTrue)
		})

		Convey("When sqlite runs in memory", func() {
			s, err := repository.Open(ctx, repository.Config{Driver: "sqlite", DSN: ":memory:", AutoMigrate: true})
			So(err, ShouldBeNil)
			defer s.Close()
			_, isGorm := s.(*repository.GormStore)
			So(isGorm, ShouldBeTrue)
		})
	})
}
