package fn

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestResultBasics(t *testing.T) {
	ok := Ok(42)
	if !ok.IsOk() || ok.IsErr() {
		t.Error("Ok result flags wrong")
	}
	if v, _ := ok.Unwrap(); v != 42 {
		t.Errorf("got %d", v)
	}

	e := Err[int](errors.New("boom"))
	if e.IsOk() {
		t.Error("Err result reported ok")
	}
	if e.UnwrapOr(7) != 7 {
		t.Error("UnwrapOr fallback not used")
	}

	if r := FromPair(5, nil); r.IsErr() {
		t.Error("FromPair nil err should be ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Error("FromPair err should be err")
	}
}

func TestCollect(t *testing.T) {
	all := []Result[int]{Ok(1), Ok(2), Ok(3)}
	r := Collect(all)
	vs, err := r.Unwrap()
	if err != nil || len(vs) != 3 {
		t.Fatalf("got %v, %v", vs, err)
	}

	bad := []Result[int]{Ok(1), Err[int](errors.New("nope")), Ok(3)}
	if Collect(bad).IsOk() {
		t.Error("Collect should fail on first error")
	}
}

func TestThen(t *testing.T) {
	double := Stage[int, int](func(_ context.Context, n int) Result[int] { return Ok(n * 2) })
	toStr := Stage[int, string](func(_ context.Context, n int) Result[string] {
		if n > 10 {
			return Errf[string]("too big: %d", n)
		}
		return Ok("small")
	})

	s := Then(double, toStr)
	if v, err := s(context.Background(), 3).Unwrap(); err != nil || v != "small" {
		t.Errorf("got %q, %v", v, err)
	}
	if s(context.Background(), 6).IsOk() {
		t.Error("expected error for 12")
	}

	failing := Stage[int, int](func(_ context.Context, _ int) Result[int] { return Err[int](errors.New("first")) })
	called := false
	second := Stage[int, string](func(_ context.Context, _ int) Result[string] {
		called = true
		return Ok("never")
	})
	if Then(failing, second)(context.Background(), 1).IsOk() || called {
		t.Error("second stage ran after first failed")
	}
}

func TestParMapResult(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var inflight, maxInflight atomic.Int32

	results := ParMapResult(items, 2, func(n int) Result[int] {
		cur := inflight.Add(1)
		for {
			m := maxInflight.Load()
			if cur <= m || maxInflight.CompareAndSwap(m, cur) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inflight.Add(-1)
		return Ok(n * n)
	})

	for i, r := range results {
		v, err := r.Unwrap()
		if err != nil || v != items[i]*items[i] {
			t.Errorf("result %d: got %d, %v", i, v, err)
		}
	}
	if maxInflight.Load() > 2 {
		t.Errorf("worker bound exceeded: %d", maxInflight.Load())
	}
}

func TestRetryIf(t *testing.T) {
	opts := RetryOpts{MaxAttempts: 4, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond}

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		r := RetryIf(context.Background(), opts, func(error) bool { return true }, func(context.Context) Result[int] {
			calls++
			if calls < 3 {
				return Err[int](errors.New("flaky"))
			}
			return Ok(99)
		})
		if v, err := r.Unwrap(); err != nil || v != 99 {
			t.Fatalf("got %d, %v", v, err)
		}
		if calls != 3 {
			t.Errorf("expected 3 calls, got %d", calls)
		}
	})

	t.Run("non-retryable returns immediately", func(t *testing.T) {
		permanent := errors.New("permanent")
		calls := 0
		r := RetryIf(context.Background(), opts, func(err error) bool { return !errors.Is(err, permanent) }, func(context.Context) Result[int] {
			calls++
			return Err[int](permanent)
		})
		if r.IsOk() || calls != 1 {
			t.Errorf("expected single failing call, got %d calls", calls)
		}
	})

	t.Run("exhausts attempts", func(t *testing.T) {
		calls := 0
		r := Retry(context.Background(), opts, func(context.Context) Result[int] {
			calls++
			return Err[int](errors.New("always"))
		})
		if r.IsOk() || calls != opts.MaxAttempts {
			t.Errorf("expected %d calls, got %d", opts.MaxAttempts, calls)
		}
	})

	t.Run("zero max wait leaves backoff uncapped", func(t *testing.T) {
		start := time.Now()
		r := Retry(context.Background(), RetryOpts{MaxAttempts: 2, InitialWait: 20 * time.Millisecond}, func(context.Context) Result[int] {
			return Err[int](errors.New("always"))
		})
		if r.IsOk() {
			t.Fatal("expected failure")
		}
		if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
			t.Errorf("backoff clamped to zero: slept %v", elapsed)
		}
	})

	t.Run("cancelled context stops backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		r := Retry(ctx, RetryOpts{MaxAttempts: 3, InitialWait: time.Hour}, func(context.Context) Result[int] {
			return Err[int](errors.New("fail"))
		})
		_, err := r.Unwrap()
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got %v, want context.Canceled", err)
		}
	})
}

func TestSliceHelpers(t *testing.T) {
	if got := Map([]int{1, 2}, func(n int) int { return n + 1 }); got[0] != 2 || got[1] != 3 {
		t.Errorf("Map: %v", got)
	}

	groups := GroupBy([]string{"aa", "b", "cc"}, func(s string) int { return len(s) })
	if len(groups[2]) != 2 || len(groups[1]) != 1 {
		t.Errorf("GroupBy: %v", groups)
	}

	chunks := Chunk([]int{1, 2, 3, 4, 5}, 2)
	if len(chunks) != 3 || len(chunks[2]) != 1 {
		t.Errorf("Chunk: %v", chunks)
	}
	if Chunk([]int{1}, 0) != nil {
		t.Error("Chunk with n=0 should be nil")
	}

	u := UniqueBy([]string{"ab", "cd", "ax"}, func(s string) byte { return s[0] })
	if len(u) != 2 || u[0] != "ab" || u[1] != "cd" {
		t.Errorf("UniqueBy: %v", u)
	}
}

func TestFanOut(t *testing.T) {
	out := FanOut(
		func() int { time.Sleep(2 * time.Millisecond); return 1 },
		func() int { return 2 },
	)
	if out[0] != 1 || out[1] != 2 {
		t.Errorf("FanOut order not preserved: %v", out)
	}
}
