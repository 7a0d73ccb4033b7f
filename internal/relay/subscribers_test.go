package relay

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"coderelay/internal/storage"
	logx "coderelay/pkg/logx"
)

func TestRegisterIfNewIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	s := NewSubscribers(ctx, st, logx.Nop(), nil)

	added, err := s.RegisterIfNew(ctx, 42)
	if err != nil || !added {
		t.Fatalf("first register = %v, %v", added, err)
	}
	for i := 0; i < 5; i++ {
		added, err = s.RegisterIfNew(ctx, 42)
		if err != nil || added {
			t.Fatalf("repeat register = %v, %v", added, err)
		}
	}
	if got := s.Enumerate(); !reflect.DeepEqual(got, []int64{42}) {
		t.Fatalf("Enumerate = %v", got)
	}
	if n := st.subSaves.Load(); n != 1 {
		t.Fatalf("saves = %d, want exactly 1", n)
	}
}

func TestEnumerateIsAscendingAndComplete(t *testing.T) {
	ctx := context.Background()
	s := NewSubscribers(ctx, storage.NewMemory(), logx.Nop(), nil)
	if got := s.Enumerate(); got == nil || len(got) != 0 {
		t.Fatalf("empty Enumerate = %#v", got)
	}
	for _, id := range []int64{30, -5, 10, 30, 20} {
		_, _ = s.RegisterIfNew(ctx, id)
	}
	want := []int64{-5, 10, 20, 30}
	if got := s.Enumerate(); !reflect.DeepEqual(got, want) {
		t.Fatalf("Enumerate = %v, want %v", got, want)
	}
	if !s.Known(10) || s.Known(11) {
		t.Fatalf("Known mismatch")
	}
}

func TestRegisterSaveFailureDoesNotCommit(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	s := NewSubscribers(ctx, st, logx.Nop(), nil)
	st.SetSaveErr(errors.New("read-only fs"))

	added, err := s.RegisterIfNew(ctx, 7)
	if !errors.Is(err, ErrStorageUnavailable) || added {
		t.Fatalf("register = %v, %v", added, err)
	}
	if s.Known(7) {
		t.Fatalf("id committed despite failed save")
	}

	st.SetSaveErr(nil)
	if added, err := s.RegisterIfNew(ctx, 7); err != nil || !added {
		t.Fatalf("retry register = %v, %v", added, err)
	}
}

func TestConcurrentRegisterSameID(t *testing.T) {
	ctx := context.Background()
	st := newCountingStore()
	s := NewSubscribers(ctx, st, logx.Nop(), nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	addedCount := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			added, _ := s.RegisterIfNew(ctx, 99)
			if added {
				mu.Lock()
				addedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if addedCount != 1 {
		t.Fatalf("added reported %d times, want 1", addedCount)
	}
	if n := st.subSaves.Load(); n != 1 {
		t.Fatalf("saves = %d, want 1", n)
	}
}

func TestSubscribersSurviveReload(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	s := NewSubscribers(ctx, st, logx.Nop(), nil)
	_, _ = s.RegisterIfNew(ctx, 1)
	_, _ = s.RegisterIfNew(ctx, 2)

	again := NewSubscribers(ctx, st, logx.Nop(), nil)
	if got := again.Enumerate(); !reflect.DeepEqual(got, []int64{1, 2}) {
		t.Fatalf("reloaded = %v", got)
	}
}

func TestAuthGate(t *testing.T) {
	cases := []struct {
		name   string
		admin  int64
		caller int64
		want   bool
	}{
		{"admin", 1001, 1001, true},
		{"other", 1001, 1002, false},
		{"negative group id", 1001, -1001, false},
		{"unset admin admits nobody", 0, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NewAuthGate(tc.admin).Authorize(tc.caller); got != tc.want {
				t.Fatalf("Authorize(%d) = %v, want %v", tc.caller, got, tc.want)
			}
		})
	}
}

func TestUnreadableSubscribersAreNotOverwritten(t *testing.T) {
	ctx := context.Background()
	st := storage.NewMemory()
	seed := NewSubscribers(ctx, st, logx.Nop(), nil)
	for _, id := range []int64{1, 2, 3} {
		_, _ = seed.RegisterIfNew(ctx, id)
	}

	st.SetLoadErr(errors.New("dial tcp: connection refused"))
	s := NewSubscribers(ctx, st, logx.Nop(), nil)
	if added, err := s.RegisterIfNew(ctx, 9); !errors.Is(err, ErrStorageUnavailable) || added {
		t.Fatalf("RegisterIfNew = %v, %v; want false, ErrStorageUnavailable", added, err)
	}

	st.SetLoadErr(nil)
	if err := s.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !s.Loaded() {
		t.Fatalf("Loaded = false after Reload")
	}
	if added, err := s.RegisterIfNew(ctx, 9); err != nil || !added {
		t.Fatalf("RegisterIfNew after reload = %v, %v", added, err)
	}
	if got := s.Enumerate(); !reflect.DeepEqual(got, []int64{1, 2, 3, 9}) {
		t.Fatalf("Enumerate = %v", got)
	}
}
