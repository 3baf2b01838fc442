package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"csvimport/internal/config"
)

// fakeStore is a minimal Store implementation for tests.
type fakeStore struct{ closed bool }

func (f *fakeStore) Truncate(context.Context, string) error { return nil }
func (f *fakeStore) DeleteRange(context.Context, string, string, time.Time, time.Time) (int64, error) {
	return 0, nil
}
func (f *fakeStore) InsertBatch(_ context.Context, _ string, _ []string, rows [][]any) (int64, error) {
	return int64(len(rows)), nil
}
func (f *fakeStore) InsertStatement(string, []string) string { return "" }
func (f *fakeStore) Close() error                           { f.closed = true; return nil }

// TestRegisterAndOpen verifies that registering a backend enables Open to
// return the corresponding store.
func TestRegisterAndOpen(t *testing.T) {
	t.Parallel()

	kind := "fake"
	Register(kind, func(context.Context, config.Connection) (Store, error) {
		return &fakeStore{}, nil
	})

	s, err := Open(context.Background(), config.Connection{Kind: kind})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if s == nil {
		t.Fatalf("Open returned nil store")
	}

	found := false
	for _, k := range Kinds() {
		if k == kind {
			found = true
			break
		}
	}
	if !found {
		t.Fatalf("registered kind %q not present in Kinds: %v", kind, Kinds())
	}
}

func TestOpenUnsupported(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), config.Connection{Kind: "does-not-exist"})
	if !errors.Is(err, ErrUnsupportedKind) {
		t.Fatalf("want ErrUnsupportedKind, got %v", err)
	}
	if !strings.Contains(err.Error(), `"does-not-exist"`) {
		t.Fatalf("error %q does not name the kind", err)
	}
}

// TestRegisterOverride verifies that re-registering a kind replaces the
// previous factory.
func TestRegisterOverride(t *testing.T) {
	t.Parallel()

	kind := "override"
	calls := 0
	Register(kind, func(context.Context, config.Connection) (Store, error) {
		calls++
		return &fakeStore{}, nil
	})
	Register(kind, func(context.Context, config.Connection) (Store, error) {
		calls += 10
		return &fakeStore{}, nil
	})

	if _, err := Open(context.Background(), config.Connection{Kind: kind}); err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if calls != 10 {
		t.Fatalf("factory call count = %d, want 10", calls)
	}
}

func TestKindsSnapshot(t *testing.T) {
	t.Parallel()

	Register("snap", func(context.Context, config.Connection) (Store, error) { return &fakeStore{}, nil })

	a := Kinds()
	if len(a) == 0 {
		t.Fatalf("Kinds empty after registration")
	}
	a[0] = "mutated"
	if reflect.DeepEqual(a, Kinds()) {
		t.Fatalf("Kinds returned shared slice; want a copy")
	}
}

func TestFactoryErrorsBubbleUp(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	Register("errkind", func(context.Context, config.Connection) (Store, error) { return nil, want })

	if _, err := Open(context.Background(), config.Connection{Kind: "errkind"}); !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}

func TestMarkDuplicate(t *testing.T) {
	t.Parallel()

	type driverErr struct{ error }
	base := driverErr{errors.New("UNIQUE constraint failed")}

	err := fmt.Errorf("insert: %w", MarkDuplicate(base))
	if !IsDuplicateKey(err) {
		t.Fatalf("IsDuplicateKey(%v) = false", err)
	}
	var de driverErr
	if !errors.As(err, &de) {
		t.Fatalf("driver error not reachable through %v", err)
	}
	if err.Error() != "insert: UNIQUE constraint failed" {
		t.Fatalf("message = %q", err.Error())
	}
	if MarkDuplicate(nil) != nil {
		t.Fatalf("MarkDuplicate(nil) != nil")
	}
	if IsDuplicateKey(errors.New("other")) {
		t.Fatalf("plain error classified as duplicate")
	}
}

func TestSQLStoreInsertStatement(t *testing.T) {
	t.Parallel()

	s := NewSQLStore(nil, Dialect{Name: "x"})
	if got, want := s.InsertStatement("t", []string{"a", "b"}), "INSERT INTO t (a, b) VALUES (?, ?)"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	at := NewSQLStore(nil, Dialect{Name: "y", Placeholder: func(n int) string { return fmt.Sprintf("@p%d", n) }})
	if got, want := at.InsertStatement("t", []string{"a", "b"}), "INSERT INTO t (a, b) VALUES (@p1, @p2)"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
