package kv

import (
	"context"
	"path/filepath"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlitePath := filepath.Join(t.TempDir(), "test.db")
	sqliteStore, err := Open(sqlitePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { sqliteStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqliteStore,
	}
}

func TestGetMissingKey(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, found, err := s.Get(context.Background(), ColumnArtifacts, "missing")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if found {
				t.Error("Get on missing key should report found=false")
			}
		})
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := s.Put(ctx, ColumnArtifacts, "art_1", []byte("hello")); err != nil {
				t.Fatalf("Put: %v", err)
			}
			value, found, err := s.Get(ctx, ColumnArtifacts, "art_1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !found {
				t.Fatal("Get should find the key just put")
			}
			if string(value) != "hello" {
				t.Errorf("Get = %q, want %q", value, "hello")
			}
		})
	}
}

func TestPutOverwrites(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Put(ctx, ColumnArtifacts, "art_1", []byte("v1"))
			s.Put(ctx, ColumnArtifacts, "art_1", []byte("v2"))
			value, _, _ := s.Get(ctx, ColumnArtifacts, "art_1")
			if string(value) != "v2" {
				t.Errorf("Get after overwrite = %q, want %q", value, "v2")
			}
		})
	}
}

func TestDelete(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Put(ctx, ColumnArtifacts, "art_1", []byte("v1"))
			if err := s.Delete(ctx, ColumnArtifacts, "art_1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			_, found, _ := s.Get(ctx, ColumnArtifacts, "art_1")
			if found {
				t.Error("Get after Delete should report found=false")
			}
		})
	}
}

func TestDeleteMissingKeyIsNoop(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.Delete(context.Background(), ColumnArtifacts, "missing"); err != nil {
				t.Errorf("Delete on missing key should not error, got %v", err)
			}
		})
	}
}

func TestColumnsAreIndependent(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Put(ctx, ColumnArtifacts, "k", []byte("artifacts-value"))
			s.Put(ctx, ColumnVersions, "k", []byte("versions-value"))

			a, _, _ := s.Get(ctx, ColumnArtifacts, "k")
			v, _, _ := s.Get(ctx, ColumnVersions, "k")
			if string(a) != "artifacts-value" || string(v) != "versions-value" {
				t.Errorf("column isolation broken: artifacts=%q versions=%q", a, v)
			}
		})
	}
}

func TestWriteBatchAppliesAllOps(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Put(ctx, ColumnArtifacts, "stale", []byte("old"))

			err := s.WriteBatch(ctx, []Op{
				{Kind: OpPut, Column: ColumnArtifacts, Key: "art_1", Value: []byte("v1")},
				{Kind: OpPut, Column: ColumnVersions, Key: "ver_1", Value: []byte("v2")},
				{Kind: OpDelete, Column: ColumnArtifacts, Key: "stale"},
			})
			if err != nil {
				t.Fatalf("WriteBatch: %v", err)
			}

			if _, found, _ := s.Get(ctx, ColumnArtifacts, "stale"); found {
				t.Error("WriteBatch should have deleted stale")
			}
			if v, found, _ := s.Get(ctx, ColumnArtifacts, "art_1"); !found || string(v) != "v1" {
				t.Errorf("WriteBatch should have put art_1=v1, got %q found=%v", v, found)
			}
			if v, found, _ := s.Get(ctx, ColumnVersions, "ver_1"); !found || string(v) != "v2" {
				t.Errorf("WriteBatch should have put ver_1=v2, got %q found=%v", v, found)
			}
		})
	}
}

func TestIterateVisitsEveryKeyOnce(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := map[string]string{"a": "1", "b": "2", "c": "3"}
			for k, v := range want {
				s.Put(ctx, ColumnArtifacts, k, []byte(v))
			}

			seen := make(map[string]string)
			err := s.Iterate(ctx, ColumnArtifacts, func(key string, value []byte) error {
				seen[key] = string(value)
				return nil
			})
			if err != nil {
				t.Fatalf("Iterate: %v", err)
			}
			if len(seen) != len(want) {
				t.Fatalf("Iterate visited %d keys, want %d", len(seen), len(want))
			}
			for k, v := range want {
				if seen[k] != v {
					t.Errorf("Iterate key %q = %q, want %q", k, seen[k], v)
				}
			}
		})
	}
}

func TestIteratePropagatesCallbackError(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s.Put(ctx, ColumnArtifacts, "a", []byte("1"))

			wantErr := errIterateStop
			err := s.Iterate(ctx, ColumnArtifacts, func(key string, value []byte) error {
				return wantErr
			})
			if err != wantErr {
				t.Errorf("Iterate error = %v, want %v", err, wantErr)
			}
		})
	}
}

var errIterateStop = &iterateStopError{}

type iterateStopError struct{}

func (*iterateStopError) Error() string { return "stop" }
