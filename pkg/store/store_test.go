package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"chatboard/models"
	"chatboard/pkg/validation"

	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		"badger": func(t *testing.T) Store {
			s, err := OpenBadger("")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func ptr(s string) *string { return &s }

func TestStoreContract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("create and get round trip", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				created, err := s.Create(ctx, models.MessageInput{
					Name: ptr("Unicode User 用户"), Message: "Hello 世界 🌍 مرحبا\nLine 2 @#$%^&*()\"'\\", IPAddress: ptr("127.0.0.1"),
				})
				require.NoError(t, err)
				require.NotZero(t, created.ID)
				require.False(t, created.CreatedAt.IsZero())
				require.False(t, created.UpdatedAt.Before(created.CreatedAt))

				got, err := s.Get(ctx, created.ID)
				require.NoError(t, err)
				require.Equal(t, created.ID, got.ID)
				require.Equal(t, *created.Name, *got.Name)
				require.Equal(t, created.Message, got.Message)
				require.Equal(t, "127.0.0.1", *got.IPAddress)
				require.True(t, created.CreatedAt.Equal(got.CreatedAt))
			})

			t.Run("nullable fields", func(t *testing.T) {
				s := open(t)
				created, err := s.Create(context.Background(), models.MessageInput{Message: "no name"})
				require.NoError(t, err)
				got, err := s.Get(context.Background(), created.ID)
				require.NoError(t, err)
				require.Nil(t, got.Name)
				require.Nil(t, got.IPAddress)
			})

			t.Run("ids are unique and list is ordered", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				seen := map[uint64]bool{}
				var ids []uint64
				for _, body := range []string{"First", "Second", "Third"} {
					m, err := s.Create(ctx, models.MessageInput{Message: body})
					require.NoError(t, err)
					require.False(t, seen[m.ID])
					seen[m.ID] = true
					ids = append(ids, m.ID)
					time.Sleep(2 * time.Millisecond)
				}
				list, err := s.List(ctx)
				require.NoError(t, err)
				require.Len(t, list, 3)
				for i, m := range list {
					require.Equal(t, ids[i], m.ID)
					if i > 0 {
						require.False(t, m.CreatedAt.Before(list[i-1].CreatedAt))
					}
				}
			})

			t.Run("empty list", func(t *testing.T) {
				list, err := open(t).List(context.Background())
				require.NoError(t, err)
				require.NotNil(t, list)
				require.Empty(t, list)
			})

			t.Run("validation", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				_, err := s.Create(ctx, models.MessageInput{Message: strings.Repeat("A", 10000)})
				require.NoError(t, err)

				var verr *validation.Error
				_, err = s.Create(ctx, models.MessageInput{Message: strings.Repeat("A", 10001)})
				require.True(t, errors.As(err, &verr))
				_, err = s.Create(ctx, models.MessageInput{Message: ""})
				require.True(t, errors.As(err, &verr))
				_, err = s.Create(ctx, models.MessageInput{Name: ptr(strings.Repeat("n", 256)), Message: "x"})
				require.True(t, errors.As(err, &verr))
				_, err = s.Create(ctx, models.MessageInput{Name: ptr(strings.Repeat("n", 255)), Message: "x"})
				require.NoError(t, err)

				list, err := s.List(ctx)
				require.NoError(t, err)
				require.Len(t, list, 2)
			})

			t.Run("update", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				orig, err := s.Create(ctx, models.MessageInput{Name: ptr("Original Name"), Message: "Original message", IPAddress: ptr("127.0.0.1")})
				require.NoError(t, err)
				time.Sleep(5 * time.Millisecond)

				updated, err := s.Update(ctx, orig.ID, models.MessageInput{Name: ptr("Updated Name"), Message: "Updated message", IPAddress: ptr("192.168.1.1")})
				require.NoError(t, err)
				require.Equal(t, orig.ID, updated.ID)
				require.Equal(t, "Updated Name", *updated.Name)
				require.Equal(t, "Updated message", updated.Message)
				require.Equal(t, "192.168.1.1", *updated.IPAddress)
				require.True(t, orig.CreatedAt.Equal(updated.CreatedAt))
				require.True(t, updated.UpdatedAt.After(orig.UpdatedAt))

				_, err = s.Update(ctx, orig.ID, models.MessageInput{Message: ""})
				var verr *validation.Error
				require.True(t, errors.As(err, &verr))

				got, err := s.Get(ctx, orig.ID)
				require.NoError(t, err)
				require.Equal(t, "Updated message", got.Message)
			})

			t.Run("update clears name", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				orig, err := s.Create(ctx, models.MessageInput{Name: ptr("Bob"), Message: "hi"})
				require.NoError(t, err)
				updated, err := s.Update(ctx, orig.ID, models.MessageInput{Message: "hi again"})
				require.NoError(t, err)
				require.Nil(t, updated.Name)
			})

			t.Run("delete", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				m, err := s.Create(ctx, models.MessageInput{Message: "Message to delete"})
				require.NoError(t, err)
				require.NoError(t, s.Delete(ctx, m.ID))
				_, err = s.Get(ctx, m.ID)
				require.ErrorIs(t, err, ErrNotFound)
				require.ErrorIs(t, s.Delete(ctx, m.ID), ErrNotFound)
			})

			t.Run("missing ids", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				_, err := s.Get(ctx, 99999)
				require.ErrorIs(t, err, ErrNotFound)
				_, err = s.Update(ctx, 99999, models.MessageInput{Message: "Updated"})
				require.ErrorIs(t, err, ErrNotFound)
				require.ErrorIs(t, s.Delete(ctx, 99999), ErrNotFound)
			})

			t.Run("concurrent creates", func(t *testing.T) {
				s := open(t)
				ctx := context.Background()
				var wg sync.WaitGroup
				ids := make(chan uint64, 20)
				for i := 0; i < 20; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						m, err := s.Create(ctx, models.MessageInput{Message: "burst"})
						if err == nil {
							ids <- m.ID
						}
					}()
				}
				wg.Wait()
				close(ids)
				seen := map[uint64]bool{}
				for id := range ids {
					require.False(t, seen[id])
					seen[id] = true
				}
				require.Len(t, seen, 20)

				list, err := s.List(ctx)
				require.NoError(t, err)
				for i := 1; i < len(list); i++ {
					require.False(t, list[i].CreatedAt.Before(list[i-1].CreatedAt))
				}
			})
		})
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("postgres", "")
	require.Error(t, err)
}

func TestOpenBadgerFromDriverName(t *testing.T) {
	s, err := Open(DriverBadger, t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestOpenMySQLRequiresDSN(t *testing.T) {
	_, err := OpenMySQL("")
	require.Error(t, err)
}
