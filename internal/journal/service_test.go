package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	entries    []Entry
	lastOffset int
	lastLimit  int
}

func (s *stubRepo) Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error) {
	s.lastOffset = offset
	s.lastLimit = limit
	if offset >= len(s.entries) {
		return nil, nil
	}
	end := offset + limit
	if end > len(s.entries) {
		end = len(s.entries)
	}
	return s.entries[offset:end], nil
}

func makeEntries(n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{ID: int64(n - i), Action: "ledger:receive", Entity: "shipment"}
	}
	return out
}

func TestFeedPaging(t *testing.T) {
	repo := &stubRepo{entries: makeEntries(25)}
	svc := NewService(repo)

	result, err := svc.Feed(context.Background(), Filters{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, result.Entries, 20)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	require.Equal(t, 21, repo.lastLimit, "fetches one extra row to detect next page")

	result, err = svc.Feed(context.Background(), Filters{Page: 2, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, result.Entries, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
}

func TestFeedClampsPageSize(t *testing.T) {
	repo := &stubRepo{entries: makeEntries(100)}
	svc := NewService(repo)

	result, err := svc.Feed(context.Background(), Filters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, 50, result.Paging.PageSize)

	result, err = svc.Feed(context.Background(), Filters{Page: -1})
	require.NoError(t, err)
	require.Equal(t, 1, result.Paging.Page)
	require.Equal(t, 20, result.Paging.PageSize)
}
