package journal

import (
	"context"
	"fmt"

	"github.com/gastromanager/gastromanager/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 50
)

// RepositoryPort is the data access contract for the feed.
type RepositoryPort interface {
	Window(ctx context.Context, filters Filters, offset, limit int) ([]Entry, error)
}

// Result wraps a feed page with paging information.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}

// Service coordinates activity feed reads.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Feed returns one page of the activity feed. It fetches one extra row to
// detect whether a next page exists.
func (s *Service) Feed(ctx context.Context, filters Filters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("journal: repository not configured")
	}
	window := shared.NewPageWindow(filters.Page, filters.PageSize, defaultPageSize, maxPageSize)

	entries, err := s.repo.Window(ctx, filters, window.Offset, window.Size+1)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(entries) > window.Size
	if hasNext {
		entries = entries[:window.Size]
	}
	paging := PagingInfo{Page: window.Page, PageSize: window.Size, HasNext: hasNext}
	if window.Page > 1 {
		paging.PrevPage = window.Page - 1
	}
	if hasNext {
		paging.NextPage = window.Page + 1
	}
	return Result{Entries: entries, Paging: paging}, nil
}
