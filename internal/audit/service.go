package audit

import (
	"context"
	"errors"

	"github.com/odyssey-erp/odyssey-rvu/internal/shared"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// HistoryFilters narrows history listings. CompanyIDs is filled from the caller.
type HistoryFilters struct {
	CompanyIDs   []int64
	PeriodID     int64
	ItemID       int64
	ReviewerID   int64
	SupervisorID int64
	Query        string
	Page         int
	PageSize     int
}

// EntryFilters narrows audit trail listings.
type EntryFilters struct {
	CompanyIDs []int64
	ActorID    int64
	Entity     string
	EntityID   string
	Action     string
	Page       int
	PageSize   int
}

// PagingInfo describes the window returned by a listing.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// HistoryResult wraps history rows with paging.
type HistoryResult struct {
	Rows   []HistoryEntry `json:"rows"`
	Paging PagingInfo     `json:"paging"`
}

// EntryResult wraps audit rows with paging.
type EntryResult struct {
	Rows   []Entry    `json:"rows"`
	Paging PagingInfo `json:"paging"`
}

// Repository is the read side used by Service.
type Repository interface {
	ListHistory(ctx context.Context, f HistoryFilters, limit, offset int) ([]HistoryEntry, error)
	ListEntries(ctx context.Context, f EntryFilters, limit, offset int) ([]Entry, error)
}

// Service serves history and audit listings scoped to the caller's companies.
type Service struct {
	repo Repository
}

// NewService constructs the audit query service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// History lists review history visible to p.
func (s *Service) History(ctx context.Context, p shared.Principal, f HistoryFilters) (HistoryResult, error) {
	if s.repo == nil {
		return HistoryResult{}, errors.New("audit: repository not configured")
	}
	f.CompanyIDs = p.CompanyIDs
	page, size := normalizePage(f.Page, f.PageSize)
	if len(f.CompanyIDs) == 0 {
		return HistoryResult{Rows: []HistoryEntry{}, Paging: PagingInfo{Page: page, PageSize: size}}, nil
	}
	rows, err := s.repo.ListHistory(ctx, f, size+1, (page-1)*size)
	if err != nil {
		return HistoryResult{}, err
	}
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	if rows == nil {
		rows = []HistoryEntry{}
	}
	return HistoryResult{Rows: rows, Paging: paging(page, size, hasNext)}, nil
}

// Entries lists audit trail rows visible to p.
func (s *Service) Entries(ctx context.Context, p shared.Principal, f EntryFilters) (EntryResult, error) {
	if s.repo == nil {
		return EntryResult{}, errors.New("audit: repository not configured")
	}
	f.CompanyIDs = p.CompanyIDs
	page, size := normalizePage(f.Page, f.PageSize)
	if len(f.CompanyIDs) == 0 {
		return EntryResult{Rows: []Entry{}, Paging: PagingInfo{Page: page, PageSize: size}}, nil
	}
	rows, err := s.repo.ListEntries(ctx, f, size+1, (page-1)*size)
	if err != nil {
		return EntryResult{}, err
	}
	hasNext := len(rows) > size
	if hasNext {
		rows = rows[:size]
	}
	if rows == nil {
		rows = []Entry{}
	}
	return EntryResult{Rows: rows, Paging: paging(page, size, hasNext)}, nil
}

func normalizePage(page, size int) (int, int) {
	if size <= 0 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	if page <= 0 {
		page = 1
	}
	return page, size
}

func paging(page, size int, hasNext bool) PagingInfo {
	info := PagingInfo{Page: page, PageSize: size, HasNext: hasNext}
	if page > 1 {
		info.PrevPage = page - 1
	}
	if hasNext {
		info.NextPage = page + 1
	}
	return info
}
