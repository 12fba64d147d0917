package pagination

import (
	"sort"
	"strconv"

	"github.com/studygroup/backend/models"
)

const (
	DefaultPage  = 1
	DefaultLimit = 50
	MaxLimit     = 100
)

// Params are the sanitized paging inputs
type Params struct {
	Page  int
	Limit int
}

// Meta describes the position of a page within the full message list
type Meta struct {
	Page          int  `json:"page"`
	Limit         int  `json:"limit"`
	TotalMessages int  `json:"totalMessages"`
	TotalPages    int  `json:"totalPages"`
	HasNextPage   bool `json:"hasNextPage"`
	HasPrevPage   bool `json:"hasPrevPage"`
}

// ParseParams reads page and limit query values, applying defaults and
// silently clamping out-of-range values
func ParseParams(pageStr, limitStr string) Params {
	page := DefaultPage
	if v, err := strconv.Atoi(pageStr); err == nil && v >= 1 {
		page = v
	}

	limit := DefaultLimit
	if v, err := strconv.Atoi(limitStr); err == nil && v >= 1 {
		limit = v
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{Page: page, Limit: limit}
}

// Page slices one page out of a room's full message list. Messages are
// ranked newest-first, the requested page window is cut from that ranking,
// and the window is then reversed so each page reads chronologically.
// Consecutive pages therefore step backwards through history while staying
// oldest-first internally.
func Page(messages []models.Message, p Params) ([]models.Message, Meta) {
	sorted := make([]models.Message, len(messages))
	copy(sorted, messages)

	// Newest first. ID breaks ties so paging stays deterministic when
	// timestamps collide at the store's resolution.
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	total := len(sorted)
	totalPages := (total + p.Limit - 1) / p.Limit

	skip := (p.Page - 1) * p.Limit
	if skip > total {
		skip = total
	}
	end := skip + p.Limit
	if end > total {
		end = total
	}

	page := sorted[skip:end]

	// Reverse in place so the page reads oldest-first
	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}

	meta := Meta{
		Page:          p.Page,
		Limit:         p.Limit,
		TotalMessages: total,
		TotalPages:    totalPages,
		HasNextPage:   p.Page < totalPages,
		HasPrevPage:   p.Page > 1,
	}

	return page, meta
}
