package dto

// PageQuery is the optional ?page=&limit= pair on list endpoints. Limit 0 means everything.
type PageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=500"`
}

type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	Limit       int   `json:"limit"`
}

// Paginate cuts one page out of items. A page past the end is empty.
func Paginate[T any](items []T, q PageQuery) ([]T, PaginationMeta) {
	total := len(items)
	if q.Limit <= 0 {
		return items, PaginationMeta{CurrentPage: 1, TotalPages: 1, TotalItems: int64(total), Limit: total}
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	meta := PaginationMeta{
		CurrentPage: page,
		TotalPages:  (total + q.Limit - 1) / q.Limit,
		TotalItems:  int64(total),
		Limit:       q.Limit,
	}

	start := (page - 1) * q.Limit
	if start >= total {
		return []T{}, meta
	}
	end := min(start+q.Limit, total)
	return items[start:end], meta
}
