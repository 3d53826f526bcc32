package dto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	all, meta := Paginate(items, PageQuery{})
	assert.Equal(t, items, all)
	assert.Equal(t, PaginationMeta{CurrentPage: 1, TotalPages: 1, TotalItems: 5, Limit: 5}, meta)

	first, meta := Paginate(items, PageQuery{Limit: 2})
	assert.Equal(t, []int{1, 2}, first)
	assert.Equal(t, 3, meta.TotalPages)

	last, meta := Paginate(items, PageQuery{Page: 3, Limit: 2})
	assert.Equal(t, []int{5}, last)
	assert.Equal(t, 3, meta.CurrentPage)

	past, _ := Paginate(items, PageQuery{Page: 9, Limit: 2})
	assert.Empty(t, past)
	assert.NotNil(t, past)
}
