package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationBounds(t *testing.T) {
	p := PaginationFromPages(0, 3, 10, 25)
	assert.Equal(t, 1, p.Page)
	assert.False(t, p.HasPrev())
	assert.Equal(t, 1, p.PrevPage())
	assert.Equal(t, 2, p.NextPage())

	p = PaginationFromPages(9, 3, 10, 25)
	assert.Equal(t, 3, p.Page)
	assert.False(t, p.HasNext())
	assert.Equal(t, 3, p.NextPage())
	assert.Equal(t, []int{1, 2, 3}, p.Pages())
}

func TestPaginationSinglePageHidesControls(t *testing.T) {
	assert.False(t, PaginationFromPages(1, 1, 10, 4).Show())
	assert.True(t, PaginationFromPages(1, 2, 10, 11).Show())
	assert.Equal(t, 1, PaginationFromPages(5, 0, 10, 0).Page)
}
