package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListFilterNormalized(t *testing.T) {
	f := ListFilter{SortField: "drop table", SortOrder: "ASC", Search: "  berlin "}.Normalized()

	assert.Equal(t, 1, f.Page)
	assert.Equal(t, DefaultListLimit, f.Limit)
	assert.Equal(t, SortLastAccessedAt, f.SortField)
	assert.Equal(t, "asc", f.SortOrder)
	assert.Equal(t, "berlin", f.Search)

	f = ListFilter{SortField: SortCity, SortOrder: "sideways"}.Normalized()
	assert.Equal(t, SortCity, f.SortField)
	assert.Equal(t, "desc", f.SortOrder)
}

func TestListFilterOffset(t *testing.T) {
	assert.Equal(t, 0, ListFilter{}.Offset())
	assert.Equal(t, 40, ListFilter{Page: 3, Limit: 20}.Offset())
}
