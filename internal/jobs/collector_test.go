package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/keyword-hunter/internal/domain"
)

// pagedSource serves pages of the given sizes and records every query.
type pagedSource struct {
	sizes   []int
	queries []domain.PageQuery
	failAt  int
}

func (s *pagedSource) ExpansionPage(_ context.Context, _ domain.JobHandle, q domain.PageQuery) (domain.Page, error) {
	s.queries = append(s.queries, q)
	if s.failAt > 0 && q.Page == s.failAt {
		return domain.Page{}, errors.New("upstream exploded")
	}
	if q.Page > len(s.sizes) {
		return domain.Page{Data: []domain.Candidate{}}, nil
	}
	n := s.sizes[q.Page-1]
	data := make([]domain.Candidate, n)
	for i := range data {
		data[i] = domain.Candidate{Word: fmt.Sprintf("p%d-%d", q.Page, i)}
	}
	return domain.Page{Data: data, Total: 9999}, nil
}

func TestCollector_CollectAll(t *testing.T) {
	t.Run("stops on the first short page", func(t *testing.T) {
		src := &pagedSource{sizes: []int{100, 100, 37}}

		got, err := NewCollector(src).CollectAll(context.Background(), "u1", 100, "numwords>=3", "wsk|asc")

		require.NoError(t, err)
		assert.Len(t, got, 237)
		require.Len(t, src.queries, 3)
		for i, q := range src.queries {
			assert.Equal(t, i+1, q.Page)
			assert.Equal(t, 100, q.PerPage)
			assert.Equal(t, "numwords>=3", q.Filter)
			assert.Equal(t, "wsk|asc", q.Sort)
		}
		// Request order is preserved.
		assert.Equal(t, "p1-0", got[0].Word)
		assert.Equal(t, "p2-0", got[100].Word)
		assert.Equal(t, "p3-36", got[236].Word)
	})

	t.Run("stops on an empty page", func(t *testing.T) {
		src := &pagedSource{sizes: []int{10, 10}}

		got, err := NewCollector(src).CollectAll(context.Background(), "u1", 10, "", "")

		require.NoError(t, err)
		assert.Len(t, got, 20)
		assert.Len(t, src.queries, 3)
	})

	t.Run("empty first page", func(t *testing.T) {
		src := &pagedSource{}

		got, err := NewCollector(src).CollectAll(context.Background(), "u1", 100, "", "")

		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
		assert.Len(t, src.queries, 1)
	})

	t.Run("ignores reported total", func(t *testing.T) {
		src := &pagedSource{sizes: []int{5}}

		got, err := NewCollector(src).CollectAll(context.Background(), "u1", 100, "", "")

		require.NoError(t, err)
		assert.Len(t, got, 5)
	})

	t.Run("error propagates", func(t *testing.T) {
		src := &pagedSource{sizes: []int{100, 100, 100}, failAt: 2}

		_, err := NewCollector(src).CollectAll(context.Background(), "u1", 100, "", "")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "upstream exploded")
	})

	t.Run("max pages caps collection", func(t *testing.T) {
		src := &pagedSource{sizes: []int{10, 10, 10, 10}}

		got, err := NewCollector(src, WithMaxPages(2)).CollectAll(context.Background(), "u1", 10, "", "")

		require.NoError(t, err)
		assert.Len(t, got, 20)
		assert.Len(t, src.queries, 2)
	})

	t.Run("default page size", func(t *testing.T) {
		src := &pagedSource{sizes: []int{3}}

		_, err := NewCollector(src).CollectAll(context.Background(), "u1", 0, "", "")

		require.NoError(t, err)
		assert.Equal(t, DefaultPageSize, src.queries[0].PerPage)
	})
}
