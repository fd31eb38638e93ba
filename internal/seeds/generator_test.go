package seeds

import (
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Generate(t *testing.T) {
	t.Run("two-word niche", func(t *testing.T) {
		got := NewGenerator("Диван Кровать", nil).Generate(100)

		// 8 transactional (pairs collapse), 18 localized, 24 constrained,
		// 6 questions and 10 seasonal.
		assert.Len(t, got, 66)
		assert.Equal(t, "купить диван кровать", got[0])
		assert.Contains(t, got, "доставка диван кровать москва")
		assert.Contains(t, got, "заказать диван кровать рассрочка")
		assert.Contains(t, got, "как выбрать диван кровать")
		assert.Contains(t, got, "диван кровать на 8 марта")
		assert.NotContains(t, got, "диван кровать купить")
	})

	t.Run("niche spacing and case are normalized", func(t *testing.T) {
		want := NewGenerator("диван кровать", nil).Generate(100)
		got := NewGenerator("  ДИВАН \t  Кровать \n", nil).Generate(100)
		assert.Equal(t, want, got)
	})

	t.Run("count truncates", func(t *testing.T) {
		got := NewGenerator("диван кровать", nil).Generate(10)
		assert.Len(t, got, 10)
	})

	t.Run("targets come first and take at most half", func(t *testing.T) {
		targets := []string{"угловой диван серый", "диван для дачи", "третья цель фраза"}
		got := NewGenerator("диван кровать", targets).Generate(4)

		require.Len(t, got, 4)
		assert.Equal(t, "угловой диван серый", got[0])
		assert.Equal(t, "диван для дачи", got[1])
		assert.NotContains(t, got, "третья цель фраза")
	})

	t.Run("low quality targets are dropped", func(t *testing.T) {
		got := NewGenerator("диван кровать", []string{"диван", "a b"}).Generate(20)
		assert.NotContains(t, got, "диван")
		assert.NotContains(t, got, "a b")
	})

	t.Run("longer niche yields three bases", func(t *testing.T) {
		g := NewGenerator("ремонт стиральных машин bosch", nil)
		assert.Equal(t, []string{
			"ремонт стиральных",
			"ремонт стиральных машин",
			"ремонт стиральных машин bosch",
		}, g.basePhrases())
	})

	t.Run("punctuation in niche is ignored", func(t *testing.T) {
		g := NewGenerator("  Диван, кровать!  ", nil)
		assert.Equal(t, []string{"диван кровать"}, g.basePhrases())
	})

	t.Run("empty niche yields only targets", func(t *testing.T) {
		got := NewGenerator("", []string{"мой особый диван"}).Generate(10)
		assert.Equal(t, []string{"мой особый диван"}, got)
	})

	t.Run("default count", func(t *testing.T) {
		got := NewGenerator("ремонт стиральных машин bosch", nil).Generate(0)
		assert.Len(t, got, DefaultCount)
	})
}

func TestGenerator_Invariants(t *testing.T) {
	got := NewGenerator("ремонт стиральных машин bosch", []string{"срочный ремонт машинки"}).Generate(500)
	require.NotEmpty(t, got)

	seen := make(map[string]bool)
	for _, s := range got {
		words := strings.Fields(strings.ToLower(s))
		assert.GreaterOrEqual(t, len(words), 2, s)
		assert.GreaterOrEqual(t, utf8.RuneCountInString(s), 10, s)

		sort.Strings(words)
		key := strings.Join(words, " ")
		assert.False(t, seen[key], "permutation duplicate: %s", s)
		seen[key] = true
	}
}
