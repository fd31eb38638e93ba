package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/keyword-hunter/internal/domain"
)

func TestBuild(t *testing.T) {
	t.Run("full expression in fixed order", func(t *testing.T) {
		e := Build(Thresholds{
			MinWords:  3,
			MaxWSK:    80,
			MaxWS:     1000,
			StopWords: []string{"бесплатно", "  видео ", ""},
			SafeMode:  true,
			Raw:       "adscnt>=1",
		})

		assert.Equal(t,
			"numwords>=3^wsk<=80^ws<=1000^destination_keyNOT LIKEбесплатно^destination_keyNOT LIKEвидео^isadult=0^adscnt>=1",
			e.String())
		assert.Equal(t, 7, e.Len())
	})

	t.Run("minimal expression", func(t *testing.T) {
		e := Build(Thresholds{MinWords: 2, MaxWSK: 50})
		assert.Equal(t, "numwords>=2^wsk<=50", e.String())
	})

	t.Run("clauses are typed", func(t *testing.T) {
		e := Build(Thresholds{MinWords: 3, MaxWSK: 80, StopWords: []string{"x"}, Raw: "cnt>0"})
		clauses := e.Clauses()
		require.Len(t, clauses, 4)

		assert.Equal(t, Clause{Field: "numwords", Op: OpGTE, Value: "3"}, clauses[0])
		assert.Equal(t, Clause{Field: "wsk", Op: OpLTE, Value: "80"}, clauses[1])
		assert.Equal(t, OpNotLike, clauses[2].Op)
		assert.True(t, clauses[3].IsRaw())
		assert.False(t, clauses[0].IsRaw())
	})

	t.Run("clauses copy is independent", func(t *testing.T) {
		e := Build(Thresholds{MinWords: 3, MaxWSK: 80})
		c := e.Clauses()
		c[0].Value = "99"
		assert.Equal(t, "numwords>=3^wsk<=80", e.String())
	})
}

func TestSort_String(t *testing.T) {
	assert.Equal(t, "wsk|asc,numwords|desc", DefaultSort.String())
	assert.Equal(t, "ws|desc", Sort{{Field: "ws", Desc: true}}.String())
	assert.Equal(t, "", Sort{}.String())
}

func TestCheck_Conjunctive(t *testing.T) {
	th := Thresholds{MinWords: 3, MaxWSK: 80}

	c := domain.Candidate{DestinationKey: "синий диван", NumWords: 2, WSK: 50}
	assert.Equal(t, ReasonWordCount, Check(c, th), "word count alone must exclude")

	c = domain.Candidate{DestinationKey: "купить синий диван", NumWords: 3, WSK: 50}
	assert.Equal(t, Accepted, Check(c, th), "raising word count re-includes the candidate")

	c.WSK = 81
	assert.Equal(t, ReasonFrequency, Check(c, th))
}

func TestCheck_Rules(t *testing.T) {
	th := Thresholds{MinWords: 2, MaxWSK: 100, StopWords: []string{"Видео"}}

	tests := []struct {
		name   string
		phrase string
		want   Reason
	}{
		{"accepted", "купить синий диван", Accepted},
		{"stop word ignores case", "диван видео обзор", ReasonStopWord},
		{"stop word as substring", "видеообзор дивана", ReasonStopWord},
		{"too short", "a b", ReasonShort},
		{"punctuation", "диван, купить", ReasonCharacters},
		{"hyphen and underscore allowed", "диван-кровать my_sofa", Accepted},
		{"digits allowed", "диван 24 7 москва", Accepted},
		{"stuttering", "диван диван диван диван кровать", ReasonRepetitions},
		{"exactly half unique", "диван диван кровать кровать", Accepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := domain.Candidate{Word: tt.phrase, NumWords: 4, WSK: 10}
			assert.Equal(t, tt.want, Check(c, th))
		})
	}
}

func TestApply(t *testing.T) {
	th := Thresholds{MinWords: 3, MaxWSK: 80, StopWords: []string{"скачать"}}
	cands := []domain.Candidate{
		{DestinationKey: "купить синий диван", NumWords: 3, WSK: 10},
		{DestinationKey: "синий диван", NumWords: 2, WSK: 10},
		{DestinationKey: "купить угловой диван", NumWords: 3, WSK: 90},
		{DestinationKey: "скачать каталог диванов", NumWords: 3, WSK: 1},
		{DestinationKey: "диван кровать недорого", NumWords: 3, WSK: 80},
	}

	kept, stats := ApplyWithStats(cands, th)

	require.Len(t, kept, 2)
	assert.Equal(t, "купить синий диван", kept[0].Phrase())
	assert.Equal(t, "диван кровать недорого", kept[1].Phrase())
	assert.Equal(t, map[Reason]int{ReasonWordCount: 1, ReasonFrequency: 1, ReasonStopWord: 1}, stats)

	// Every survivor satisfies every threshold.
	for _, c := range kept {
		assert.GreaterOrEqual(t, c.NumWords, th.MinWords)
		assert.LessOrEqual(t, c.WSK, th.MaxWSK)
		assert.False(t, ContainsStopWord(c.Phrase(), th.StopWords))
		assert.True(t, IsValidPhrase(c.Phrase()))
	}

	assert.Equal(t, kept, Apply(cands, th))
}

func TestApply_MissingFrequencyRejected(t *testing.T) {
	c := domain.Candidate{Word: "купить синий диван", NumWords: 3, WSK: domain.MissingWSK}
	assert.Empty(t, Apply([]domain.Candidate{c}, Thresholds{MinWords: 3, MaxWSK: 80}))
}

func TestContainsStopWord(t *testing.T) {
	assert.False(t, ContainsStopWord("anything", nil))
	assert.False(t, ContainsStopWord("anything", []string{" ", ""}))
	assert.True(t, ContainsStopWord("FREE download", []string{"free"}))
}
