package dictionary

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/readmark/pkg/analyze"
	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/reconcile"
)

func TestExplainer(t *testing.T) {
	e := NewExplainer(loadTestDictionary(t), nil, nil)
	text := "犬がいる。猫が走る。"

	entries, err := e.Explain(context.Background(), text, []string{"猫", "未知", " "})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "猫", entries[0].Phrase)
	assert.Equal(t, "cat", entries[0].Explanation.Meaning)
	assert.Equal(t, "ねこ (n)", entries[0].Explanation.Grammar)
	assert.Equal(t, "猫が走る。", entries[0].Explanation.Examples.Original)
	assert.Equal(t, "猫が走る。", entries[0].Example())
}

func TestExplainer_InflectedWithAnalyzer(t *testing.T) {
	a, err := analyze.NewAnalyzer()
	require.NoError(t, err)
	e := NewExplainer(loadTestDictionary(t), a, nil)

	entries, err := e.Explain(context.Background(), "犬が走った。", []string{"走った"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "to run", entries[0].Explanation.Meaning)
	assert.Equal(t, "はしる (v5r, vi)", entries[0].Explanation.Grammar)
}

func TestExplainer_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExplainer(loadTestDictionary(t), nil, nil).Explain(ctx, "犬", []string{"犬"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExplainer_WithReconciler(t *testing.T) {
	content := "犬と猫と鳥。"
	set, err := highlight.NewSet(content, nil)
	require.NoError(t, err)
	dog, err := set.Add(highlight.Candidate{Start: 0, End: 1})
	require.NoError(t, err)
	bird, err := set.Add(highlight.Candidate{Start: 4, End: 5})
	require.NoError(t, err)

	report, err := reconcile.New(NewExplainer(loadTestDictionary(t), nil, nil), nil).ReconcileSet(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, []string{bird.ID}, report.Unmatched)

	got, err := set.Get(dog.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Explanation)
	assert.Equal(t, "dog", got.Explanation.Meaning)
	assert.Equal(t, "犬と猫と鳥。", got.Explanation.Example)

	got, err = set.Get(bird.ID)
	require.NoError(t, err)
	assert.True(t, got.Pending())
}
