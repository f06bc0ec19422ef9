package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/oracle"
)

// explainerMock records calls and delegates to ExplainFunc.
type explainerMock struct {
	ExplainFunc func(ctx context.Context, text string, phrases []string) ([]oracle.Entry, error)

	mu    sync.Mutex
	calls [][]string
}

func (m *explainerMock) Explain(ctx context.Context, text string, phrases []string) ([]oracle.Entry, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]string(nil), phrases...))
	m.mu.Unlock()
	return m.ExplainFunc(ctx, text, phrases)
}

func (m *explainerMock) Calls() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func entry(phrase, meaning, example string) oracle.Entry {
	return oracle.Entry{
		Phrase: phrase,
		Explanation: oracle.Details{
			Meaning:  meaning,
			Grammar:  "g",
			Examples: oracle.Examples{New: example},
		},
	}
}

// answer explains every phrase in known and ignores the rest.
func answer(known map[string]oracle.Entry) func(context.Context, string, []string) ([]oracle.Entry, error) {
	return func(_ context.Context, _ string, phrases []string) ([]oracle.Entry, error) {
		var out []oracle.Entry
		for _, p := range phrases {
			if e, ok := known[p]; ok {
				out = append(out, e)
			}
		}
		return out, nil
	}
}

const content = "Der Hund läuft schnell. Der Hund bellt."

func highlights() []highlight.Highlight {
	return []highlight.Highlight{
		{ID: "a", Text: "Hund", Start: 4, End: 8},
		{ID: "b", Text: "läuft", Start: 9, End: 14},
		{ID: "c", Text: "schnell", Start: 15, End: 22},
	}
}

func TestReconcile_NoHighlights(t *testing.T) {
	m := &explainerMock{ExplainFunc: answer(nil)}
	_, _, err := New(m, nil).Reconcile(context.Background(), content, nil)
	assert.ErrorIs(t, err, ErrNoHighlights)
	assert.Empty(t, m.Calls())
}

func TestReconcile_ExplainsAllPendingInOneCall(t *testing.T) {
	m := &explainerMock{ExplainFunc: func(context.Context, string, []string) ([]oracle.Entry, error) {
		return []oracle.Entry{{
			Phrase: "Hund",
			Explanation: oracle.Details{
				Meaning:  "dog",
				Grammar:  "noun, masculine",
				Examples: oracle.Examples{Original: "Der Hund läuft schnell.", New: "X"},
			},
		}}, nil
	}}
	out, report, err := New(m, nil).Reconcile(context.Background(), content, highlights()[:1])
	require.NoError(t, err)
	require.NotNil(t, out[0].Explanation)
	assert.Equal(t, highlight.Explanation{Word: "Hund", Meaning: "dog", Grammar: "noun, masculine", Example: "X"}, *out[0].Explanation)
	assert.Equal(t, 1, report.Matched)
}

func TestReconcile_PartialMatch(t *testing.T) {
	m := &explainerMock{ExplainFunc: answer(map[string]oracle.Entry{
		"Hund":    entry("Hund", "dog", "x"),
		"schnell": entry("schnell", "fast", "y"),
	})}
	in := highlights()
	out, report, err := New(m, nil).Reconcile(context.Background(), content, in)
	require.NoError(t, err)

	require.Len(t, m.Calls(), 1)
	assert.Equal(t, []string{"Hund", "läuft", "schnell"}, m.Calls()[0])
	assert.Equal(t, 3, report.Pending)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, []string{"b"}, report.Unmatched)

	assert.Equal(t, "dog", out[0].Explanation.Meaning)
	assert.Nil(t, out[1].Explanation)
	assert.Equal(t, "fast", out[2].Explanation.Meaning)

	for _, h := range in {
		assert.Nil(t, h.Explanation, "input must not be mutated")
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	m := &explainerMock{ExplainFunc: answer(map[string]oracle.Entry{
		"Hund":    entry("Hund", "dog", "x"),
		"läuft":   entry("läuft", "runs", "x"),
		"schnell": entry("schnell", "fast", "x"),
	})}
	r := New(m, nil)
	first, _, err := r.Reconcile(context.Background(), content, highlights())
	require.NoError(t, err)

	second, report, err := r.Reconcile(context.Background(), content, first)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 0, report.Pending)
	assert.Len(t, m.Calls(), 1, "no second oracle call when nothing is pending")
}

func TestReconcile_NeverOverwrites(t *testing.T) {
	m := &explainerMock{ExplainFunc: answer(map[string]oracle.Entry{
		"Hund": entry("Hund", "dog", "x"),
	})}
	in := highlights()
	in[0].Explanation = &highlight.Explanation{Word: "Hund", Meaning: "my own note"}
	out, _, err := New(m, nil).Reconcile(context.Background(), content, in)
	require.NoError(t, err)
	assert.Equal(t, "my own note", out[0].Explanation.Meaning)
	assert.Equal(t, []string{"läuft", "schnell"}, m.Calls()[0])
}

func TestReconcile_DuplicateTexts(t *testing.T) {
	m := &explainerMock{ExplainFunc: func(context.Context, string, []string) ([]oracle.Entry, error) {
		return []oracle.Entry{entry("Hund", "dog", "first"), entry("Hund", "hound", "second")}, nil
	}}
	in := []highlight.Highlight{
		{ID: "a", Text: "Hund", Start: 4, End: 8},
		{ID: "d", Text: "Hund", Start: 28, End: 32},
	}
	out, report, err := New(m, nil).Reconcile(context.Background(), content, in)
	require.NoError(t, err)

	assert.Equal(t, []string{"Hund"}, m.Calls()[0])
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, "dog", out[0].Explanation.Meaning)
	assert.Equal(t, "dog", out[1].Explanation.Meaning)
	assert.NotSame(t, out[0].Explanation, out[1].Explanation)
}

func TestReconcile_TransportFailureKeepsBatchPending(t *testing.T) {
	m := &explainerMock{ExplainFunc: func(context.Context, string, []string) ([]oracle.Entry, error) {
		return nil, &oracle.TransportError{Provider: "fake", StatusCode: 502}
	}}
	out, report, err := New(m, nil).Reconcile(context.Background(), content, highlights())
	require.Error(t, err)
	assert.ErrorIs(t, err, oracle.ErrTransport)
	assert.True(t, oracle.Retryable(err))
	assert.Len(t, report.Unmatched, 3)
	for _, h := range out {
		assert.True(t, h.Pending())
	}
}

func TestReconcile_ParseFailure(t *testing.T) {
	m := &explainerMock{ExplainFunc: func(context.Context, string, []string) ([]oracle.Entry, error) {
		return oracle.ParseExplanations("not json")
	}}
	_, _, err := New(m, nil).Reconcile(context.Background(), content, highlights())
	assert.ErrorIs(t, err, oracle.ErrParse)
}

func TestReconcileSet(t *testing.T) {
	set, err := highlight.NewSet(content, highlights())
	require.NoError(t, err)

	m := &explainerMock{}
	m.ExplainFunc = func(ctx context.Context, text string, phrases []string) ([]oracle.Entry, error) {
		assert.Equal(t, content, text)
		// The user keeps editing while the call is in flight.
		require.NoError(t, set.Remove("b"))
		_, err := set.Add(highlight.Candidate{Start: 28, End: 32})
		require.NoError(t, err)
		return answer(map[string]oracle.Entry{
			"Hund":    entry("Hund", "dog", "x"),
			"läuft":   entry("läuft", "runs", "x"),
			"schnell": entry("schnell", "fast", "x"),
		})(ctx, text, phrases)
	}

	report, err := New(m, nil).ReconcileSet(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Pending)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 1, report.Skipped)

	pending := set.Pending()
	require.Len(t, pending, 1, "highlight added during the call stays pending")
	assert.Equal(t, 28, pending[0].Start)

	_, err = set.Get("b")
	assert.ErrorIs(t, err, highlight.ErrNotFound)
}

func TestReconcileSet_EmptyAndNothingPending(t *testing.T) {
	m := &explainerMock{ExplainFunc: answer(nil)}
	r := New(m, nil)

	empty, err := highlight.NewSet(content, nil)
	require.NoError(t, err)
	_, err = r.ReconcileSet(context.Background(), empty)
	assert.ErrorIs(t, err, ErrNoHighlights)

	done := highlights()
	for i := range done {
		done[i].Explanation = &highlight.Explanation{Meaning: "known"}
	}
	set, err := highlight.NewSet(content, done)
	require.NoError(t, err)
	report, err := r.ReconcileSet(context.Background(), set)
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Empty(t, m.Calls())
}

func TestReconcileSet_FailureLeavesSetUntouched(t *testing.T) {
	set, err := highlight.NewSet(content, highlights())
	require.NoError(t, err)
	m := &explainerMock{ExplainFunc: func(context.Context, string, []string) ([]oracle.Entry, error) {
		return nil, errors.Join(oracle.ErrTransport, context.DeadlineExceeded)
	}}
	_, err = New(m, nil).ReconcileSet(context.Background(), set)
	assert.ErrorIs(t, err, oracle.ErrTransport)
	assert.Len(t, set.Pending(), 3)
}
