package highlight

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("h%03d", n)
	})
}

func fixedClock() Option {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n := 0
	return WithClock(func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	})
}

func newTestSet(t *testing.T, content string) *Set {
	t.Helper()
	s, err := NewSet(content, nil, sequentialIDs(), fixedClock())
	require.NoError(t, err)
	return s
}

func TestAdd_OverlapLeavesSetUnchanged(t *testing.T) {
	s := newTestSet(t, "Der Hund läuft schnell.")

	h, err := s.Add(Candidate{Text: "Hund", Color: "#fef08a", Start: 4, End: 8})
	require.NoError(t, err)
	assert.Equal(t, "Hund", h.Text)
	assert.Equal(t, "h001", h.ID)

	_, err = s.Add(Candidate{Start: 3, End: 6, Color: "#bae6fd"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOverlap))

	var oe *OverlapError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, h.ID, oe.Existing.ID)
	assert.Equal(t, 1, s.Len())
}

func TestAdd_AdjacentAllowed(t *testing.T) {
	s := newTestSet(t, "abcdefgh")
	_, err := s.Add(Candidate{Start: 2, End: 4})
	require.NoError(t, err)
	_, err = s.Add(Candidate{Start: 4, End: 6})
	require.NoError(t, err)
	_, err = s.Add(Candidate{Start: 0, End: 2})
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, []int{0, 2, 4}, []int{list[0].Start, list[1].Start, list[2].Start})
}

func TestAdd_ContainedAndContaining(t *testing.T) {
	s := newTestSet(t, "abcdefghij")
	_, err := s.Add(Candidate{Start: 3, End: 6})
	require.NoError(t, err)

	for _, c := range []Candidate{{Start: 4, End: 5}, {Start: 1, End: 9}, {Start: 5, End: 7}, {Start: 3, End: 6}} {
		_, err := s.Add(c)
		assert.ErrorIs(t, err, ErrOverlap, "candidate %+v", c)
	}
	assert.Equal(t, 1, s.Len())
}

func TestAdd_InvalidRange(t *testing.T) {
	s := newTestSet(t, "Grüße")
	tests := []struct {
		name string
		c    Candidate
	}{
		{"negative start", Candidate{Start: -1, End: 2}},
		{"past end", Candidate{Start: 2, End: 6}},
		{"empty", Candidate{Start: 2, End: 2}},
		{"reversed", Candidate{Start: 3, End: 1}},
		{"text mismatch", Candidate{Text: "xyz", Start: 0, End: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Add(tt.c)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}
	assert.Equal(t, 0, s.Len())
}

func TestAdd_RuneOffsets(t *testing.T) {
	s := newTestSet(t, "Grüße aus Köln")
	h, err := s.Add(Candidate{Text: "Grüße", Start: 0, End: 5})
	require.NoError(t, err)
	assert.Equal(t, "Grüße", h.Text)

	h, err = s.Add(Candidate{Start: 10, End: 14})
	require.NoError(t, err)
	assert.Equal(t, "Köln", h.Text)
}

func TestNonOverlapInvariant_RandomAdds(t *testing.T) {
	content := "Moderatorin und Sängerin Ina Müller leidet eigenem Bekunden nach unter Altersdiskriminierung."
	n := RuneLen(content)
	rng := rand.New(rand.NewSource(42))
	s := newTestSet(t, content)

	for i := 0; i < 500; i++ {
		start := rng.Intn(n)
		end := start + 1 + rng.Intn(8)
		before := s.List()
		_, err := s.Add(Candidate{Start: start, End: end})
		if err != nil {
			assert.Equal(t, before, s.List(), "failed add must not mutate")
			continue
		}
	}

	list := s.List()
	for i := 1; i < len(list); i++ {
		assert.LessOrEqual(t, list[i-1].End, list[i].Start)
	}
	for i := range list {
		for j := i + 1; j < len(list); j++ {
			assert.False(t, list[i].Overlaps(list[j].Start, list[j].End))
		}
	}
}

func TestRemoveAndUpdate_NotFound(t *testing.T) {
	s := newTestSet(t, "abc")
	err := s.Remove("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Update("missing", Patch{})
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.ID)

	_, err = s.Explain("missing", Explanation{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate_NeverTouchesOffsets(t *testing.T) {
	s := newTestSet(t, "Der Hund läuft schnell.")
	h, err := s.Add(Candidate{Start: 4, End: 8, Color: "yellow"})
	require.NoError(t, err)

	color := "blue"
	group := "g1"
	only := true
	got, err := s.Update(h.ID, Patch{
		Color:           &color,
		GroupID:         &group,
		OnlyShowInGroup: &only,
		Explanation:     &Explanation{Word: "Hund", Meaning: "dog"},
	})
	require.NoError(t, err)
	assert.Equal(t, "blue", got.Color)
	assert.Equal(t, "g1", got.GroupID)
	assert.True(t, got.OnlyShowInGroup)
	assert.Equal(t, 4, got.Start)
	assert.Equal(t, 8, got.End)
	assert.Equal(t, "Hund", got.Text)

	ungroup := ""
	got, err = s.Update(h.ID, Patch{GroupID: &ungroup})
	require.NoError(t, err)
	assert.False(t, got.OnlyShowInGroup, "ungrouping clears onlyShowInGroup")
}

func TestExplain_OnlyWhenAbsent(t *testing.T) {
	s := newTestSet(t, "Der Hund")
	h, err := s.Add(Candidate{Start: 4, End: 8})
	require.NoError(t, err)

	applied, err := s.Explain(h.ID, Explanation{Meaning: "dog"})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Explain(h.ID, Explanation{Meaning: "cat"})
	require.NoError(t, err)
	assert.False(t, applied)

	got, err := s.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, "dog", got.Explanation.Meaning)
	assert.Empty(t, s.Pending())
}

func TestListReturnsCopies(t *testing.T) {
	s := newTestSet(t, "Der Hund")
	h, err := s.Add(Candidate{Start: 4, End: 8})
	require.NoError(t, err)
	_, err = s.Explain(h.ID, Explanation{Meaning: "dog"})
	require.NoError(t, err)

	list := s.List()
	list[0].Explanation.Meaning = "changed"
	list[0].Color = "changed"

	got, err := s.Get(h.ID)
	require.NoError(t, err)
	assert.Equal(t, "dog", got.Explanation.Meaning)
	assert.Empty(t, got.Color)
}

func TestRestore(t *testing.T) {
	s := newTestSet(t, "Der Hund läuft schnell.")
	h, err := s.Add(Candidate{Start: 4, End: 8})
	require.NoError(t, err)
	before := s.List()

	_, err = s.Add(Candidate{Start: 9, End: 14})
	require.NoError(t, err)
	require.NoError(t, s.Remove(h.ID))

	s.Restore(before)
	assert.Equal(t, before, s.List())
	_, err = s.Add(Candidate{Start: 9, End: 14})
	require.NoError(t, err, "restored set must not keep the discarded highlight")
}

func TestOrderedAndReorder(t *testing.T) {
	s := newTestSet(t, "one two three four")
	a, _ := s.Add(Candidate{Start: 8, End: 13})
	b, _ := s.Add(Candidate{Start: 0, End: 3})
	c, _ := s.Add(Candidate{Start: 14, End: 18})

	ids := func(hs []Highlight) []string {
		var out []string
		for _, h := range hs {
			out = append(out, h.ID)
		}
		return out
	}

	assert.Equal(t, []string{b.ID, a.ID, c.ID}, ids(s.List()))
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(s.Ordered()))

	require.NoError(t, s.Reorder([]string{c.ID, a.ID}))
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, ids(s.Ordered()))

	assert.ErrorIs(t, s.Reorder([]string{"nope"}), ErrNotFound)
}

func TestNewSet_RejectsPersistedOverlap(t *testing.T) {
	_, err := NewSet("abcdef", []Highlight{
		{ID: "a", Text: "abc", Start: 0, End: 3},
		{ID: "b", Text: "cde", Start: 2, End: 5},
	})
	assert.ErrorIs(t, err, ErrOverlap)

	_, err = NewSet("abcdef", []Highlight{{ID: "a", Text: "zzz", Start: 0, End: 3}})
	assert.ErrorIs(t, err, ErrInvalidRange)

	s, err := NewSet("abcdef", []Highlight{
		{ID: "b", Text: "def", Start: 3, End: 6},
		{ID: "a", Text: "abc", Start: 0, End: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, "a", s.List()[0].ID)
}

func TestAdd_OrderContinuesAfterLoad(t *testing.T) {
	s, err := NewSet("abcdef", []Highlight{{ID: "a", Text: "abc", Start: 0, End: 3, Order: 7}}, sequentialIDs())
	require.NoError(t, err)
	h, err := s.Add(Candidate{Start: 3, End: 6})
	require.NoError(t, err)
	assert.Equal(t, 8, h.Order)
}

func TestListed(t *testing.T) {
	assert.True(t, Highlight{}.Listed())
	assert.True(t, Highlight{GroupID: "g"}.Listed())
	assert.False(t, Highlight{GroupID: "g", OnlyShowInGroup: true}.Listed())
	assert.True(t, Highlight{OnlyShowInGroup: true}.Listed())
}
