package highlight

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProject_AlternatesPlainAndHighlighted(t *testing.T) {
	content := "Die Katze schläft im Garten."
	hs := []Highlight{
		{ID: "b", Color: "#bae6fd", Start: 10, End: 14, Text: Slice(content, 10, 14)},
		{ID: "a", Color: "#fef08a", Start: 0, End: 3, Text: Slice(content, 0, 3)},
	}

	segs := Project(content, hs)
	require.Len(t, segs, 4)

	assert.Equal(t, Segment{Kind: SegmentHighlight, Text: "Die", Start: 0, End: 3, HighlightID: "a", Color: "#fef08a"}, segs[0])
	assert.Equal(t, Segment{Kind: SegmentPlain, Text: Slice(content, 3, 10), Start: 3, End: 10}, segs[1])
	assert.Equal(t, Segment{Kind: SegmentHighlight, Text: "schl", Start: 10, End: 14, HighlightID: "b", Color: "#bae6fd"}, segs[2])
	assert.Equal(t, SegmentPlain, segs[3].Kind)
	assert.Equal(t, Slice(content, 14, RuneLen(content)), segs[3].Text)
}

func TestProject_NoTrailingEmptySegment(t *testing.T) {
	content := "abc def"
	segs := Project(content, []Highlight{{ID: "x", Start: 4, End: 7}})
	require.Len(t, segs, 2)
	assert.Equal(t, "def", segs[1].Text)
	assert.Equal(t, SegmentHighlight, segs[1].Kind)
}

func TestProject_EmptyInputs(t *testing.T) {
	assert.Empty(t, Project("", nil))
	segs := Project("plain", nil)
	require.Len(t, segs, 1)
	assert.Equal(t, Segment{Kind: SegmentPlain, Text: "plain", Start: 0, End: 5}, segs[0])
}

func TestProject_SkipsInvalidRanges(t *testing.T) {
	content := "abcdef"
	segs := Project(content, []Highlight{
		{ID: "a", Start: 0, End: 3},
		{ID: "b", Start: 2, End: 4},
		{ID: "c", Start: 5, End: 99},
	})
	assert.Equal(t, content, joined(segs))
	require.Len(t, segs, 2)
}

func TestProject_CompletenessAndDeterminism(t *testing.T) {
	contents := []string{
		"Der Hund läuft schnell.",
		"漢字とかなの混じった文章です。",
		"Nach eigenem Bekunden ist er unschuldig. Sie leidet unter großem Stress.",
	}
	rng := rand.New(rand.NewSource(7))
	for _, content := range contents {
		for round := 0; round < 50; round++ {
			s, err := NewSet(content, nil, sequentialIDs())
			require.NoError(t, err)
			n := RuneLen(content)
			for i := 0; i < 10; i++ {
				start := rng.Intn(n)
				_, _ = s.Add(Candidate{Start: start, End: start + 1 + rng.Intn(n-start)})
			}
			hs := s.List()
			first := Project(content, hs)
			assert.Equal(t, content, joined(first))
			assert.Equal(t, first, Project(content, hs))

			for _, seg := range first {
				assert.Equal(t, Slice(content, seg.Start, seg.End), seg.Text)
			}
		}
	}
}

func joined(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Text)
	}
	return b.String()
}
