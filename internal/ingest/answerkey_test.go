package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitAnswerKeyEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t\n"} {
		result := SplitAnswerKey(input)
		require.Equal(t, "", result.Passage)
		require.Nil(t, result.Answers)
		require.Equal(t, SplitNone, result.Method)
	}
}

func TestSplitAnswerKeyExplicitMarker(t *testing.T) {
	text := "The fox jumped over the lazy dog.\nIt was quick.\n\n=== ANSWERS ===\n1. A\n2. C\n"

	result := SplitAnswerKey(text)
	require.Equal(t, SplitMarker, result.Method)
	require.Equal(t, "The fox jumped over the lazy dog.\nIt was quick.", result.Passage)
	require.Equal(t, []string{"A", "C"}, result.Answers)
}

func TestSplitAnswerKeyMarkerIsCaseInsensitiveAndSkipsBlankLines(t *testing.T) {
	text := "Passage body.\nANSWER KEY\n\n1) b\nno letter here 42\n\n3) d"

	result := SplitAnswerKey(text)
	require.Equal(t, "Passage body.", result.Passage)
	require.Equal(t, []string{"B", "D"}, result.Answers)
}

func TestSplitAnswerKeyEarliestMarkerWins(t *testing.T) {
	text := "Intro text\nAnswers:\n1. B\nAnswer key\n2. A"

	result := SplitAnswerKey(text)
	require.Equal(t, "Intro text", result.Passage)
	require.Equal(t, []string{"B", "A", "A"}, result.Answers)
}

func TestSplitAnswerKeyMarkerWithoutLettersYieldsEmptyList(t *testing.T) {
	result := SplitAnswerKey("Some passage\nanswer:\n\n123\n")
	require.Equal(t, SplitMarker, result.Method)
	require.NotNil(t, result.Answers)
	require.Empty(t, result.Answers)
}

func TestSplitAnswerKeyTrailingHeuristic(t *testing.T) {
	text := "A short story about rivers.\nRivers flow to the sea.\n1. A\n2. B\n3. C"

	result := SplitAnswerKey(text)
	require.Equal(t, SplitTrailing, result.Method)
	require.Equal(t, "A short story about rivers.\nRivers flow to the sea.", result.Passage)
	require.Equal(t, []string{"A", "B", "C"}, result.Answers)
}

func TestSplitAnswerKeyTrailingHeuristicAcceptsMixedSeparators(t *testing.T) {
	text := "Passage.\n\n12. b\n13) D\n14: a\n"

	result := SplitAnswerKey(text)
	require.Equal(t, "Passage.", result.Passage)
	require.Equal(t, []string{"B", "D", "A"}, result.Answers)
}

func TestSplitAnswerKeyTrailingBlockMustReachTheEnd(t *testing.T) {
	text := "1. A\n2. B\nThe passage continues after the list."

	result := SplitAnswerKey(text)
	require.Equal(t, SplitNone, result.Method)
	require.Nil(t, result.Answers)
	require.Equal(t, text, result.Passage)
}

func TestSplitAnswerKeyTrailingWindowIsBounded(t *testing.T) {
	var builder strings.Builder
	builder.WriteString("Passage line.\n")
	for i := 1; i <= TailWindow+5; i++ {
		builder.WriteString(fmt.Sprintf("%d. C\n", i))
	}

	result := SplitAnswerKey(builder.String())
	require.Equal(t, SplitTrailing, result.Method)
	require.Len(t, result.Answers, TailWindow)
	require.True(t, strings.HasPrefix(result.Passage, "Passage line.\n1. C"))
}

func TestSplitAnswerKeyWordsAreNotAnswerLines(t *testing.T) {
	text := "Chapter one.\n1. Because it rained\n2. Dogs bark"

	result := SplitAnswerKey(text)
	require.Equal(t, SplitNone, result.Method)
	require.Nil(t, result.Answers)
}

func TestSplitAnswerKeyNumberedSentencesStayInPassage(t *testing.T) {
	text := "The whale story.\nStatements to discuss:\n1. A whale is a mammal.\n2. B vitamins matter.\n3. A dog can swim."

	result := SplitAnswerKey(text)
	require.Equal(t, SplitNone, result.Method)
	require.Nil(t, result.Answers)
	require.Equal(t, text, result.Passage)
}

func TestSplitAnswerKeyTrailingLetterMayCarryPunctuation(t *testing.T) {
	result := SplitAnswerKey("Passage.\n1. A.\n2) c)\n3: D;")
	require.Equal(t, SplitTrailing, result.Method)
	require.Equal(t, []string{"A", "C", "D"}, result.Answers)
}

func TestLetterToIndex(t *testing.T) {
	require.Equal(t, 0, LetterToIndex("A"))
	require.Equal(t, 1, LetterToIndex("b"))
	require.Equal(t, 2, LetterToIndex(" C "))
	require.Equal(t, 3, LetterToIndex("D"))
	require.Equal(t, -1, LetterToIndex("E"))
	require.Equal(t, -1, LetterToIndex(""))
}

func TestAnswerIndexesKeepsPositions(t *testing.T) {
	require.Nil(t, AnswerIndexes(nil))
	require.Equal(t, []int{0, -1, 3}, AnswerIndexes([]string{"A", "X", "D"}))
}
