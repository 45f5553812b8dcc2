// Package metrics computes the readability and style heuristics shown in the
// sidebar's analysis tab. Everything here is pure and safe for concurrent use.
package metrics

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
)

// WritingStyle is the coarse style bucket derived from word and sentence length.
type WritingStyle string

const (
	StyleAcademic       WritingStyle = "Academic"
	StyleConversational WritingStyle = "Conversational"
	StyleBalanced       WritingStyle = "Balanced"
)

const (
	wordsPerMinute = 200

	// StuckWindow is how many trailing words are inspected for repetition.
	StuckWindow = 10
	// StuckMinDistinct is the distinct-word count below which the writer is stuck.
	StuckMinDistinct = 5
	// StuckIdle is the pause after which the writer is considered stuck.
	StuckIdle = 30 * time.Second
)

var (
	sentenceSplit = regexp.MustCompile(`[.!?]+`)
	nonLetters    = regexp.MustCompile(`[^a-z]`)
	vowelGroups   = regexp.MustCompile(`[aeiouy]+`)

	vividWords = []string{"exciting", "surprising", "dramatic", "incredible", "unexpected", "strange", "intense"}

	recommendations = []string{
		"Use more vivid and specific vocabulary.",
		"Vary sentence structure for better rhythm.",
		"Simplify long or complex sentences.",
	}

	writingPrompts = []string{
		"What is the main point you want to convey?",
		"How does this connect to your previous ideas?",
		"Can you provide an example to illustrate this?",
		"What would someone who disagrees with you say?",
		"How does this relate to your overall topic?",
	}
)

// Snapshot is one evaluation of a text. It is recomputed on every change and
// never persisted.
type Snapshot struct {
	WordCount          int          `json:"wordCount"`
	SentenceCount      int          `json:"sentenceCount"`
	ParagraphCount     int          `json:"paragraphCount"`
	ReadingTimeMinutes int          `json:"readingTimeMinutes"`
	GradeLevel         int          `json:"gradeLevel"`
	WritingStyle       WritingStyle `json:"writingStyle"`
	VocabularyLevel    string       `json:"vocabularyLevel"`
	SentenceStructure  string       `json:"sentenceStructure"`
	ClarityScore       int          `json:"clarityScore"`
	EngagementScore    int          `json:"engagementScore"`
	Recommendations    []string     `json:"recommendations"`
}

// Parsed is the word/sentence/paragraph breakdown every score is derived from.
type Parsed struct {
	Words      []string
	Sentences  []string
	Paragraphs []string
	Syllables  int
}

// Parse splits text into words, sentences and paragraphs.
func Parse(text string) Parsed {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Parsed{}
	}
	words := strings.Fields(trimmed)
	sentences := lo.Filter(sentenceSplit.Split(trimmed, -1), func(s string, _ int) bool {
		return strings.TrimSpace(s) != ""
	})
	paragraphs := lo.Filter(strings.Split(trimmed, "\n\n"), func(p string, _ int) bool {
		return strings.TrimSpace(p) != ""
	})
	return Parsed{
		Words:      words,
		Sentences:  sentences,
		Paragraphs: paragraphs,
		Syllables:  CountSyllables(trimmed),
	}
}

// Compute evaluates text. Empty or whitespace-only input yields a zero word
// count and the degenerate defaults of every derived score.
func Compute(text string) Snapshot {
	p := Parse(text)
	wordCount := len(p.Words)
	if wordCount == 0 {
		return Snapshot{
			WritingStyle:      StyleBalanced,
			VocabularyLevel:   "Basic",
			SentenceStructure: "Simple",
			ClarityScore:      100,
			EngagementScore:   70,
			Recommendations:   Recommendations(),
		}
	}

	sentences := max(1, len(p.Sentences))
	wordsPerSentence := float64(wordCount) / float64(sentences)
	syllablesPerWord := float64(p.Syllables) / float64(wordCount)

	totalLen := lo.SumBy(p.Words, func(w string) int { return utf8.RuneCountInString(w) })
	avgWordLength := float64(totalLen) / float64(wordCount)

	longWords := lo.CountBy(p.Words, func(w string) bool { return utf8.RuneCountInString(w) > 7 })
	vivid := lo.CountBy(p.Words, func(w string) bool { return lo.Contains(vividWords, strings.ToLower(w)) })

	return Snapshot{
		WordCount:          wordCount,
		SentenceCount:      len(p.Sentences),
		ParagraphCount:     len(p.Paragraphs),
		ReadingTimeMinutes: ReadingTime(wordCount),
		GradeLevel:         GradeLevel(wordsPerSentence, syllablesPerWord),
		WritingStyle:       Style(avgWordLength, wordsPerSentence),
		VocabularyLevel:    vocabularyLevel(float64(longWords) / float64(wordCount)),
		SentenceStructure:  sentenceStructure(wordsPerSentence),
		ClarityScore:       jsRound(math.Max(50, math.Min(100, 120-wordsPerSentence*2))),
		EngagementScore:    min(100, 70+vivid*3),
		Recommendations:    Recommendations(),
	}
}

// ReadingTime returns the minutes needed to read wordCount words at 200 wpm.
func ReadingTime(wordCount int) int {
	if wordCount <= 0 {
		return 0
	}
	return (wordCount + wordsPerMinute - 1) / wordsPerMinute
}

// GradeLevel applies the Flesch-Kincaid grade formula. The result is not
// clamped and can be negative or very large for degenerate input.
func GradeLevel(wordsPerSentence, syllablesPerWord float64) int {
	return jsRound(0.39*wordsPerSentence + 11.8*syllablesPerWord - 15.59)
}

// DisplayGrade clamps a grade level into 0..20 for presentation only.
func DisplayGrade(grade int) int {
	return min(20, max(0, grade))
}

// Style buckets text by average word and sentence length.
func Style(avgWordLength, avgSentenceLength float64) WritingStyle {
	switch {
	case avgWordLength > 5 && avgSentenceLength > 20:
		return StyleAcademic
	case avgWordLength < 4 && avgSentenceLength < 15:
		return StyleConversational
	default:
		return StyleBalanced
	}
}

// CountSyllables estimates the syllable count of text. Words of three letters
// or fewer count as one; longer words count their vowel groups, at least one.
func CountSyllables(text string) int {
	count := 0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = nonLetters.ReplaceAllString(word, "")
		if len(word) <= 3 {
			count++
			continue
		}
		count += max(1, len(vowelGroups.FindAllString(word, -1)))
	}
	return count
}

func vocabularyLevel(longRatio float64) string {
	switch {
	case longRatio > 0.2:
		return "Advanced"
	case longRatio > 0.1:
		return "Moderate"
	default:
		return "Basic"
	}
}

func sentenceStructure(avgSentenceLength float64) string {
	switch {
	case avgSentenceLength > 20:
		return "Complex"
	case avgSentenceLength > 12:
		return "Varied"
	default:
		return "Simple"
	}
}

// jsRound rounds half toward positive infinity so negative grades match the
// browser extension's Math.round.
func jsRound(v float64) int {
	return int(math.Floor(v + 0.5))
}

// Recommendations returns the fixed writing recommendations.
func Recommendations() []string {
	return append([]string(nil), recommendations...)
}

// WritingPrompts returns the prompts offered when the writer is stuck.
func WritingPrompts() []string {
	return append([]string(nil), writingPrompts...)
}
