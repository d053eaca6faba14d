package narration

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/shortsmith/api/internal/model"
)

var (
	wordPattern    = regexp.MustCompile(`[a-z0-9']+`)
	sentenceBreak  = regexp.MustCompile(`[.!?]+`)
	alphaWord      = regexp.MustCompile(`^[a-z]+$`)
	powerHooks     = []string{"what if", "did you know", "here's why", "stop", "warning", "the secret", "nobody tells you", "don't make this mistake", "3 things", "top 5", "you won't believe", "the truth"}
	profanity      = []string{"fuck", "shit", "bitch", "asshole", "bastard", "dick", "cunt"}
	profanityWords = wordSet(profanity...)
	positiveWords  = wordSet("amazing", "great", "awesome", "love", "win", "success", "powerful", "easy", "simple", "best", "boost", "growth", "viral", "smart")
	negativeWords  = wordSet("bad", "worst", "hate", "fail", "hard", "problem", "risk", "danger", "scam", "loss", "decline")
	callsToAction  = []string{"subscribe", "follow", "like this", "comment", "share", "click the link", "link in bio", "check the description", "try this", "save this", "watch till the end"}
)

var toneVocabulary = []struct {
	label string
	cues  []string
}{
	{"persuasive", []string{"you", "now", "today", "must", "need to", "cta"}},
	{"informative", []string{"how to", "steps", "tip", "learn", "guide", "why"}},
	{"entertaining", []string{"funny", "joke", "crazy", "wild", "insane", "wow"}},
	{"story", []string{"story", "once", "i was", "we were", "learned"}},
}

func wordSet(words ...string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// Score rates a draft script with cheap text heuristics.
func Score(script string) model.ScriptScores {
	return model.ScriptScores{
		Hook:        hookStrength(script),
		BrandSafety: brandSafety(script),
		Tone:        tone(script),
		Virality:    model.Virality{Score: virality(script)},
	}
}

func lowerWords(text string) []string {
	return wordPattern.FindAllString(strings.ToLower(text), -1)
}

func sentences(text string) []string {
	var out []string
	for _, s := range sentenceBreak.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

func hookStrength(script string) model.HookScore {
	first := ""
	if s := sentences(script); len(s) > 0 {
		first = strings.ToLower(s[0])
	}
	hits := 0
	for _, ph := range powerHooks {
		if strings.Contains(first, ph) {
			hits++
		}
	}

	n := len(lowerWords(first))
	lengthScore := 0.2
	switch {
	case n >= 4 && n <= 16:
		lengthScore = 1.0
	case n <= 24:
		lengthScore = 0.5
	}
	power := 0.0
	if hits > 0 {
		power = 1
	}
	return model.HookScore{
		Score:         round3(clamp01(0.6*lengthScore + 0.4*power)),
		FirstSentence: first,
		PowerHits:     hits,
	}
}

func brandSafety(script string) model.BrandSafety {
	text := strings.ToLower(script)
	hits := []string{}
	for _, p := range profanity {
		if strings.Contains(text, p) {
			hits = append(hits, p)
		}
	}
	sort.Strings(hits)
	return model.BrandSafety{Safe: len(hits) == 0, Hits: hits}
}

func tone(script string) model.Tone {
	text := strings.ToLower(script)
	candidates := []string{}
	for _, t := range toneVocabulary {
		if containsAny(text, t.cues) {
			candidates = append(candidates, t.label)
		}
	}
	label := "neutral"
	if len(candidates) > 0 {
		label = candidates[0]
	}
	return model.Tone{Label: label, Candidates: candidates}
}

func toxicity(words []string) float64 {
	hits := 0
	for _, w := range words {
		if profanityWords[w] {
			hits++
		}
	}
	return round3(math.Min(1, float64(hits)/3))
}

// sentiment is in [-1, 1].
func sentiment(words []string) float64 {
	pos, neg := 0, 0
	for _, w := range words {
		if positiveWords[w] {
			pos++
		}
		if negativeWords[w] {
			neg++
		}
	}
	total := max(1, pos+neg)
	return round3(float64(pos-neg) / float64(total))
}

func readability(script string, words []string) float64 {
	numWords := max(1, len(words))
	numSentences := max(1, len(sentences(script)))
	chars := 0
	for _, w := range words {
		chars += len(w)
	}
	avgWordsPerSentence := float64(numWords) / float64(numSentences)
	avgCharsPerWord := float64(chars) / float64(numWords)
	return clamp01(1.2 - avgWordsPerSentence/25 - avgCharsPerWord/8)
}

func vocabularyDiversity(words []string) float64 {
	unique := make(map[string]bool)
	total := 0
	for _, w := range words {
		if alphaWord.MatchString(w) {
			unique[w] = true
			total++
		}
	}
	return float64(len(unique)) / float64(max(1, total))
}

func virality(script string) int {
	words := lowerWords(script)
	cta := 0.0
	if containsAny(strings.ToLower(script), callsToAction) {
		cta = 1
	}
	base := 0.25*hookStrength(script).Score +
		0.2*(0.5+0.5*sentiment(words)) +
		0.15*cta +
		0.2*readability(script, words) +
		0.15*vocabularyDiversity(words) +
		0.05*(1-toxicity(words))
	return int(math.Round(clamp01(base) * 100))
}
