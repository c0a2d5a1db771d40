package dispatch

import (
	"regexp"
	"strings"

	"github.com/rivo/uniseg"
	"mvdan.cc/xurls/v2"

	"ttsbot/backend/internal/constants"
	"ttsbot/backend/internal/state"
)

// RegexSet holds the markup patterns the transformer rewrites. Build it once with NewRegexSet.
type RegexSet struct {
	replacements []replacement
	emoji        *regexp.Regexp
	urls         *regexp.Regexp
}

type replacement struct {
	pattern *regexp.Regexp
	spoken  string
}

// NewRegexSet compiles the markup patterns
func NewRegexSet() *RegexSet {
	return &RegexSet{
		replacements: []replacement{
			{regexp.MustCompile(`(?s)\|\|.*?\|\|`), "spoiler avoided"},
			{regexp.MustCompile("(?s)```.*?```"), "code block"},
			{regexp.MustCompile("`[^`]+`"), "code snippet"},
		},
		emoji: regexp.MustCompile(`<(a?):([^<>:\s]+):\d+>`),
		urls:  xurls.Strict(),
	}
}

// TransformInput is everything the transformer reads
type TransformInput struct {
	GuildID          string
	Text             string // gate output: sanitized, lower-cased, prefix stripped
	Kind             state.MessageKind
	Author           state.Author
	NicknameOverride string
	Attachments      []state.Attachment
	VoiceLanguage    string
	HumanOccupants   int

	XSaid         bool
	SkipEmoji     bool
	NewFormatting bool
	RepeatedChars int
}

// TransformResult is the sentence to speak plus what was found on the way
type TransformResult struct {
	Text         string
	ContainedURL bool
	Announced    bool
}

// Transform turns gate output into the final spoken sentence. Its only side effect is
// recording the announced speaker on tracker.
func Transform(in TransformInput, regexes *RegexSet, tracker *SpeakerTracker) TransformResult {
	text := in.Text
	if text == "?" {
		text = "what"
	}

	for _, r := range regexes.replacements {
		text = r.pattern.ReplaceAllString(text, " "+r.spoken+" ")
	}
	text = regexes.emoji.ReplaceAllStringFunc(text, func(m string) string {
		if in.SkipEmoji {
			return " "
		}
		parts := regexes.emoji.FindStringSubmatch(m)
		if parts[1] == "a" {
			return " animated emoji " + parts[2] + " "
		}
		return " emoji " + parts[2] + " "
	})

	containedURL := false
	text = regexes.urls.ReplaceAllStringFunc(text, func(string) string {
		containedURL = true
		return " "
	})
	// After link removal so shorthand inside a URL path is not rewritten
	if strings.HasPrefix(in.VoiceLanguage, constants.LanguageCodeEnglish) {
		text = expandAcronyms(text)
	}
	text = strings.Join(strings.Fields(text), " ")

	saidName := ""
	if in.XSaid && tracker.ShouldAnnounce(in.GuildID, in.Author.ID, in.HumanOccupants) {
		saidName = in.Author.DisplayName(in.NicknameOverride)
	}

	sentence := formatSentence(saidName, text, containedURL, describeAttachments(in.Attachments), in.Kind, in.NewFormatting)

	announced := saidName != "" && sentence != ""
	if announced {
		tracker.Record(in.GuildID, in.Author.ID)
	}

	if in.RepeatedChars > 0 {
		sentence = CollapseRepeats(sentence, in.RepeatedChars)
	}

	return TransformResult{Text: sentence, ContainedURL: containedURL, Announced: announced}
}

// CollapseRepeats shortens runs of the same grapheme cluster to at most limit.
// Applying it twice with the same limit changes nothing further.
func CollapseRepeats(text string, limit int) string {
	if limit <= 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	prev := ""
	run := 0
	gr := uniseg.NewGraphemes(text)
	for gr.Next() {
		cluster := gr.Str()
		if cluster == prev {
			run++
		} else {
			prev = cluster
			run = 1
		}
		if run <= limit {
			b.WriteString(cluster)
		}
	}
	return b.String()
}
