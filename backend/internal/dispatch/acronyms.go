package dispatch

import (
	"regexp"
	"sort"
	"strings"
)

// acronyms expands chat shorthand for English voices. Keys are whole words, already lower-case.
var acronyms = map[string]string{
	"iirc":  "if I recall correctly",
	"afaik": "as far as I know",
	"wdym":  "what do you mean",
	"imo":   "in my opinion",
	"imho":  "in my honest opinion",
	"brb":   "be right back",
	"wym":   "what you mean",
	"irl":   "in real life",
	"jk":    "just kidding",
	"btw":   "by the way",
	"gtg":   "got to go",
	"rn":    "right now",
	"ig":    "I guess",
	"rly":   "really",
	"cya":   "see ya",
	"ik":    "I know",
	"idk":   "I don't know",
	"idc":   "I don't care",
	"tbh":   "to be honest",
	"ngl":   "not gonna lie",
	"smh":   "shaking my head",
	"omg":   "oh my god",
	"ty":    "thank you",
	"thx":   "thanks",
	"np":    "no problem",
	"nvm":   "nevermind",
	"pls":   "please",
	"plz":   "please",
	"ofc":   "of course",
	"lol":   "L O L",
	"lmao":  "L M A O",
	"rofl":  "rolling on the floor laughing",
	"uwu":   "oo woo",
	"owo":   "oh woah",
	"gg":    "good game",
	"wb":    "welcome back",
	"xd":    "ex dee",
}

// emoticons are matched as whitespace-separated tokens since \b does not apply to them
var emoticons = map[string]string{
	":)": "smiley face",
	":(": "sad face",
	":/": "confused face",
	":d": "grinning face",
	":p": "face with tongue",
	";)": "winking face",
	"<3": "heart",
}

var acronymRegex = compileAcronymRegex()

func compileAcronymRegex() *regexp.Regexp {
	keys := make([]string, 0, len(acronyms))
	for k := range acronyms {
		keys = append(keys, regexp.QuoteMeta(k))
	}
	// Deterministic order; the boundaries make alternation order irrelevant otherwise
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return regexp.MustCompile(`\b(?:` + strings.Join(keys, "|") + `)\b`)
}

// expandAcronyms replaces shorthand on word boundaries, so trailing punctuation still
// matches but partial matches inside words are left alone
func expandAcronyms(text string) string {
	text = acronymRegex.ReplaceAllStringFunc(text, func(m string) string {
		return acronyms[m]
	})

	tokens := strings.Fields(text)
	for i, tok := range tokens {
		if expanded, ok := emoticons[tok]; ok {
			tokens[i] = expanded
		}
	}
	return strings.Join(tokens, " ")
}
