package local

import (
	"regexp"
	"strings"
)

// Reaction is an iMessage tapback relayed over SMS, e.g. `Liked “see you at 3”`
type Reaction struct {
	Verb   string
	Quoted string
}

// Tapback verbs as phones render them over SMS
var reactionVerbs = []string{"Liked", "Loved", "Disliked", "Laughed at", "Emphasized", "Questioned"}

var reactionPattern = regexp.MustCompile(`^(` + strings.Join(reactionVerbs, "|") + `) [“"](.*)[”"]$`)

// DetectReaction parses a tapback body. ok is false for ordinary text.
func DetectReaction(body string) (Reaction, bool) {
	body = strings.TrimSpace(body)
	match := reactionPattern.FindStringSubmatch(body)
	if match == nil || match[2] == "" {
		return Reaction{}, false
	}
	return Reaction{Verb: match[1], Quoted: match[2]}, true
}

// MatchesQuoted reports whether a sent body is the one a reaction quotes.
// Phones truncate long quotes with an ellipsis.
func (r Reaction) MatchesQuoted(body string) bool {
	body = strings.TrimSpace(body)
	quoted := strings.TrimSpace(r.Quoted)
	if body == quoted {
		return true
	}
	for _, ellipsis := range []string{"…", "..."} {
		if prefix, found := strings.CutSuffix(quoted, ellipsis); found && prefix != "" {
			return strings.HasPrefix(body, strings.TrimSpace(prefix))
		}
	}
	return false
}
