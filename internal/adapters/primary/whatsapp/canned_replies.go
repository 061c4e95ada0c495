package whatsapp

import (
	"fmt"
	"regexp"
)

// cannedReply answers a text-only mention without a model call
type cannedReply struct {
	pattern *regexp.Regexp
	reply   string
}

// CannedReplies handles questions about the bot itself
type CannedReplies struct {
	replies []cannedReply
}

// NewCannedReplies creates the canned replies for a bot called botName
func NewCannedReplies(botName string) *CannedReplies {
	cr := &CannedReplies{}

	cr.add(`(?i)^\s*(help\b|\?\s*$|how (do|does|can) (i|this|you) (use|work)\b)`,
		fmt.Sprintf("👋 Send a photo of the skin area and mention *%s* in the caption. "+
			"I'll describe what it might be, how serious it looks and what usually helps. "+
			"Reply to my answer or mention me again to ask follow-up questions.", botName))

	cr.add(`(?i)\b(who are you|your name)\b`,
		fmt.Sprintf("👋 I'm %s, an assistant that looks at photos of skin conditions. "+
			"I'm not a doctor, so please check anything worrying with a dermatologist.", botName))

	// don't let a group talk the bot out of its instructions
	cr.add(`(?i)\b(system|initial)[\s-]*(prompt|instruction)s?\b|\bjailbreak\b|\bignore (all |your )?(previous |prior )?instructions\b`,
		"🛡️ I can only help with questions about skin conditions.")

	return cr
}

func (cr *CannedReplies) add(pattern, reply string) {
	cr.replies = append(cr.replies, cannedReply{pattern: regexp.MustCompile(pattern), reply: reply})
}

// Match returns the first canned reply whose pattern matches message
func (cr *CannedReplies) Match(message string) (string, bool) {
	for _, c := range cr.replies {
		if c.pattern.MatchString(message) {
			return c.reply, true
		}
	}
	return "", false
}
