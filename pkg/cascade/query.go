package cascade

import "github.com/lemony-ai/cascadeflow-sub010/pkg/provider"

// Query is either a plain prompt string or an ordered list of messages. The
// zero value with Messages nil and Prompt empty is an empty query.
type Query struct {
	Prompt   string
	Messages []provider.Message
}

// Normalize flattens a Query plus an optional system prompt into a single
// ordered message list, with the system prompt (if any) moved to the head —
// the pipeline's Normalize step (spec §4.8 step 1).
func (q Query) Normalize(systemPrompt string) []provider.Message {
	var msgs []provider.Message
	if len(q.Messages) > 0 {
		msgs = append(msgs, q.Messages...)
	} else if q.Prompt != "" {
		msgs = append(msgs, provider.Message{Role: provider.RoleUser, Content: q.Prompt})
	}

	if systemPrompt == "" {
		return msgs
	}

	// Drop any existing system message the caller embedded; the explicit
	// option always wins and is normalized to the head (spec §3).
	filtered := msgs[:0:0]
	for _, m := range msgs {
		if m.Role == provider.RoleSystem {
			continue
		}
		filtered = append(filtered, m)
	}

	out := make([]provider.Message, 0, len(filtered)+1)
	out = append(out, provider.Message{Role: provider.RoleSystem, Content: systemPrompt})
	out = append(out, filtered...)
	return out
}

// IsEmpty reports whether the query carries no content at all.
func (q Query) IsEmpty() bool {
	if q.Prompt != "" {
		return false
	}
	for _, m := range q.Messages {
		if m.Content != "" {
			return false
		}
	}
	return true
}

// Text returns the raw text for classifiers that operate on a string rather
// than the structured transcript: the Prompt if set, otherwise the content
// of the last user message (earlier turns are not included).
func (q Query) Text() string {
	if q.Prompt != "" {
		return q.Prompt
	}
	var last string
	for _, m := range q.Messages {
		if m.Role == provider.RoleUser {
			last = m.Content
		}
	}
	return last
}
