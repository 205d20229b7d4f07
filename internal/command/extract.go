// Package command parses structured action commands out of model output and
// dispatches their side effects.
//
// The model embeds at most one command per turn as a fenced block tagged
// "json". Extraction is deliberately forgiving: malformed payloads are
// logged and dropped, never propagated, since bad model output must not take
// down a session.
package command

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Known action values.
const (
	ActionWhatsApp = "whatsapp"
	ActionCall     = "call"
)

// Action is a structured command parsed from model output.
type Action struct {
	Action  string `json:"action"`
	Contact string `json:"contact"`
	Message string `json:"message,omitempty"`
	Context string `json:"context,omitempty"`
}

const (
	fenceMarker = "```"
	fenceTag    = "json"
)

// findFence locates the first json-tagged fenced block in text. It returns
// the inner payload plus the byte offsets of the whole block. A fence that
// never closes is not a block.
func findFence(text string) (inner string, start, end int, ok bool) {
	search := 0
	for {
		open := strings.Index(text[search:], fenceMarker)
		if open < 0 {
			return "", 0, 0, false
		}
		open += search
		tagStart := open + len(fenceMarker)

		rest := text[tagStart:]
		if !strings.HasPrefix(strings.ToLower(rest), fenceTag) {
			search = tagStart
			continue
		}
		bodyStart := tagStart + len(fenceTag)

		closeIdx := strings.Index(text[bodyStart:], fenceMarker)
		if closeIdx < 0 {
			return "", 0, 0, false
		}
		end = bodyStart + closeIdx + len(fenceMarker)
		return text[bodyStart : bodyStart+closeIdx], open, end, true
	}
}

// Extract searches text for a fenced command block and parses it. Only the
// first block is considered. The boolean is false when no block exists or
// the payload does not parse; a parse failure is logged, not returned.
func Extract(text string) (Action, bool) {
	inner, _, _, ok := findFence(text)
	if !ok {
		return Action{}, false
	}

	var cmd Action
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner)), &cmd); err != nil {
		slog.Warn("command: discarding unparsable payload", "err", err)
		return Action{}, false
	}
	if cmd.Action == "" {
		slog.Warn("command: discarding payload without action field")
		return Action{}, false
	}
	return cmd, true
}

// Strip removes the first fenced command block from text and trims the
// result, leaving only the conversational prose. Text without a block comes
// back unchanged.
func Strip(text string) string {
	_, start, end, ok := findFence(text)
	if !ok {
		return text
	}
	return strings.TrimSpace(text[:start] + text[end:])
}
