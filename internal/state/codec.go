package state

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/supportbot/internal/conversation"
)

// The codec persists ConversationState inside the text of the bot's own
// comments. The primary format is a fenced block appended to the visible body;
// the HTML-comment form is still recognized on decode for threads persisted by
// older deployments.
const (
	fenceOpen  = "```supportbot-state"
	fenceClose = "```"

	legacyOpen  = "<!-- supportbot-state"
	legacyClose = "-->"

	// compressedPrefix marks a payload that is base64(DEFLATE(JSON)).
	compressedPrefix = "compressed:"

	// compressThreshold is the serialized size in bytes above which the
	// payload is compressed before embedding.
	compressThreshold = 2000

	// maxAskedFields bounds the per-user asked-field history carried in the
	// comment, keeping comment size flat over many loops.
	maxAskedFields = 20
)

var (
	fenceRe  = regexp.MustCompile("(?s)```supportbot-state\\s*\\n(.*?)\\n```")
	legacyRe = regexp.MustCompile(`(?s)<!-- supportbot-state\s+(.*?)\s*-->`)
)

// Encode strips any existing state block from commentText and appends a fresh
// one carrying state. Asked-field lists are pruned to the most recent entries
// before serialization; the caller's state is not mutated.
func Encode(commentText string, state *conversation.ConversationState) (string, error) {
	payload, err := marshalPayload(state)
	if err != nil {
		return "", fmt.Errorf("failed to encode state: %w", err)
	}

	body := strings.TrimRight(Strip(commentText), " \t\n")
	block := fenceOpen + "\n" + payload + "\n" + fenceClose
	if body == "" {
		return block, nil
	}
	return body + "\n\n" + block, nil
}

// Decode extracts the embedded state from commentText. The last marker
// occurrence in the full text wins, because hosts may render quoted or older
// content above a genuine trailing block. Any failure (no marker, malformed
// JSON, bad compression) is non-fatal and reported as ok=false: the caller
// treats the ticket as having no prior state.
func Decode(commentText string) (*conversation.ConversationState, bool) {
	payload, found := lastPayload(commentText)
	if !found {
		return nil, false
	}

	raw := []byte(payload)
	if strings.HasPrefix(payload, compressedPrefix) {
		decoded, err := inflatePayload(strings.TrimPrefix(payload, compressedPrefix))
		if err != nil {
			log.Debug().Err(err).Msg("State payload decompression failed, treating as no prior state")
			return nil, false
		}
		raw = decoded
	}

	var state conversation.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		log.Debug().Err(err).Msg("State payload unmarshal failed, treating as no prior state")
		return nil, false
	}
	if state.UserConversations == nil {
		state.UserConversations = make(map[string]*conversation.UserConversation)
	}
	return &state, true
}

// Strip removes every state block, in either format, from text. Running Strip
// (or Encode) repeatedly never leaves more than one block behind.
func Strip(text string) string {
	text = fenceRe.ReplaceAllString(text, "")
	text = legacyRe.ReplaceAllString(text, "")
	return text
}

func marshalPayload(state *conversation.ConversationState) (string, error) {
	raw, err := json.Marshal(pruned(state))
	if err != nil {
		return "", err
	}
	if len(raw) <= compressThreshold {
		return string(raw), nil
	}

	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(raw); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return compressedPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func inflatePayload(encoded string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 payload: %w", err)
	}
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("invalid deflate payload: %w", err)
	}
	return raw, nil
}

// pruned returns a copy of state with each user's asked-field history trimmed
// to the most recent maxAskedFields entries.
func pruned(state *conversation.ConversationState) *conversation.ConversationState {
	needsPrune := false
	for _, uc := range state.UserConversations {
		if len(uc.AskedFields) > maxAskedFields {
			needsPrune = true
			break
		}
	}
	if !needsPrune {
		return state
	}

	out := *state
	out.UserConversations = make(map[string]*conversation.UserConversation, len(state.UserConversations))
	for key, uc := range state.UserConversations {
		copied := *uc
		if n := len(copied.AskedFields); n > maxAskedFields {
			copied.AskedFields = copied.AskedFields[n-maxAskedFields:]
		}
		out.UserConversations[key] = &copied
	}
	return &out
}

func lastPayload(text string) (string, bool) {
	if matches := fenceRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		return strings.TrimSpace(matches[len(matches)-1][1]), true
	}
	if matches := legacyRe.FindAllStringSubmatch(text, -1); len(matches) > 0 {
		return strings.TrimSpace(matches[len(matches)-1][1]), true
	}
	return "", false
}
