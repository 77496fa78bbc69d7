package tutor

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/MrWong99/lingotutor/pkg/types"
)

// wrapperKeys are the object fields that may hold a list reply, tried after
// the operation-specific key.
var wrapperKeys = []string{"data", "items", "results"}

// decodeList extracts a list of T from a model reply. The reply may be a bare
// JSON array, an object holding the array under key or one of wrapperKeys, or
// an object whose only array-valued field holds it.
func decodeList[T any](content, key string) ([]T, error) {
	cleaned := stripMarkdown(content)

	var list []T
	if err := sonic.UnmarshalString(cleaned, &list); err == nil {
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := sonic.UnmarshalString(cleaned, &obj); err != nil {
		return nil, fmt.Errorf("parse reply: %w", err)
	}
	for _, k := range append([]string{key}, wrapperKeys...) {
		if raw, ok := obj[k]; ok {
			if err := sonic.Unmarshal(raw, &list); err != nil {
				return nil, fmt.Errorf("parse %q: %w", k, err)
			}
			return list, nil
		}
	}

	var candidate json.RawMessage
	for _, raw := range obj {
		if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
			if candidate != nil {
				return nil, errors.New("reply holds several lists")
			}
			candidate = raw
		}
	}
	if candidate == nil {
		return nil, errors.New("reply holds no list")
	}
	if err := sonic.Unmarshal(candidate, &list); err != nil {
		return nil, fmt.Errorf("parse list: %w", err)
	}
	return list, nil
}

// decodeObject unmarshals a single JSON object reply into v.
func decodeObject(content string, v any) error {
	if err := sonic.UnmarshalString(stripMarkdown(content), v); err != nil {
		return fmt.Errorf("parse reply: %w", err)
	}
	return nil
}

// feedbackReply uses pointers so missing fields are distinguishable from
// zero values.
type feedbackReply struct {
	Score      *float64 `json:"score"`
	Grammar    *string  `json:"grammar"`
	Vocabulary *string  `json:"vocabulary"`
	Fluency    *string  `json:"fluency"`
}

// decodeFeedback parses and validates a feedback reply. The score is rounded
// and clamped to [0, 100].
func decodeFeedback(content string) (types.Feedback, error) {
	var r feedbackReply
	if err := decodeObject(content, &r); err != nil {
		return types.Feedback{}, err
	}
	if r.Score == nil || r.Grammar == nil || r.Vocabulary == nil || r.Fluency == nil {
		return types.Feedback{}, errors.New("feedback reply is missing fields")
	}
	score := int(math.Round(*r.Score))
	score = max(0, min(100, score))
	return types.Feedback{
		Score:      score,
		Grammar:    *r.Grammar,
		Vocabulary: *r.Vocabulary,
		Fluency:    *r.Fluency,
	}, nil
}

// stripMarkdown removes the ```json fences some models wrap JSON replies in.
func stripMarkdown(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"```json", "```JSON", "```"} {
		if after, ok := strings.CutPrefix(s, prefix); ok {
			s = after
			break
		}
	}
	if before, ok := strings.CutSuffix(s, "```"); ok {
		s = before
	}
	return strings.TrimSpace(s)
}
