package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/custodia-labs/lectern/internal/core/domain"
)

// DecodeReply unmarshals a model reply into v. Markdown code fences and any
// prose around the outermost JSON object are ignored.
func DecodeReply(reply string, v any) error {
	body := stripCodeFence(reply)

	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end < start {
		return fmt.Errorf("%w: no JSON object in reply", domain.ErrMalformedResponse)
	}

	if err := json.Unmarshal([]byte(body[start:end+1]), v); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrMalformedResponse, err)
	}
	return nil
}

// stripCodeFence removes a surrounding ``` or ```json fence.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// SplitList parses a comma or newline separated list, dropping bullets,
// blanks and case-insensitive duplicates. At most max items are kept.
func SplitList(reply string, max int) []string {
	fields := strings.FieldsFunc(stripCodeFence(reply), func(r rune) bool {
		return r == ',' || r == '\n'
	})

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(strings.TrimSpace(f), "-*•\"'. ")
		if f == "" {
			continue
		}
		key := strings.ToLower(f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
