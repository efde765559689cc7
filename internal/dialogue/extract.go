package dialogue

import (
	"regexp"
	"strings"
)

const fence = "```"

// fenceLang matches the optional language token of a fenced block.
const fenceLang = `(?:golang|go|python|py)?`

var (
	codeAfterTag  = regexp.MustCompile(`(?is)\[code\]\s*` + fence + fenceLang + `\s*(.*?)` + fence)
	anyFenced     = regexp.MustCompile(`(?s)` + fence + fenceLang + `\s*(.*?)` + fence)
	codeUntilTag  = regexp.MustCompile(`(?is)\[code\](.*?)(?:\[think\]|\[reflect\]|\[final answer\]|$)`)
	leadingFence  = regexp.MustCompile(`^` + fence + fenceLang + `\s*`)
	trailingFence = regexp.MustCompile(fence + `\s*$`)

	thinkBody   = regexp.MustCompile(`(?is)\[think\](.*?)(?:\[code\]|\[final answer\]|$)`)
	reflectBody = regexp.MustCompile(`(?is)\[reflect\](.*?)(?:\[code\]|\[final answer\]|$)`)

	finalBody    = regexp.MustCompile(`(?is)\[final answer\]:?\s*(.*?)(?:\n\n\[|$)`)
	leadingColon = regexp.MustCompile(`^:\s*`)
)

// finalAnswerTag is the literal tag used for the short-answer re-split.
const finalAnswerTag = "[Final Answer]"

// minAnswerLen is the length under which a tag-bounded answer is assumed to
// be cut short and the remainder of the response is used instead.
const minAnswerLen = 50

// thinkFallbackLen is how much of an untagged response counts as reasoning.
const thinkFallbackLen = 500

// ExtractCode returns the snippet of a CODE response. It tries, in order, a
// fenced block right after [CODE], every fenced block in the response, and
// the raw text between [CODE] and the next tag. It returns "" when all three
// come up empty.
func ExtractCode(response string) string {
	if m := codeAfterTag.FindStringSubmatch(response); m != nil {
		if code := strings.TrimSpace(m[1]); code != "" {
			return code
		}
	}

	if all := anyFenced.FindAllStringSubmatch(response, -1); len(all) > 0 {
		blocks := make([]string, 0, len(all))
		for _, m := range all {
			if b := strings.TrimSpace(m[1]); b != "" {
				blocks = append(blocks, b)
			}
		}
		if code := strings.Join(blocks, "\n\n"); code != "" {
			return code
		}
	}

	if m := codeUntilTag.FindStringSubmatch(response); m != nil {
		code := strings.TrimSpace(m[1])
		code = leadingFence.ReplaceAllString(code, "")
		code = trailingFence.ReplaceAllString(code, "")
		return strings.TrimSpace(code)
	}
	return ""
}

// ExtractThink returns the reasoning of a THINK or REFLECT response, falling
// back to the first 500 characters of the response.
func ExtractThink(response string) string {
	if m := thinkBody.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reflectBody.FindStringSubmatch(response); m != nil {
		return strings.TrimSpace(m[1])
	}
	return truncateRunes(response, thinkFallbackLen)
}

// ExtractFinalAnswer returns the answer text of a response. Without a
// [Final Answer] tag the whole response is the answer.
func ExtractFinalAnswer(response string) string {
	m := finalBody.FindStringSubmatch(response)
	if m == nil {
		return response
	}
	answer := strings.TrimSpace(m[1])
	if len([]rune(answer)) < minAnswerLen {
		if _, rest, ok := strings.Cut(response, finalAnswerTag); ok {
			answer = strings.TrimSpace(rest)
			answer = leadingColon.ReplaceAllString(answer, "")
		}
	}
	return answer
}

// IsPlaceholder reports whether code is empty or a no-op stand-in.
func IsPlaceholder(code string) bool {
	switch strings.TrimSpace(code) {
	case "", "pass", "// no-op", "//no-op", "return", "return nil", "{}":
		return true
	}
	return false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
