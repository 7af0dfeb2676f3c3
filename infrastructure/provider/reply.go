package provider

import (
	"strings"
)

// cleanReply strips reasoning blocks and markdown code fences some models
// wrap around JSON replies.
func cleanReply(text string) string {
	result := text
	for {
		start := strings.Index(result, "<think>")
		if start == -1 {
			break
		}
		end := strings.Index(result, "</think>")
		if end == -1 || end < start {
			result = result[:start] + result[start+len("<think>"):]
			continue
		}
		result = result[:start] + result[end+len("</think>"):]
	}

	result = strings.TrimSpace(result)
	if strings.HasPrefix(result, "```") {
		if nl := strings.Index(result, "\n"); nl != -1 {
			result = result[nl+1:]
		} else {
			result = strings.TrimPrefix(result, "```")
		}
		result = strings.TrimSuffix(strings.TrimSpace(result), "```")
	}
	return strings.TrimSpace(result)
}

// jsonSpan returns the outermost span between open and close, or "" if absent.
func jsonSpan(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
