package streaming

import "strings"

// Wire constants of the OpenAI-compatible event stream.
const (
	PayloadPrefix = "data: "
	CommentPrefix = ":"
	DoneSentinel  = "[DONE]"
)

// LineKind is the disposition of a scanned line.
type LineKind int

const (
	LineEmpty   LineKind = iota // blank line, event separator
	LineComment                 // ":" keep-alive
	LineIgnored                 // any field other than data
	LinePayload                 // "data: " line
)

func (k LineKind) String() string {
	switch k {
	case LineEmpty:
		return "empty"
	case LineComment:
		return "comment"
	case LineIgnored:
		return "ignored"
	case LinePayload:
		return "payload"
	default:
		return "unknown"
	}
}

// ClassifyLine decides what to do with a line. For payload lines it also returns
// the content after the prefix, trimmed of surrounding whitespace.
func ClassifyLine(line string) (LineKind, string) {
	switch {
	case line == "":
		return LineEmpty, ""
	case strings.HasPrefix(line, CommentPrefix):
		return LineComment, ""
	case !strings.HasPrefix(line, PayloadPrefix):
		return LineIgnored, ""
	}
	return LinePayload, strings.TrimSpace(line[len(PayloadPrefix):])
}
