// ABOUTME: Markdown to Matrix message conversion using goldmark
// ABOUTME: Builds message contents with a plain body and an HTML formatted body

package matrix

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"maunium.net/go/mautrix/event"
)

// formatted builds a message with md as the plain body and its HTML rendering
// as the formatted body. Rendering failures fall back to plain text.
func formatted(msgType event.MessageType, md string) *event.MessageEventContent {
	content := &event.MessageEventContent{
		MsgType: msgType,
		Body:    md,
	}

	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return content
	}
	content.Format = event.FormatHTML
	content.FormattedBody = strings.TrimSpace(buf.String())
	return content
}
