package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// KV is one ordered payload field.
type KV struct {
	Key   string
	Value any
}

func F(k string, v any) KV { return KV{Key: k, Value: v} }

// Format renders a notification as a bold title followed by a JSON code block.
// Field order is preserved.
func Format(title string, fields ...KV) string {
	var b strings.Builder
	if title != "" {
		b.WriteString("*" + escapeMarkdown(title) + "*\n")
	}
	b.WriteString("```json\n")
	b.WriteString(orderedJSON(fields))
	b.WriteString("\n```")
	return b.String()
}

func orderedJSON(fields []KV) string {
	if len(fields) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, f := range fields {
		k, _ := json.Marshal(f.Key)
		v, err := json.Marshal(f.Value)
		if err != nil {
			v, _ = json.Marshal(fmt.Sprint(f.Value))
		}
		buf.WriteString("  ")
		buf.Write(k)
		buf.WriteString(": ")
		buf.Write(v)
		if i < len(fields)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}")
	return buf.String()
}

var mdEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

func escapeMarkdown(s string) string { return mdEscaper.Replace(s) }
