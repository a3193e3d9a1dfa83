// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package camera

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"
)

// AnnotationData is available to the annotation template.
//
// Time is fixed when the capture starts. Clock is the same layout as a
// strftime pattern, which the capture tool expands on every frame, so the
// burnt-in clock keeps running.
type AnnotationData struct {
	Hostname string
	Time     string
	Clock    string
}

// RenderAnnotation renders the overlay text burnt into the video. Literal
// percent signs outside Clock are escaped.
func RenderAnnotation(tmpl, hostname string, now time.Time, layout string) (string, error) {
	if tmpl == "" {
		return "", nil
	}
	t, err := template.New("annotation").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("annotation template: %w", err)
	}
	data := AnnotationData{
		Hostname: escapePercent(hostname),
		Time:     escapePercent(now.Format(layout)),
		Clock:    Strftime(layout),
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render annotation: %w", err)
	}
	return buf.String(), nil
}

// Longest tokens first, so "January" wins over "Jan" and "2006" over "06".
var strftimeTokens = []struct{ layout, directive string }{
	{"January", "%B"},
	{"Monday", "%A"},
	{"-0700", "%z"},
	{"2006", "%Y"},
	{"Jan", "%b"},
	{"Mon", "%a"},
	{"MST", "%Z"},
	{"01", "%m"},
	{"02", "%d"},
	{"03", "%I"},
	{"04", "%M"},
	{"05", "%S"},
	{"06", "%y"},
	{"15", "%H"},
	{"PM", "%p"},
	{"pm", "%P"},
	{"_2", "%e"},
	{"1", "%-m"},
	{"2", "%-d"},
	{"3", "%-I"},
	{"4", "%-M"},
	{"5", "%-S"},
	{"%", "%%"},
}

// Strftime converts a Go time layout to the equivalent glibc strftime
// pattern. Layout elements without a strftime form are kept as literal text.
func Strftime(layout string) string {
	var b strings.Builder
	for i := 0; i < len(layout); {
		matched := false
		for _, tok := range strftimeTokens {
			if strings.HasPrefix(layout[i:], tok.layout) {
				b.WriteString(tok.directive)
				i += len(tok.layout)
				matched = true
				break
			}
		}
		if !matched {
			b.WriteByte(layout[i])
			i++
		}
	}
	return b.String()
}

func escapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}
