// Package template renders snapshot metadata into namespace paths.
//
// A path template is literal text with named placeholders in braces:
//
//	[{hostname}]/[{label}]/{time}
//
// The rendered string is split on "/" into path segments. "{{" and "}}"
// produce literal braces. The time placeholders are formatted with a separate
// strftime-style time template.
package template

import (
	"strings"

	"github.com/ncruces/go-strftime"

	"github.com/objectfs/snapfs/pkg/errors"
	"github.com/objectfs/snapfs/pkg/types"
)

const (
	// DefaultPathTemplate groups snapshots by host and label.
	DefaultPathTemplate = "[{hostname}]/[{label}]/{time}"

	// DefaultTimeTemplate renders e.g. 2024-03-01_12-30-00.
	DefaultTimeTemplate = "%Y-%m-%d_%H-%M-%S"
)

// Placeholder names a snapshot field usable in a path template.
type Placeholder string

const (
	PlaceholderID          Placeholder = "id"
	PlaceholderLongID      Placeholder = "long_id"
	PlaceholderTime        Placeholder = "time"
	PlaceholderUsername    Placeholder = "username"
	PlaceholderHostname    Placeholder = "hostname"
	PlaceholderLabel       Placeholder = "label"
	PlaceholderTags        Placeholder = "tags"
	PlaceholderBackupStart Placeholder = "backup_start"
	PlaceholderBackupEnd   Placeholder = "backup_end"
)

var knownPlaceholders = map[Placeholder]bool{
	PlaceholderID:          true,
	PlaceholderLongID:      true,
	PlaceholderTime:        true,
	PlaceholderUsername:    true,
	PlaceholderHostname:    true,
	PlaceholderLabel:       true,
	PlaceholderTags:        true,
	PlaceholderBackupStart: true,
	PlaceholderBackupEnd:   true,
}

// part is either literal text or a placeholder.
type part struct {
	literal     string
	placeholder Placeholder
}

// Template is a compiled path template. It is immutable and safe for
// concurrent use.
type Template struct {
	source     string
	timeFormat string
	parts      []part
}

// Compile parses pathTemplate and binds it to timeTemplate. An unknown
// placeholder, an unbalanced brace or a literal ".." segment is a
// CONFIGURATION_ERROR.
func Compile(pathTemplate, timeTemplate string) (*Template, error) {
	parts, err := parse(pathTemplate)
	if err != nil {
		return nil, err
	}
	t := &Template{source: pathTemplate, timeFormat: timeTemplate, parts: parts}
	for _, s := range t.split(func(Placeholder) string { return "x" }) {
		if s.text == ".." && !s.substituted {
			return nil, errors.ConfigurationError("path template %q contains a '..' segment", pathTemplate)
		}
	}
	return t, nil
}

func parse(source string) ([]part, error) {
	var (
		parts   []part
		literal strings.Builder
	)
	flush := func() {
		if literal.Len() > 0 {
			parts = append(parts, part{literal: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(source); i++ {
		c := source[i]
		switch {
		case c == '{' && i+1 < len(source) && source[i+1] == '{':
			literal.WriteByte('{')
			i++
		case c == '}' && i+1 < len(source) && source[i+1] == '}':
			literal.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(source[i+1:], '}')
			if end < 0 {
				return nil, errors.ConfigurationError("unclosed placeholder at offset %d in path template %q", i, source)
			}
			name := Placeholder(strings.TrimSpace(source[i+1 : i+1+end]))
			if !knownPlaceholders[name] {
				return nil, errors.ConfigurationError("unknown placeholder %q in path template %q", name, source)
			}
			flush()
			parts = append(parts, part{placeholder: name})
			i += end + 1
		case c == '}':
			return nil, errors.ConfigurationError("unmatched '}' at offset %d in path template %q", i, source)
		default:
			literal.WriteByte(c)
		}
	}
	flush()
	return parts, nil
}

// String returns the source path template.
func (t *Template) String() string {
	return t.source
}

// TimeFormat returns the time template.
func (t *Template) TimeFormat() string {
	return t.timeFormat
}

// Render substitutes the snapshot metadata into the template.
func (t *Template) Render(snap *types.SnapshotFile) string {
	var b strings.Builder
	for _, p := range t.parts {
		if p.placeholder == "" {
			b.WriteString(p.literal)
			continue
		}
		b.WriteString(t.value(p.placeholder, snap))
	}
	return b.String()
}

// Segments renders the template and splits the result into path segments.
// Empty segments and "." segments written in the template itself are
// dropped. A "." or ".." segment produced by snapshot metadata is kept with
// its dots escaped as "%2E", so it stays an ordinary resolvable name.
func (t *Template) Segments(snap *types.SnapshotFile) []string {
	var segments []string
	for _, s := range t.split(func(p Placeholder) string { return t.value(p, snap) }) {
		switch s.text {
		case "":
			continue
		case ".", "..":
			if s.text == "." && !s.substituted {
				continue
			}
			s.text = strings.ReplaceAll(s.text, ".", "%2E")
		}
		segments = append(segments, s.text)
	}
	return segments
}

type segment struct {
	text        string
	substituted bool // some placeholder value contributed to text
}

func (t *Template) split(value func(Placeholder) string) []segment {
	var (
		out []segment
		cur segment
	)
	add := func(s string, substituted bool) {
		for i, piece := range strings.Split(s, "/") {
			if i > 0 {
				out = append(out, cur)
				cur = segment{}
			}
			cur.text += piece
			if substituted && piece != "" {
				cur.substituted = true
			}
		}
	}
	for _, p := range t.parts {
		if p.placeholder == "" {
			add(p.literal, false)
		} else {
			add(value(p.placeholder), true)
		}
	}
	return append(out, cur)
}

func (t *Template) value(p Placeholder, snap *types.SnapshotFile) string {
	switch p {
	case PlaceholderID:
		return snap.ID.Short()
	case PlaceholderLongID:
		return snap.ID.String()
	case PlaceholderTime:
		return strftime.Format(t.timeFormat, snap.Time)
	case PlaceholderUsername:
		return snap.Username
	case PlaceholderHostname:
		return snap.Hostname
	case PlaceholderLabel:
		return snap.Label
	case PlaceholderTags:
		return snap.Tags.String()
	case PlaceholderBackupStart:
		if snap.Summary == nil {
			return "no_backup_start"
		}
		return strftime.Format(t.timeFormat, snap.Summary.BackupStart)
	case PlaceholderBackupEnd:
		if snap.Summary == nil {
			return "no_backup_end"
		}
		return strftime.Format(t.timeFormat, snap.Summary.BackupEnd)
	default:
		return ""
	}
}
