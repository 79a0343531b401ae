package menu

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

const (
	charWidth  = 8
	lineHeight = 8
	top        = 24
)

var cp437Encoder = encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder())

// Layout turns rendered rows into the engine's layout string, CP437
// encoded. Highlighted rows use the alternate string colour.
func Layout(rows []Row, width int) ([]byte, error) {
	var b strings.Builder
	for _, r := range rows {
		text := strings.ReplaceAll(r.Text, `"`, "'")
		x := 0
		if width > 0 {
			pad := max(width-utf8.RuneCountInString(text), 0)
			switch r.Align {
			case AlignCenter:
				x = pad / 2 * charWidth
			case AlignRight:
				x = pad * charWidth
			}
		}
		op := "string"
		if r.Highlight {
			op = "string2"
		}
		fmt.Fprintf(&b, "xv %d yv %d %s \"%s\" ", x, top+r.Line*lineHeight, op, text)
	}

	out, err := cp437Encoder.Bytes([]byte(b.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to encode layout: %w", err)
	}
	return out, nil
}
