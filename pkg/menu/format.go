package menu

import (
	"fmt"
	"strings"
)

// FormatEntries renders entries into the plain-text menu block the
// generator prompt expects: one stanza per item, fields on their own
// lines, stanzas separated by a blank line.
func FormatEntries(entries []Entry) string {
	if len(entries) == 0 {
		return ""
	}
	stanzas := make([]string, 0, len(entries))
	for _, e := range entries {
		stanzas = append(stanzas, formatEntry(e))
	}
	return strings.Join(stanzas, "\n\n")
}

func formatEntry(e Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "id: %s\n", e.ID)
	if e.Class != "" {
		fmt.Fprintf(&b, "類別: %s\n", e.Class)
	}
	fmt.Fprintf(&b, "品項名稱: %s", e.Name)
	if e.Price != nil {
		fmt.Fprintf(&b, "\n價格: %d 元", *e.Price)
	} else {
		fmt.Fprintf(&b, "\nM中杯: %d 元\nL大杯: %d 元", e.M, e.L)
	}
	if e.Recommended {
		b.WriteString("\n推薦: 1")
	}
	return b.String()
}
