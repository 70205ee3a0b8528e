package order

import (
	"regexp"
	"strconv"
	"strings"
)

// noCustomization is the literal the generator emits when an added item
// has no customization.
const noCustomization = "無"

var (
	sysBlockRe = regexp.MustCompile("(?s)```sys\n(.*?)```")
	cusBlockRe = regexp.MustCompile("(?s)```cus\n(.*?)```")
)

// Directive is one machine instruction parsed from a generator reply.
// Exactly one of the concrete types below.
type Directive interface {
	directive()
}

// IntentDirective labels the turn's intent (order, query, cancel,
// view_cus, end, ...).
type IntentDirective struct {
	Intent string
}

// AddDirective adds Quantity units of an item to the order. Note is
// the customization text, empty when the customer asked for none.
type AddDirective struct {
	ItemRef  string
	Quantity int
	Note     string
}

// RemoveDirective removes Quantity units of an existing order line.
type RemoveDirective struct {
	LineID   string
	Quantity int
}

func (IntentDirective) directive() {}
func (AddDirective) directive()    {}
func (RemoveDirective) directive() {}

// Reply is a parsed generator response: the spoken customer text plus
// the machine directives from the sys block.
type Reply struct {
	CustomerText string
	Directives   []Directive
}

// ParseReply extracts the fenced sys and cus blocks from a raw
// generator reply. Missing blocks yield an empty text or directive
// list. Malformed sys lines are skipped; the parser is deliberately
// lenient because the reply comes from a language model.
func ParseReply(raw string) Reply {
	var r Reply

	if m := cusBlockRe.FindStringSubmatch(raw); m != nil {
		r.CustomerText = strings.TrimSpace(m[1])
	}

	m := sysBlockRe.FindStringSubmatch(raw)
	if m == nil {
		return r
	}

	for _, line := range strings.Split(strings.TrimSpace(m[1]), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "intent:"):
			parts := strings.SplitN(line, ": ", 2)
			if len(parts) != 2 {
				continue
			}
			r.Directives = append(r.Directives, IntentDirective{Intent: strings.TrimSpace(parts[1])})

		case strings.HasPrefix(line, "+"):
			fields := strings.Fields(line)
			if len(fields) != 4 {
				continue
			}
			qty, err := strconv.Atoi(fields[2])
			if err != nil || qty <= 0 {
				continue
			}
			note := fields[3]
			if note == noCustomization {
				note = ""
			}
			r.Directives = append(r.Directives, AddDirective{
				ItemRef:  fields[1],
				Quantity: qty,
				Note:     note,
			})

		case strings.HasPrefix(line, "-"):
			fields := strings.Fields(line)
			if len(fields) != 3 {
				continue
			}
			qty, err := strconv.Atoi(fields[2])
			if err != nil || qty <= 0 {
				continue
			}
			r.Directives = append(r.Directives, RemoveDirective{
				LineID:   fields[1],
				Quantity: qty,
			})
		}
	}

	return r
}
