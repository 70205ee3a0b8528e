package order

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/menu"
)

// largeCup in a customization note selects the L price for size-priced
// items.
const largeCup = "大杯"

// DefaultCustomizationPrices maps customization keywords to their
// per-unit surcharge. A note is priced by summing every keyword it
// contains.
var DefaultCustomizationPrices = map[string]int{
	"加蛋":   10,
	"起司":   10,
	"泡菜":   10,
	"燒肉":   20,
	"起司牛奶": 5,
	"山型丹麥": 10,
}

// Engine mutates order documents from parsed directives. It is
// stateless; the document is the state.
type Engine struct {
	Menu   menu.Resolver
	IDs    IDSource
	Prices map[string]int
}

// NewEngine creates an Engine with the default customization price
// table.
func NewEngine(resolver menu.Resolver, ids IDSource) *Engine {
	return &Engine{
		Menu:   resolver,
		IDs:    ids,
		Prices: DefaultCustomizationPrices,
	}
}

// PriceNote sums the surcharge of every priced keyword the note
// contains.
func (e *Engine) PriceNote(note string) int {
	total := 0
	for keyword, price := range e.Prices {
		if strings.Contains(note, keyword) {
			total += price
		}
	}
	return total
}

// Apply runs every directive of a parsed reply against doc in order.
// Add directives referencing unknown items are dropped so one model
// hallucination cannot fail the turn; any other resolver error aborts.
func (e *Engine) Apply(ctx context.Context, doc *Document, reply Reply) error {
	for _, d := range reply.Directives {
		switch d := d.(type) {
		case IntentDirective:
			e.ApplyIntent(doc, d.Intent)
		case AddDirective:
			err := e.ApplyAdd(ctx, doc, d.ItemRef, d.Quantity, d.Note)
			if err != nil && !errors.Is(err, menu.ErrUnknownItem) {
				return err
			}
		case RemoveDirective:
			e.ApplyRemove(doc, d.LineID, d.Quantity)
		}
	}
	return nil
}

// ApplyIntent records the turn's intent as the document status.
func (e *Engine) ApplyIntent(doc *Document, intent string) {
	doc.Status = intent
}

// ApplyAdd resolves itemRef and adds qty units with the given
// customization note. Lines merge when item id and note both match an
// existing line; otherwise a new line with a fresh id is appended.
func (e *Engine) ApplyAdd(ctx context.Context, doc *Document, itemRef string, qty int, note string) error {
	if qty <= 0 {
		return nil
	}

	entry, err := e.Menu.Resolve(ctx, itemRef)
	if err != nil {
		return fmt.Errorf("resolve item %q: %w", itemRef, err)
	}

	for i := range doc.Items {
		line := &doc.Items[i]
		if line.ItemID == entry.ID && line.Customization.Note == note {
			line.Quantity += qty
			doc.TotalPrice += line.Subtotal * qty
			return nil
		}
	}

	unitPrice := unitPriceFor(entry, note)
	cusPrice := e.PriceNote(note)

	doc.Items = append(doc.Items, Line{
		ID:        e.IDs.LineID(entry.ID),
		ItemID:    entry.ID,
		Class:     entry.Class,
		Name:      entry.Name,
		UnitPrice: unitPrice,
		Subtotal:  unitPrice + cusPrice,
		Quantity:  qty,
		Customization: Customization{
			Price: cusPrice,
			Note:  note,
		},
	})
	doc.TotalPrice += (unitPrice + cusPrice) * qty
	return nil
}

// ApplyRemove decrements the line with the given id by qty, clamped to
// the line's quantity, and deletes the line when it reaches zero. An
// unknown line id is a no-op.
func (e *Engine) ApplyRemove(doc *Document, lineID string, qty int) {
	if qty <= 0 {
		return
	}
	for i := range doc.Items {
		line := &doc.Items[i]
		if line.ID != lineID {
			continue
		}
		removed := min(qty, line.Quantity)
		line.Quantity -= removed
		doc.TotalPrice -= line.Subtotal * removed
		if line.Quantity <= 0 {
			doc.Items = append(doc.Items[:i], doc.Items[i+1:]...)
		}
		return
	}
}

// unitPriceFor returns the fixed catalog price when set; size-priced
// items use the L price when the note asks for a large cup, M
// otherwise.
func unitPriceFor(entry menu.Entry, note string) int {
	if entry.Price != nil {
		return *entry.Price
	}
	if strings.Contains(note, largeCup) {
		return entry.L
	}
	return entry.M
}
