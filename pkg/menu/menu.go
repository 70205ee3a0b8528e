// Package menu defines the menu lookup collaborator consumed by the
// order engine and the retrieval layer that builds menu context for the
// response generator.
//
// Item references follow a deliberate three-way routing shortcut
// inherited from the menu data model: numeric ids below
// [DrinkIDThreshold] live in the combo table, numeric ids at or above
// it live in the drink table, and non-numeric ids live in the main-item
// table. This is not a generic id scheme and resolver implementations
// must apply it exactly.
package menu

import (
	"context"
	"errors"
	"strconv"
)

// DrinkIDThreshold is the numeric id boundary between the combo table
// (below) and the drink table (at/above).
const DrinkIDThreshold = 1000

// ErrUnknownItem is returned by Resolve when no table contains the
// referenced item. Callers decide whether to surface or drop it; the
// order engine drops the directive and lets the generator's own
// customer-facing text carry the miss.
var ErrUnknownItem = errors.New("menu: unknown item")

// Table identifies which menu table an item reference routes to.
type Table string

const (
	TableCombo Table = "combo"
	TableDrink Table = "drink"
	TableMain  Table = "main"
)

// Route applies the three-way id-routing rule to an item reference.
func Route(itemRef string) Table {
	n, err := strconv.Atoi(itemRef)
	if err != nil {
		return TableMain
	}
	if n >= DrinkIDThreshold {
		return TableDrink
	}
	return TableCombo
}

// Entry is one resolved menu item.
type Entry struct {
	// ID is the catalog id as stored in its table.
	ID string

	// Class is the display category (e.g., "台式蛋餅").
	Class string

	// Name is the item name within its class.
	Name string

	// Price is the fixed catalog price in integer currency units.
	// Nil for size-priced items (drinks), which use M and L instead.
	Price *int

	// M and L are the medium/large prices for size-priced items.
	// Both are zero when Price is set.
	M int
	L int

	// Recommended marks items the generator may push when the customer
	// hesitates.
	Recommended bool
}

// Resolver looks up a single item reference, partitioned by [Route].
//
// Implementations must be safe for concurrent use.
type Resolver interface {
	// Resolve returns the entry for itemRef.
	// Returns [ErrUnknownItem] when the routed table has no such id.
	Resolve(ctx context.Context, itemRef string) (Entry, error)
}

// Retriever produces a formatted menu-context block for a customer
// query, used verbatim in the generator prompt. Implementations may use
// vector similarity, lexical ranking, or both.
type Retriever interface {
	// RetrieveContext returns up to topK menu descriptions relevant to
	// query, joined into a single prompt-ready string. An empty string
	// means no menu information was available.
	RetrieveContext(ctx context.Context, query string, topK int) (string, error)
}
