package order_test

import (
	"context"
	"testing"

	"github.com/xxgiasonxx/voice-ordering-system/internal/order"
)

func TestDiffEmpty(t *testing.T) {
	t.Parallel()

	_, doc := newTestEngine()
	c := order.Diff(*doc, doc.Clone())
	if !c.Empty() {
		t.Errorf("Diff of identical documents = %+v", c)
	}
}

func TestDiffAddedRemovedModified(t *testing.T) {
	t.Parallel()

	e, doc := newTestEngine()
	ctx := context.Background()
	if err := e.ApplyAdd(ctx, doc, "1", 1, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.ApplyAdd(ctx, doc, "2", 1, ""); err != nil {
		t.Fatal(err)
	}
	before := doc.Clone()

	// Bump item 1, drop item 2, add a drink.
	if err := e.ApplyAdd(ctx, doc, "1", 1, ""); err != nil {
		t.Fatal(err)
	}
	e.ApplyRemove(doc, before.Items[1].ID, 1)
	if err := e.ApplyAdd(ctx, doc, "1001", 1, ""); err != nil {
		t.Fatal(err)
	}

	c := order.Diff(before, *doc)

	if len(c.Added) != 1 || c.Added[0].ItemID != "1001" {
		t.Errorf("Added = %+v", c.Added)
	}
	if len(c.Removed) != 1 || c.Removed[0].ItemID != "2" {
		t.Errorf("Removed = %+v", c.Removed)
	}
	if len(c.Modified) != 1 {
		t.Fatalf("Modified = %+v", c.Modified)
	}
	if c.Modified[0].Before.Quantity != 1 || c.Modified[0].After.Quantity != 2 {
		t.Errorf("Modified quantities = %d -> %d, want 1 -> 2",
			c.Modified[0].Before.Quantity, c.Modified[0].After.Quantity)
	}
}

func TestDiffAntisymmetry(t *testing.T) {
	t.Parallel()

	e, doc := newTestEngine()
	ctx := context.Background()
	if err := e.ApplyAdd(ctx, doc, "1", 1, ""); err != nil {
		t.Fatal(err)
	}
	if err := e.ApplyAdd(ctx, doc, "2", 1, ""); err != nil {
		t.Fatal(err)
	}
	before := doc.Clone()

	if err := e.ApplyAdd(ctx, doc, "1", 1, ""); err != nil {
		t.Fatal(err)
	}
	e.ApplyRemove(doc, before.Items[1].ID, 1)
	if err := e.ApplyAdd(ctx, doc, "1001", 1, "大杯"); err != nil {
		t.Fatal(err)
	}

	fwd := order.Diff(before, *doc)
	rev := order.Diff(*doc, before)

	if got, want := lineIDSet(rev.Removed), lineIDSet(fwd.Added); !sameIDSet(got, want) {
		t.Errorf("reverse Removed = %v, want forward Added %v", got, want)
	}
	if got, want := lineIDSet(rev.Added), lineIDSet(fwd.Removed); !sameIDSet(got, want) {
		t.Errorf("reverse Added = %v, want forward Removed %v", got, want)
	}
	if len(rev.Modified) != len(fwd.Modified) {
		t.Fatalf("reverse Modified = %d lines, forward = %d", len(rev.Modified), len(fwd.Modified))
	}
	for i, fc := range fwd.Modified {
		rc := rev.Modified[i]
		if fc.Before != rc.After || fc.After != rc.Before {
			t.Errorf("modified line %d not mirrored: forward %+v, reverse %+v", i, fc, rc)
		}
	}
}

func lineIDSet(lines []order.Line) map[string]bool {
	ids := make(map[string]bool, len(lines))
	for _, l := range lines {
		ids[l.ID] = true
	}
	return ids
}

func sameIDSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

func TestCloneIsolation(t *testing.T) {
	t.Parallel()

	e, doc := newTestEngine()
	if err := e.ApplyAdd(context.Background(), doc, "1", 1, ""); err != nil {
		t.Fatal(err)
	}
	snap := doc.Clone()

	doc.Items[0].Quantity = 99
	if snap.Items[0].Quantity != 1 {
		t.Error("clone shares item storage with the original")
	}
}
