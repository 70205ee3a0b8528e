package menu_test

import (
	"context"
	"strings"
	"testing"

	"github.com/xxgiasonxx/voice-ordering-system/pkg/menu"
)

func intPtr(v int) *int { return &v }

func TestRoute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ref  string
		want menu.Table
	}{
		{"1", menu.TableCombo},
		{"999", menu.TableCombo},
		{"1000", menu.TableDrink},
		{"1205", menu.TableDrink},
		{"蛋餅", menu.TableMain},
		{"A1", menu.TableMain},
		{"", menu.TableMain},
	}
	for _, tc := range cases {
		if got := menu.Route(tc.ref); got != tc.want {
			t.Errorf("Route(%q) = %q, want %q", tc.ref, got, tc.want)
		}
	}
}

func testEntries() []menu.Entry {
	return []menu.Entry{
		{ID: "1", Class: "台式蛋餅", Name: "原味蛋餅", Price: intPtr(30)},
		{ID: "2", Class: "台式蛋餅", Name: "起司蛋餅", Price: intPtr(40)},
		{ID: "1001", Class: "飲品", Name: "古早紅茶", M: 20, L: 30},
		{ID: "1002", Class: "飲品", Name: "特調咖啡", M: 45, L: 55, Recommended: true},
	}
}

func TestLexicalSearchRanksExactNameFirst(t *testing.T) {
	t.Parallel()

	idx := menu.NewLexicalIndex(testEntries())

	got := idx.Search("原味蛋餅", 2)
	if len(got) == 0 {
		t.Fatal("no results for an exact item name")
	}
	if got[0].ID != "1" {
		t.Errorf("top result = %s (%s), want 原味蛋餅", got[0].ID, got[0].Name)
	}
}

func TestLexicalSearchIgnoresIrrelevantQueries(t *testing.T) {
	t.Parallel()

	idx := menu.NewLexicalIndex(testEntries())

	if got := idx.Search("completely unrelated text", 5); len(got) != 0 {
		t.Errorf("irrelevant query returned %d entries", len(got))
	}
	if got := idx.Search("   ", 5); got != nil {
		t.Errorf("blank query returned %d entries", len(got))
	}
}

func TestLexicalRetrieveContext(t *testing.T) {
	t.Parallel()

	idx := menu.NewLexicalIndex(testEntries())

	ctx, err := idx.RetrieveContext(context.Background(), "紅茶", 3)
	if err != nil {
		t.Fatalf("RetrieveContext: %v", err)
	}
	if !strings.Contains(ctx, "古早紅茶") {
		t.Errorf("context missing the matched drink:\n%s", ctx)
	}
	if !strings.Contains(ctx, "M中杯: 20 元") || !strings.Contains(ctx, "L大杯: 30 元") {
		t.Errorf("context missing size prices:\n%s", ctx)
	}
}

func TestFormatEntries(t *testing.T) {
	t.Parallel()

	out := menu.FormatEntries(testEntries())

	if !strings.Contains(out, "id: 1\n類別: 台式蛋餅\n品項名稱: 原味蛋餅\n價格: 30 元") {
		t.Errorf("fixed-price stanza malformed:\n%s", out)
	}
	if !strings.Contains(out, "推薦: 1") {
		t.Errorf("recommended flag missing:\n%s", out)
	}
	if menu.FormatEntries(nil) != "" {
		t.Error("empty entry list should format to an empty string")
	}
}
