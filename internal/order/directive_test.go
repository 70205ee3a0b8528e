package order_test

import (
	"testing"

	"github.com/xxgiasonxx/voice-ordering-system/internal/order"
)

func TestParseReplyFullBlocks(t *testing.T) {
	t.Parallel()

	raw := "前言忽略\n```sys\nintent: order\n+ 1 1 無\n+ 1001 2 大杯\n- 12345 1\n```\n```cus\n好喔，馬上幫你弄！\n```\n"

	r := order.ParseReply(raw)

	if r.CustomerText != "好喔，馬上幫你弄！" {
		t.Errorf("CustomerText = %q", r.CustomerText)
	}
	want := []order.Directive{
		order.IntentDirective{Intent: "order"},
		order.AddDirective{ItemRef: "1", Quantity: 1, Note: ""},
		order.AddDirective{ItemRef: "1001", Quantity: 2, Note: "大杯"},
		order.RemoveDirective{LineID: "12345", Quantity: 1},
	}
	if len(r.Directives) != len(want) {
		t.Fatalf("got %d directives, want %d: %#v", len(r.Directives), len(want), r.Directives)
	}
	for i := range want {
		if r.Directives[i] != want[i] {
			t.Errorf("directive %d = %#v, want %#v", i, r.Directives[i], want[i])
		}
	}
}

func TestParseReplyMissingBlocks(t *testing.T) {
	t.Parallel()

	r := order.ParseReply("沒有任何區塊的回應")
	if r.CustomerText != "" {
		t.Errorf("CustomerText = %q, want empty", r.CustomerText)
	}
	if len(r.Directives) != 0 {
		t.Errorf("got %d directives, want 0", len(r.Directives))
	}
}

func TestParseReplySkipsMalformedLines(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		sys  string
		want int
	}{
		{"add with too few fields", "+ 1 1", 0},
		{"add with non-numeric quantity", "+ 1 abc 無", 0},
		{"add with zero quantity", "+ 1 0 無", 0},
		{"remove with too many fields", "- 12345 1 extra", 0},
		{"intent without separator", "intent:order", 0},
		{"system notice line", "系統：無對應品項", 0},
		{"valid after invalid", "+ 1 1\n+ 2 1 無", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := order.ParseReply("```sys\n" + tt.sys + "\n```")
			if len(r.Directives) != tt.want {
				t.Errorf("got %d directives, want %d: %#v", len(r.Directives), tt.want, r.Directives)
			}
		})
	}
}

func TestParseReplyNormalizesNoCustomization(t *testing.T) {
	t.Parallel()

	r := order.ParseReply("```sys\n+ 1 1 無\n```")
	if len(r.Directives) != 1 {
		t.Fatalf("got %d directives, want 1", len(r.Directives))
	}
	add, ok := r.Directives[0].(order.AddDirective)
	if !ok {
		t.Fatalf("directive = %#v, want AddDirective", r.Directives[0])
	}
	if add.Note != "" {
		t.Errorf("Note = %q, want empty", add.Note)
	}
}
