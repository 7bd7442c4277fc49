package llm

import (
	"reflect"
	"testing"

	"mailagent/core/domain"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"markdown fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"leading prose", `Here is the result: {"category": "unrelated"}`, `{"category": "unrelated"}`},
		{"no object", "plain text", "plain text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSONObject(tt.in); got != tt.want {
				t.Errorf("extractJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractCategory(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   domain.EmailCategory
		wantOK bool
	}{
		{"plain keyword", "the category is customer_complaint.", domain.CategoryCustomerComplaint, true},
		{"uppercase", "Category: PRODUCT_ENQUIRY", domain.CategoryProductEnquiry, true},
		{"unrelated", "unrelated", domain.CategoryUnrelated, true},
		{"nothing", "no category here", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractCategory(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("extractCategory(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExtractQuotedItems(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			"numbered list",
			"1. \"企服通套餐价格是多少\"\n2. \"基础版包含什么\"",
			[]string{"企服通套餐价格是多少", "基础版包含什么"},
		},
		{
			"dash bullets",
			"- \"如何联系客服\"\n- \"客服电话\"",
			[]string{"如何联系客服", "客服电话"},
		},
		{
			"no quoted items",
			"some free text without lists",
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractQuotedItems(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractQuotedItems(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestExtractEmailField(t *testing.T) {
	t.Run("unescaped newlines", func(t *testing.T) {
		in := "{\"email\": \"尊敬的客户：\n\n感谢您的来信。\"}"
		got, ok := extractEmailField(in)
		if !ok {
			t.Fatal("expected extraction to succeed")
		}
		if got != "尊敬的客户：\n\n感谢您的来信。" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("escaped sequences unescaped", func(t *testing.T) {
		in := `{"email": "line1\nline2"}`
		got, ok := extractEmailField(in)
		if !ok {
			t.Fatal("expected extraction to succeed")
		}
		if got != "line1\nline2" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("no field", func(t *testing.T) {
		if _, ok := extractEmailField("free text"); ok {
			t.Error("expected no extraction")
		}
	})
}

func TestFirstChars(t *testing.T) {
	if got := firstChars("hello world", 5); got != "hello" {
		t.Errorf("firstChars = %q", got)
	}
	// rune-based, not byte-based
	if got := firstChars("企服通平台", 3); got != "企服通" {
		t.Errorf("firstChars on CJK = %q", got)
	}
	if got := firstChars("short", 100); got != "short" {
		t.Errorf("firstChars past end = %q", got)
	}
}
