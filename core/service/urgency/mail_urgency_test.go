package urgency

import (
	"testing"

	"mailagent/core/domain"
)

func TestAnalyze(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name    string
		subject string
		body    string
		want    domain.UrgencyLevel
	}{
		{"urgent zh", "系统宕机", "服务中断，无法访问", domain.UrgencyUrgent},
		{"urgent en", "URGENT: production down", "please help asap", domain.UrgencyUrgent},
		{"high zh", "重要通知", "请尽快回复合同事宜", domain.UrgencyHigh},
		{"high en", "deadline today", "this is time sensitive", domain.UrgencyHigh},
		{"medium zh", "咨询", "请问能否提供报价", domain.UrgencyMedium},
		{"medium en", "question", "could you share the pricing", domain.UrgencyMedium},
		{"plain", "hello", "nothing special here", domain.UrgencyLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, _ := d.Analyze(tt.subject, tt.body)
			if level != tt.want {
				t.Errorf("Analyze(%q, %q) = %q, want %q", tt.subject, tt.body, level, tt.want)
			}
		})
	}
}

func TestLoweringWordsForceLow(t *testing.T) {
	d := NewDetector()

	level, keywords := d.Analyze("重要事项", "很重要，但是不急，有空再说")
	if level != domain.UrgencyLow {
		t.Errorf("level = %q, want low", level)
	}
	if len(keywords) != 0 {
		t.Errorf("keywords = %v, want none", keywords)
	}

	level, _ = d.Analyze("urgent request", "no rush though, take your time")
	if level != domain.UrgencyLow {
		t.Errorf("level = %q, want low", level)
	}
}

func TestAnalyzeReturnsMatchedKeywords(t *testing.T) {
	d := NewDetector()

	_, keywords := d.Analyze("紧急", "系统宕机了")
	if len(keywords) == 0 {
		t.Fatal("expected matched keywords")
	}
	found := false
	for _, k := range keywords {
		if k == "紧急" || k == "系统宕机" {
			found = true
		}
	}
	if !found {
		t.Errorf("keywords = %v, expected 紧急 or 系统宕机", keywords)
	}
}

func TestScore(t *testing.T) {
	if Score(domain.UrgencyUrgent) != 100 || Score(domain.UrgencyLow) != 25 {
		t.Error("score mapping broken")
	}
}
