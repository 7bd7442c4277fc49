// Package urgency derives a keyword-based urgency level for inbound mail.
package urgency

import (
	"regexp"
	"strings"

	"mailagent/core/domain"
)

// keyword tables per level, English and Chinese. Order within a level does
// not matter; levels are checked urgent > high > medium.
var urgencyKeywords = map[domain.UrgencyLevel][]string{
	domain.UrgencyUrgent: {
		"urgent", "asap", "immediately", "emergency", "critical",
		"crisis", "outage", "down", "not working", "broken",
		"fail", "failure", "error", "panic", "help",
		"紧急", "立即", "马上", "立刻", "十万火急",
		"急件", "急事", "催促", "尽快", "非常重要",
		"系统宕机", "服务中断", "无法访问", "出问题了",
		"非常着急", "尽快处理", "刻不容缓",
		"生死攸关", "迫在眉睫", "火烧眉毛",
	},
	domain.UrgencyHigh: {
		"important", "priority", "as soon as possible",
		"need response", "waiting for", "follow up",
		"time sensitive", "deadline", "due today",
		"重要", "重要事项", "重要通知", "重要客户",
		"尽快回复", "尽快完成", "重要提醒",
		"请尽快", "麻烦尽快", "提醒", "注意事项", "需要尽快",
		"请马上", "请立即", "请立刻", "麻烦您",
		"尽快安排", "尽快解决",
	},
	domain.UrgencyMedium: {
		"request", "please", "would you", "could you",
		"when possible", "at your convenience",
		"请", "请问", "希望", "期望", "建议",
		"能否", "是否可以", "方便的话", "谢谢配合",
		"麻烦", "感谢", "请帮忙", "请协助",
		"希望您", "请您", "如有可能", "如果方便",
	},
}

// loweringWords force low urgency regardless of other matches.
var loweringWords = []string{
	"不急", "慢慢来", "有空再说", "随你", "没关系",
	"不必着急", "不用急", "慢慢处理", "不着急",
	"有时间再说", "以后再说", "延后处理", "低优先级",
	"no rush", "take your time", "whenever", "not urgent",
}

// Detector matches urgency keywords against subject and body.
type Detector struct {
	patterns map[domain.UrgencyLevel][]*keywordPattern
	lowering []*keywordPattern
}

type keywordPattern struct {
	keyword string
	re      *regexp.Regexp
}

// NewDetector compiles the keyword tables once.
func NewDetector() *Detector {
	d := &Detector{
		patterns: make(map[domain.UrgencyLevel][]*keywordPattern, len(urgencyKeywords)),
	}
	for level, keywords := range urgencyKeywords {
		for _, kw := range keywords {
			d.patterns[level] = append(d.patterns[level], compileKeyword(kw))
		}
	}
	for _, kw := range loweringWords {
		d.lowering = append(d.lowering, compileKeyword(kw))
	}
	return d
}

func compileKeyword(kw string) *keywordPattern {
	return &keywordPattern{
		keyword: kw,
		re:      regexp.MustCompile("(?i)" + regexp.QuoteMeta(kw)),
	}
}

// Analyze returns the urgency level for a message and the matched keywords.
// Lowering words short-circuit to low with no keywords.
func (d *Detector) Analyze(subject, body string) (domain.UrgencyLevel, []string) {
	text := strings.ToLower(subject + " " + body)

	for _, p := range d.lowering {
		if p.re.MatchString(text) {
			return domain.UrgencyLow, nil
		}
	}

	for _, level := range []domain.UrgencyLevel{
		domain.UrgencyUrgent,
		domain.UrgencyHigh,
		domain.UrgencyMedium,
	} {
		var matched []string
		for _, p := range d.patterns[level] {
			if p.re.MatchString(text) {
				matched = append(matched, p.keyword)
			}
		}
		if len(matched) > 0 {
			return level, matched
		}
	}

	return domain.UrgencyLow, nil
}

// Score maps a level to a 0-100 score for display.
func Score(level domain.UrgencyLevel) int {
	switch level {
	case domain.UrgencyUrgent:
		return 100
	case domain.UrgencyHigh:
		return 75
	case domain.UrgencyMedium:
		return 50
	}
	return 25
}
