// Package stats derives presentation counters from the message cache and
// history. Nothing here is authoritative; every request recomputes from the
// deduplicated union of both lists.
package stats

import (
	"time"

	"mailagent/core/domain"
)

// Overview is the dashboard counter set.
type Overview struct {
	TodayEmails        int `json:"today_emails"`
	Processed          int `json:"processed"`
	Pending            int `json:"pending"`
	Failed             int `json:"failed"`
	Sent               int `json:"sent"`
	ThisMonthProcessed int `json:"this_month_processed"`
}

// TrendPoint is one day of the received/processed trend.
type TrendPoint struct {
	Date      string `json:"date"`
	Received  int    `json:"received"`
	Processed int    `json:"processed"`
}

const dayFormat = "2006-01-02"

// dedupe merges cache and history by message id. The cache entry wins when
// both exist; its status reflects any run after the history snapshot.
func dedupe(d *domain.EmailData) []*domain.Email {
	seen := make(map[string]struct{}, len(d.EmailsCache)+len(d.History))
	merged := make([]*domain.Email, 0, len(d.EmailsCache)+len(d.History))
	for _, e := range d.EmailsCache {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		seen[e.ID] = struct{}{}
		merged = append(merged, e)
	}
	for _, h := range d.History {
		if _, ok := seen[h.ID]; ok {
			continue
		}
		seen[h.ID] = struct{}{}
		merged = append(merged, &h.Email)
	}
	return merged
}

func isProcessed(s domain.EmailStatus) bool {
	return s == domain.StatusProcessed || s == domain.StatusSent || s == domain.StatusSkipped
}

// ComputeOverview derives the dashboard counters at the given time.
func ComputeOverview(d *domain.EmailData, now time.Time) Overview {
	today := now.Format(dayFormat)
	month := now.Format("2006-01")

	var o Overview
	for _, e := range dedupe(d) {
		day := e.ReceivedAt.Format(dayFormat)
		if day == today {
			o.TodayEmails++
		}
		switch {
		case isProcessed(e.Status):
			o.Processed++
			if e.ReceivedAt.Format("2006-01") == month {
				o.ThisMonthProcessed++
			}
			if e.Status == domain.StatusSent {
				o.Sent++
			}
		case e.Status == domain.StatusFailed:
			o.Failed++
		}
	}
	for _, e := range d.EmailsCache {
		if e.Status == domain.StatusPending {
			o.Pending++
		}
	}

	// a just-finished send may not be flushed into cache or history yet
	if d.Stats.Sent > o.Sent {
		o.Sent = d.Stats.Sent
	}
	return o
}

// ComputeCategories counts today's messages per category.
func ComputeCategories(d *domain.EmailData, now time.Time) map[string]int {
	today := now.Format(dayFormat)
	counts := map[string]int{
		string(domain.CategoryProductEnquiry):    0,
		string(domain.CategoryCustomerComplaint): 0,
		string(domain.CategoryCustomerFeedback):  0,
		string(domain.CategoryUnrelated):         0,
	}
	for _, e := range dedupe(d) {
		if e.Category == "" || e.ReceivedAt.Format(dayFormat) != today {
			continue
		}
		counts[string(e.Category)]++
	}
	return counts
}

// ComputeTrend returns per-day received and processed counts for the last
// days days, oldest first.
func ComputeTrend(d *domain.EmailData, now time.Time, days int) []TrendPoint {
	if days <= 0 {
		days = 7
	}
	points := make([]TrendPoint, days)
	index := make(map[string]int, days)
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, i-days+1).Format(dayFormat)
		points[i] = TrendPoint{Date: day}
		index[day] = i
	}
	for _, e := range dedupe(d) {
		i, ok := index[e.ReceivedAt.Format(dayFormat)]
		if !ok {
			continue
		}
		points[i].Received++
		if isProcessed(e.Status) {
			points[i].Processed++
		}
	}
	return points
}
