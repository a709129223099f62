package payroll

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/coaching-engine/generic"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

type CoachSummary struct {
	CoachID         generic.CoachID
	Name            string
	HourlyRate      decimal.Decimal
	TotalHours      decimal.Decimal
	TotalOwed       decimal.Decimal
	TotalPaid       decimal.Decimal
	RemainingAmount decimal.Decimal
	UnpaidSessions  int // payments whose status is not paid
	PaymentCount    int
}

type GlobalStats struct {
	TotalCoaches  int
	TotalSessions int // concrete sessions, templates excluded
	TotalHours    decimal.Decimal
	TotalPayments decimal.Decimal // sum of amount owed
	TotalPaid     decimal.Decimal
}

// MonthBucket is the paid total of one calendar month.
type MonthBucket struct {
	Year  int
	Month time.Month
	Total decimal.Decimal
	Count int
}

// Label formats the bucket as YYYY-MM.
func (b MonthBucket) Label() string {
	return time.Date(b.Year, b.Month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func (b MonthBucket) key() int { return b.Year*12 + int(b.Month) - 1 }

// Earnings is the coach earnings page in one value.
type Earnings struct {
	TotalEarned decimal.Decimal // paid
	Pending     decimal.Decimal // owed on pending payments
	ThisMonth   decimal.Decimal
	Monthly     []MonthBucket
	Recent      []*generic.Payment
}

// =============================================================================
// REPORTER
// =============================================================================

// Reporter computes read-side aggregates. Every method makes a single pass
// over its inputs.
type Reporter struct {
	loc *time.Location
	now func() time.Time
}

// NewReporter buckets months in loc. nil loc means UTC, nil now means time.Now.
func NewReporter(loc *time.Location, now func() time.Time) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Reporter{loc: loc, now: now}
}

// CoachSummaries returns one row per coach, in coaches order. Payments of
// coaches missing from the registry get a row of their own, appended by id.
func (r *Reporter) CoachSummaries(coaches []generic.Coach, payments []*generic.Payment) []CoachSummary {
	rows := make(map[generic.CoachID]*CoachSummary, len(coaches))
	order := make([]generic.CoachID, 0, len(coaches))
	for _, c := range coaches {
		rows[c.ID] = newSummary(c.ID, c.Name, c.HourlyRate)
		order = append(order, c.ID)
	}

	var orphans []generic.CoachID
	for _, p := range payments {
		row, ok := rows[p.CoachID]
		if !ok {
			row = newSummary(p.CoachID, "", decimal.Zero)
			rows[p.CoachID] = row
			orphans = append(orphans, p.CoachID)
		}
		row.add(p)
	}
	sort.Slice(orphans, func(i, j int) bool { return orphans[i] < orphans[j] })

	out := make([]CoachSummary, 0, len(rows))
	for _, id := range append(order, orphans...) {
		row := rows[id]
		row.RemainingAmount = row.TotalOwed.Sub(row.TotalPaid)
		out = append(out, *row)
	}
	return out
}

// CoachSummary folds the payments belonging to coach.
func (r *Reporter) CoachSummary(coach generic.Coach, payments []*generic.Payment) CoachSummary {
	row := newSummary(coach.ID, coach.Name, coach.HourlyRate)
	for _, p := range payments {
		if p.CoachID == coach.ID {
			row.add(p)
		}
	}
	row.RemainingAmount = row.TotalOwed.Sub(row.TotalPaid)
	return *row
}

func newSummary(id generic.CoachID, name string, rate decimal.Decimal) *CoachSummary {
	return &CoachSummary{
		CoachID:    id,
		Name:       name,
		HourlyRate: rate,
		TotalHours: decimal.Zero,
		TotalOwed:  decimal.Zero,
		TotalPaid:  decimal.Zero,
	}
}

func (s *CoachSummary) add(p *generic.Payment) {
	s.TotalHours = s.TotalHours.Add(p.Hours)
	s.TotalOwed = s.TotalOwed.Add(p.AmountOwed)
	s.TotalPaid = s.TotalPaid.Add(p.AmountPaid)
	if p.Status != generic.PaymentPaid {
		s.UnpaidSessions++
	}
	s.PaymentCount++
}

func (r *Reporter) Global(coaches []generic.Coach, sessions []*generic.Session, payments []*generic.Payment) GlobalStats {
	stats := GlobalStats{
		TotalCoaches:  len(coaches),
		TotalHours:    decimal.Zero,
		TotalPayments: decimal.Zero,
		TotalPaid:     decimal.Zero,
	}
	for _, s := range sessions {
		if !s.IsTemplate() {
			stats.TotalSessions++
		}
	}
	for _, p := range payments {
		stats.TotalHours = stats.TotalHours.Add(p.Hours)
		stats.TotalPayments = stats.TotalPayments.Add(p.AmountOwed)
		stats.TotalPaid = stats.TotalPaid.Add(p.AmountPaid)
	}
	return stats
}

// =============================================================================
// EARNINGS
// =============================================================================

// Monthly groups paid payments by the month of CreatedAt and returns the n
// most recent buckets, newest first. n <= 0 returns every bucket.
func (r *Reporter) Monthly(payments []*generic.Payment, n int) []MonthBucket {
	buckets := make(map[int]*MonthBucket)
	for _, p := range payments {
		if p.Status != generic.PaymentPaid {
			continue
		}
		t := p.CreatedAt.In(r.loc)
		b := MonthBucket{Year: t.Year(), Month: t.Month()}
		k := b.key()
		if _, ok := buckets[k]; !ok {
			b.Total = decimal.Zero
			buckets[k] = &b
		}
		buckets[k].Total = buckets[k].Total.Add(p.AmountPaid)
		buckets[k].Count++
	}

	out := make([]MonthBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() > out[j].key() })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// MonthToDate sums paid payments created in the current calendar month.
func (r *Reporter) MonthToDate(payments []*generic.Payment) decimal.Decimal {
	now := r.now().In(r.loc)
	total := decimal.Zero
	for _, p := range payments {
		if p.Status != generic.PaymentPaid {
			continue
		}
		t := p.CreatedAt.In(r.loc)
		if t.Year() == now.Year() && t.Month() == now.Month() {
			total = total.Add(p.AmountPaid)
		}
	}
	return total
}

// RecentPayments returns the n newest payments by CreatedAt.
func (r *Reporter) RecentPayments(payments []*generic.Payment, n int) []*generic.Payment {
	out := append([]*generic.Payment(nil), payments...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Earnings assembles the earnings page for one coach's payments.
func (r *Reporter) Earnings(payments []*generic.Payment, months, recent int) Earnings {
	e := Earnings{TotalEarned: decimal.Zero, Pending: decimal.Zero}
	for _, p := range payments {
		switch p.Status {
		case generic.PaymentPaid:
			e.TotalEarned = e.TotalEarned.Add(p.AmountPaid)
		case generic.PaymentPending:
			e.Pending = e.Pending.Add(p.AmountOwed)
		}
	}
	e.ThisMonth = r.MonthToDate(payments)
	e.Monthly = r.Monthly(payments, months)
	e.Recent = r.RecentPayments(payments, recent)
	return e
}
