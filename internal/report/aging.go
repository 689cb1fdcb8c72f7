package report

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/normalize"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/types"
)

// Bucket is a receivables age range.
type Bucket string

const (
	BucketCurrent Bucket = "vigente"
	Bucket1To30   Bucket = "1-30"
	Bucket31To60  Bucket = "31-60"
	Bucket61To90  Bucket = "61-90"
	BucketOver90  Bucket = "90+"
	BucketUnknown Bucket = "sin_dato"
)

// Buckets lists every bucket in display order.
var Buckets = []Bucket{BucketCurrent, Bucket1To30, Bucket31To60, Bucket61To90, BucketOver90, BucketUnknown}

// BucketFor maps days overdue to a bucket. Zero or negative days are current.
func BucketFor(days int) Bucket {
	switch {
	case days <= 0:
		return BucketCurrent
	case days <= 30:
		return Bucket1To30
	case days <= 60:
		return Bucket31To60
	case days <= 90:
		return Bucket61To90
	}
	return BucketOver90
}

// Receivables status derived from the sheet a row came from.
const (
	StatusCurrent = "vigente"
	StatusOverdue = "vencida"
)

// Status returns the receivables status implied by the row's sheet name,
// or "" when the sheet says nothing.
func Status(row types.CanonicalRow) string {
	sheet := normalize.Header(row.Sheet)
	switch {
	case strings.Contains(sheet, "vencid"):
		return StatusOverdue
	case strings.Contains(sheet, "vigente"):
		return StatusCurrent
	}
	return ""
}

// AgingOptions configures BuildAging.
type AgingOptions struct {
	// AsOf is the date due dates are measured against. Zero means today.
	AsOf time.Time
}

// BucketTotal is one age bucket of the aging report.
type BucketTotal struct {
	Bucket     Bucket
	Total      decimal.Decimal
	Operations int
}

// Aging is the receivables report.
type Aging struct {
	AsOf time.Time

	TotalBalance decimal.Decimal
	Customers    int
	Agents       int
	Lines        int

	ByAgent    []Group
	ByCustomer []Group
	ByLine     []Group
	ByStatus   []Group

	// Buckets holds every bucket in display order, empty ones included.
	Buckets []BucketTotal

	// NullBalances counts rows skipped for a null balance.
	NullBalances int
}

// BuildAging computes the receivables report.
func BuildAging(rows []types.CanonicalRow, opts AgingOptions) *Aging {
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now()
	}
	asOf = time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	aging := &Aging{
		AsOf:       asOf,
		Customers:  distinct(rows, func(r types.CanonicalRow) string { return r.Customer }),
		Agents:     distinct(rows, func(r types.CanonicalRow) string { return r.Agent }),
		Lines:      distinct(rows, func(r types.CanonicalRow) string { return r.ProductLine }),
		ByAgent:    groupBy(rows, func(r types.CanonicalRow) string { return r.Agent }),
		ByCustomer: groupBy(rows, func(r types.CanonicalRow) string { return r.Customer }),
		ByLine:     groupBy(rows, func(r types.CanonicalRow) string { return r.ProductLine }),
		ByStatus:   groupBy(rows, Status),
	}

	totals := make(map[Bucket]*BucketTotal, len(Buckets))
	for _, b := range Buckets {
		aging.Buckets = append(aging.Buckets, BucketTotal{Bucket: b})
	}
	for i := range aging.Buckets {
		totals[aging.Buckets[i].Bucket] = &aging.Buckets[i]
	}

	for _, row := range rows {
		amount, ok := amountOf(row)
		if !ok {
			aging.NullBalances++
			continue
		}
		aging.TotalBalance = aging.TotalBalance.Add(amount)

		bt := totals[bucketOf(row, asOf)]
		bt.Total = bt.Total.Add(amount)
		bt.Operations++
	}

	return aging
}

// bucketOf prefers the days-overdue column, then the due date. A row from
// a "vigentes" sheet with neither is current.
func bucketOf(row types.CanonicalRow, asOf time.Time) Bucket {
	switch {
	case row.DaysOverdue != nil:
		return BucketFor(*row.DaysOverdue)
	case row.DueDate != nil:
		return BucketFor(int(asOf.Sub(*row.DueDate).Hours() / 24))
	case Status(row) == StatusCurrent:
		return BucketCurrent
	}
	return BucketUnknown
}
