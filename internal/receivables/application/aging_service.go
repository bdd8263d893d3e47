package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	receivables "bizledger/internal/receivables/domain"
)

// AgingBucket is a days-overdue range.
type AgingBucket string

const (
	AgingCurrent AgingBucket = "current"
	Aging1To30   AgingBucket = "1_30"
	Aging31To60  AgingBucket = "31_60"
	Aging61To90  AgingBucket = "61_90"
	AgingOver90  AgingBucket = "90_plus"
)

const agingPrecision = 2

// AgingBuckets lists buckets in display order.
var AgingBuckets = []AgingBucket{AgingCurrent, Aging1To30, Aging31To60, Aging61To90, AgingOver90}

// BucketFor maps days overdue to its bucket.
func BucketFor(daysOverdue int) AgingBucket {
	switch {
	case daysOverdue <= 0:
		return AgingCurrent
	case daysOverdue <= 30:
		return Aging1To30
	case daysOverdue <= 60:
		return Aging31To60
	case daysOverdue <= 90:
		return Aging61To90
	default:
		return AgingOver90
	}
}

// AgingLine is the outstanding position of one customer.
type AgingLine struct {
	CustomerID  string                          `json:"customer_id"`
	Buckets     map[AgingBucket]decimal.Decimal `json:"buckets"`
	Outstanding decimal.Decimal                 `json:"outstanding"`
	Interest    decimal.Decimal                 `json:"interest"`
	OpenEntries int                             `json:"open_entries"`
}

func newAgingLine(customerID string) *AgingLine {
	buckets := make(map[AgingBucket]decimal.Decimal, len(AgingBuckets))
	for _, bucket := range AgingBuckets {
		buckets[bucket] = decimal.Zero
	}
	return &AgingLine{CustomerID: customerID, Buckets: buckets}
}

func (l *AgingLine) add(bucket AgingBucket, outstanding, interest decimal.Decimal) {
	l.Buckets[bucket] = l.Buckets[bucket].Add(outstanding)
	l.Outstanding = l.Outstanding.Add(outstanding)
	l.Interest = l.Interest.Add(interest)
	l.OpenEntries++
}

func (l *AgingLine) round() {
	for bucket, amount := range l.Buckets {
		l.Buckets[bucket] = amount.Round(agingPrecision)
	}
	l.Outstanding = l.Outstanding.Round(agingPrecision)
	l.Interest = l.Interest.Round(agingPrecision)
}

// AgingReport is the overdue aging of a company's open receivables.
type AgingReport struct {
	CompanyID       string                      `json:"company_id"`
	AsOf            time.Time                   `json:"as_of"`
	CompoundingMode receivables.CompoundingMode `json:"compounding_mode"`
	MinimumFee      decimal.Decimal             `json:"minimum_fee"`
	Lines           []AgingLine                 `json:"lines"`
	Totals          AgingLine                   `json:"totals"`
}

// AgingService builds aging reports with compounding interest.
type AgingService struct {
	store    receivables.Store
	resolver *SettingsResolver
	clock    receivables.Clock
}

// NewAgingService constructs the service.
func NewAgingService(store receivables.Store, resolver *SettingsResolver, clock receivables.Clock) (*AgingService, error) {
	if store == nil {
		return nil, errors.New("aging service: nil store")
	}
	if resolver == nil {
		return nil, errors.New("aging service: nil settings resolver")
	}
	if clock == nil {
		clock = receivables.SystemClock{}
	}
	return &AgingService{store: store, resolver: resolver, clock: clock}, nil
}

// Report buckets open sell entries by days overdue. Interest uses the company's
// compounding mode and minimum fee; it is a projection and is not written back.
func (s *AgingService) Report(ctx context.Context, companyID string) (AgingReport, error) {
	if companyID == "" {
		return AgingReport{}, receivables.ErrEmptyCompanyID
	}
	company, err := s.store.GetCompanySettings(ctx, companyID)
	if err != nil {
		return AgingReport{}, fmt.Errorf("load company settings: %w", err)
	}
	mode := receivables.CompoundingDaily
	minimumFee := decimal.Zero
	if company != nil {
		if company.CompoundingMode != "" {
			mode = company.CompoundingMode
		}
		minimumFee = company.MinimumFee
	}

	entries, err := s.store.ListEntries(ctx, receivables.EntryFilter{
		CompanyID: companyID,
		Types:     []receivables.EntryType{receivables.EntryTypeSell},
		Statuses:  []receivables.Status{receivables.StatusUnpaid, receivables.StatusPartiallyPaid, receivables.StatusOverdue},
	})
	if err != nil {
		return AgingReport{}, fmt.Errorf("list open entries: %w", err)
	}

	asOf := s.clock.Now()
	resolved := make(map[string]receivables.Settings)
	lines := make(map[string]*AgingLine)
	totals := newAgingLine("")
	for i := range entries {
		entry := &entries[i]
		settings, ok := resolved[entry.CustomerID]
		if !ok {
			settings, err = s.resolver.Resolve(ctx, s.store, companyID, entry.CustomerID)
			if err != nil {
				return AgingReport{}, err
			}
			resolved[entry.CustomerID] = settings
		}
		classification := receivables.Classify(entry, settings.GracePeriodDays, asOf)
		outstanding := entry.Outstanding()
		interest := receivables.InterestCompounding(outstanding, classification.DaysOverdue, settings.InterestRatePercent, mode, minimumFee)
		bucket := BucketFor(classification.DaysOverdue)

		line := lines[entry.CustomerID]
		if line == nil {
			line = newAgingLine(entry.CustomerID)
			lines[entry.CustomerID] = line
		}
		line.add(bucket, outstanding, interest)
		totals.add(bucket, outstanding, interest)
	}

	report := AgingReport{
		CompanyID:       companyID,
		AsOf:            asOf,
		CompoundingMode: mode,
		MinimumFee:      minimumFee,
		Lines:           make([]AgingLine, 0, len(lines)),
	}
	for _, line := range lines {
		line.round()
		report.Lines = append(report.Lines, *line)
	}
	sort.Slice(report.Lines, func(i, j int) bool {
		return report.Lines[i].CustomerID < report.Lines[j].CustomerID
	})
	totals.round()
	report.Totals = *totals
	return report, nil
}
