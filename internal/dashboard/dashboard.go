// Package dashboard aggregates sale totals per payment method plus entity
// counts for the overview screen. The backend's summary endpoint is
// authoritative; when it is unavailable the totals are approximated
// client-side from the raw order history.
package dashboard

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pdv-labs/pos-gateway/internal/erp"
)

// TotalCashPixKey is the combined cash+PIX key the summary endpoint
// returns; the fallback computes it the same way.
const TotalCashPixKey = "TOTAL_DINHEIRO_PIX"

// Backend is the slice of the ERP client the dashboard needs.
type Backend interface {
	DashboardTotals(ctx context.Context, start, end string) (map[string]decimal.Decimal, error)
	ListOrders(ctx context.Context, start, end string) ([]erp.Order, error)
	ListServices(ctx context.Context) ([]erp.Service, error)
}

// Counts provides snapshot sizes for the overview cards. Implemented by
// *catalog.Cache.
type Counts interface {
	Products() []erp.Product
	Customers() []erp.Customer
}

// Overview is the dashboard payload.
type Overview struct {
	Products  int                        `json:"products"`
	Customers int                        `json:"customers"`
	Services  int                        `json:"services"`
	Totals    map[string]decimal.Decimal `json:"totals"`
}

// Service computes dashboard data.
type Service struct {
	backend Backend
	counts  Counts
	lg      *zap.Logger
	now     func() time.Time
}

// New creates a dashboard Service.
func New(backend Backend, counts Counts, lg *zap.Logger) *Service {
	return &Service{
		backend: backend,
		counts:  counts,
		lg:      lg,
		now:     time.Now,
	}
}

// Totals returns sale totals per payment method for the range. It prefers
// the backend's summary endpoint and falls back to client-side aggregation
// over finalized orders when the endpoint errors for any reason.
func (s *Service) Totals(ctx context.Context, start, end time.Time) (map[string]decimal.Decimal, error) {
	startStr := start.Format(erp.TimeLayout)
	endStr := end.Format(erp.TimeLayout)

	totals, err := s.backend.DashboardTotals(ctx, startStr, endStr)
	if err == nil {
		return totals, nil
	}
	s.lg.Warn("totals endpoint unavailable, aggregating from orders", zap.Error(err))

	return s.aggregateFromOrders(ctx, startStr, endStr)
}

// aggregateFromOrders groups finalized orders by upper-cased payment
// method. This duplicates the backend's business rules best-effort; only
// the summary endpoint is authoritative.
func (s *Service) aggregateFromOrders(ctx context.Context, start, end string) (map[string]decimal.Decimal, error) {
	orders, err := s.backend.ListOrders(ctx, start, end)
	if err != nil {
		return nil, errors.Wrap(err, "list orders for totals")
	}

	totals := map[string]decimal.Decimal{
		erp.PaymentCash: decimal.Zero,
		erp.PaymentPix:  decimal.Zero,
	}
	for _, o := range orders {
		status := strings.ToUpper(o.Status)
		if status != erp.StatusFinalized && status != "FINALIZADO" {
			continue
		}
		method := strings.ToUpper(o.PaymentMethod)
		if method == "" {
			continue
		}
		totals[method] = totals[method].Add(o.Total)
	}
	totals[TotalCashPixKey] = totals[erp.PaymentCash].Add(totals[erp.PaymentPix])

	return totals, nil
}

// Overview returns entity counts plus month-to-date totals. A failing
// services fetch or totals fetch degrades its own figure without failing
// the whole overview.
func (s *Service) Overview(ctx context.Context) Overview {
	out := Overview{
		Products:  len(s.counts.Products()),
		Customers: len(s.counts.Customers()),
		Totals:    map[string]decimal.Decimal{},
	}

	services, err := s.backend.ListServices(ctx)
	if err != nil {
		s.lg.Warn("service count unavailable", zap.Error(err))
	} else {
		out.Services = len(services)
	}

	start, end := s.monthToDate()
	totals, err := s.Totals(ctx, start, end)
	if err != nil {
		s.lg.Warn("totals unavailable", zap.Error(err))
	} else {
		out.Totals = totals
	}
	return out
}

// monthToDate is the default dashboard range: first day of the current
// month at midnight through the end of the current day, local time.
func (s *Service) monthToDate() (time.Time, time.Time) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	end := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())
	return start, end
}
