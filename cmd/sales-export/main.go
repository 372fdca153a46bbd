// Command sales-export pulls closed sales from the ERP for a date range
// and writes them as a gzip-compressed NDJSON archive, one order per
// line, with client details joined in. Useful for accounting handoffs
// and offline analysis.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdv-labs/pos-gateway/internal/erp"
)

const dateLayout = "2006-01-02"

// exportRecord is one NDJSON line in the archive.
type exportRecord struct {
	OrderID       int64              `json:"orderId"`
	Date          string             `json:"date"`
	Status        string             `json:"status"`
	PaymentMethod string             `json:"paymentMethod"`
	Total         decimal.Decimal    `json:"total"`
	ClientID      int64              `json:"clientId,omitempty"`
	ClientName    string             `json:"clientName,omitempty"`
	ClientCPF     string             `json:"clientCpf,omitempty"`
	Items         []exportRecordItem `json:"items"`
}

type exportRecordItem struct {
	ProductID int64           `json:"productId"`
	Name      string          `json:"name,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

func main() {
	var (
		erpURL string
		start  string
		end    string
		out    string
	)

	flag.StringVar(&erpURL, "erp-url", "", "base URL of the ERP REST API (or ERP_URL env)")
	flag.StringVar(&start, "start", "", "start date, inclusive (YYYY-MM-DD, defaults to first of current month)")
	flag.StringVar(&end, "end", "", "end date, inclusive (YYYY-MM-DD, defaults to today)")
	flag.StringVar(&out, "out", "sales-export.ndjson.gz", "output file path")
	flag.Parse()

	if erpURL == "" {
		erpURL = os.Getenv("ERP_URL")
	}
	if erpURL == "" {
		slog.Error("ERP URL is required: set --erp-url or ERP_URL")
		os.Exit(1)
	}

	now := time.Now()
	if start == "" {
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).Format(dateLayout)
	}
	if end == "" {
		end = now.Format(dateLayout)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, erpURL, start, end, out); err != nil {
		slog.Error("sales export failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("sales export completed", slog.String("out", out))
}

func run(ctx context.Context, erpURL, start, end, out string) error {
	client := erp.NewClient(erpURL, zap.NewNop())

	slog.Info("fetching from ERP",
		slog.String("start", start),
		slog.String("end", end),
	)

	// Orders and clients fetch concurrently; the clients list backfills
	// details the order payload omits.
	var (
		orders  []erp.Order
		clients []erp.Customer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		orders, err = client.ListOrders(gctx, start, end)
		return errors.Wrap(err, "list orders")
	})
	g.Go(func() error {
		var err error
		clients, err = client.ListClients(gctx)
		return errors.Wrap(err, "list clients")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	clientsByID := make(map[int64]erp.Customer, len(clients))
	for _, c := range clients {
		clientsByID[c.ID] = c
	}

	slog.Info("fetched orders", slog.Int("count", len(orders)))

	return writeArchive(out, orders, clientsByID)
}

// writeArchive streams records through a parallel gzip writer.
func writeArchive(path string, orders []erp.Order, clientsByID map[int64]erp.Customer) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	defer func() { _ = f.Close() }()

	gz := pgzip.NewWriter(f)
	w := bufio.NewWriter(gz)
	enc := json.NewEncoder(w)

	var written int
	for _, o := range orders {
		if err := enc.Encode(buildRecord(o, clientsByID)); err != nil {
			return errors.Wrapf(err, "encode order %d", o.ID)
		}
		written++
	}

	if err := w.Flush(); err != nil {
		return errors.Wrap(err, "flush archive")
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "close gzip writer")
	}
	if err := f.Close(); err != nil {
		return errors.Wrapf(err, "close %s", path)
	}

	slog.Info("archive written", slog.Int("records", written))
	return nil
}

func buildRecord(o erp.Order, clientsByID map[int64]erp.Customer) exportRecord {
	rec := exportRecord{
		OrderID:       o.ID,
		Date:          o.Date,
		Status:        o.Status,
		PaymentMethod: o.PaymentMethod,
		Total:         o.Total,
		Items:         make([]exportRecordItem, 0, len(o.Items)),
	}

	if o.Customer != nil {
		rec.ClientID = o.Customer.ID
		rec.ClientName = o.Customer.Name
		rec.ClientCPF = o.Customer.CPF
		// The nested customer is sometimes a bare reference; the full
		// clients list fills in what the order payload left out.
		if full, ok := clientsByID[o.Customer.ID]; ok {
			if rec.ClientName == "" {
				rec.ClientName = full.Name
			}
			if rec.ClientCPF == "" {
				rec.ClientCPF = full.CPF
			}
		}
	}

	for _, it := range o.Items {
		item := exportRecordItem{
			ProductID: it.ProductID(),
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		}
		if it.Product != nil {
			item.Name = it.Product.Name
		}
		rec.Items = append(rec.Items, item)
	}

	return rec
}
