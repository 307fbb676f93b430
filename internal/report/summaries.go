package report

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/store"
)

type DailySummary struct {
	Date         string          `json:"date"`
	Bills        int             `json:"bills"`
	SalesAmount  decimal.Decimal `json:"sales_amount"`
	CashReceived decimal.Decimal `json:"cash_received"`
	UdhaarAdded  decimal.Decimal `json:"udhaar_added"`
}

type CashReport struct {
	From       time.Time                                `json:"from"`
	To         time.Time                                `json:"to"`
	WalkInCash decimal.Decimal                          `json:"walk_in_cash"`
	ByMode     map[domain.PaymentMethod]decimal.Decimal `json:"by_mode"`
	Received   decimal.Decimal                          `json:"received"`
	Total      decimal.Decimal                          `json:"total"`
	Expenses   decimal.Decimal                          `json:"expenses"`
	Net        decimal.Decimal                          `json:"net"`
}

type ProfitReport struct {
	From     time.Time       `json:"from"`
	To       time.Time       `json:"to"`
	Sales    decimal.Decimal `json:"sales"`
	Cost     decimal.Decimal `json:"cost"`
	Discount decimal.Decimal `json:"discount"`
	Returns  decimal.Decimal `json:"returns"`
	Expenses decimal.Decimal `json:"expenses"`
	Profit   decimal.Decimal `json:"profit"`
}

type CustomerDue struct {
	CustomerID string          `json:"customer_id"`
	Name       string          `json:"name"`
	ShopName   string          `json:"shop_name"`
	Phone      string          `json:"phone"`
	Due        decimal.Decimal `json:"due"`
}

type DuesReport struct {
	Customers []CustomerDue   `json:"customers"`
	Total     decimal.Decimal `json:"total"`
}

type OverdueSale struct {
	SaleID        string          `json:"sale_id"`
	InvoiceNumber string          `json:"invoice_number"`
	CustomerName  string          `json:"customer_name"`
	Pending       decimal.Decimal `json:"pending"`
	DueDate       time.Time       `json:"due_date"`
	DaysOverdue   int             `json:"days_overdue"`
}

type OverdueReport struct {
	Sales []OverdueSale   `json:"sales"`
	Total decimal.Decimal `json:"total"`
}

type SalesOverview struct {
	Status       domain.SaleStatus `json:"status,omitempty"`
	PendingTotal decimal.Decimal   `json:"pending_total"`
	OpenCount    int               `json:"open_count"`
	Customers    int               `json:"customers"`
}

func (a *Aggregator) activeSales(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Sale, error) {
	sales, err := a.reader.ListSales(ctx, store.SaleFilter{TenantID: tenantID, From: from, To: to})
	if err != nil {
		return nil, err
	}
	out := sales[:0]
	for _, s := range sales {
		if s.Status != domain.SaleStatusCancelled {
			out = append(out, s)
		}
	}
	return out, nil
}

// cancelledSales returns the IDs of every cancelled sale of the tenant. Records that point at
// them (SALE entries, returns) drop out of the reports along with the sale.
func (a *Aggregator) cancelledSales(ctx context.Context, tenantID string) (map[string]struct{}, error) {
	sales, err := a.reader.ListSales(ctx, store.SaleFilter{TenantID: tenantID, Status: domain.SaleStatusCancelled})
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(sales))
	for _, s := range sales {
		ids[s.ID] = struct{}{}
	}
	return ids, nil
}

func (a *Aggregator) entries(ctx context.Context, tenantID string, from, to time.Time, types ...domain.LedgerEntryType) ([]domain.LedgerEntry, error) {
	return a.reader.ListLedgerEntries(ctx, store.LedgerFilter{TenantID: tenantID, Types: types, From: from, To: to})
}

// DailySummary covers one UTC day. Cash counts every PAYMENT entry plus what walk-in sales paid;
// udhaar added is the credit booked by the day's SALE entries of sales that are still standing.
func (a *Aggregator) DailySummary(ctx context.Context, tenantID string, day time.Time) (DailySummary, error) {
	from, to := dayBounds(day)
	return cached(ctx, a, tenantID, "daily", from.Format(time.DateOnly), func(ctx context.Context) (DailySummary, error) {
		out := DailySummary{
			Date:         from.Format(time.DateOnly),
			SalesAmount:  decimal.Zero,
			CashReceived: decimal.Zero,
			UdhaarAdded:  decimal.Zero,
		}
		sales, err := a.activeSales(ctx, tenantID, from, to)
		if err != nil {
			return out, err
		}
		for _, s := range sales {
			out.Bills++
			out.SalesAmount = out.SalesAmount.Add(s.FinalAmount)
			if s.Customer == nil {
				out.CashReceived = out.CashReceived.Add(s.PaidAmount)
			}
		}
		cancelled, err := a.cancelledSales(ctx, tenantID)
		if err != nil {
			return out, err
		}
		entries, err := a.entries(ctx, tenantID, from, to, domain.LedgerPayment, domain.LedgerSale)
		if err != nil {
			return out, err
		}
		for _, e := range entries {
			switch e.Type {
			case domain.LedgerPayment:
				out.CashReceived = out.CashReceived.Add(e.Amount)
			case domain.LedgerSale:
				if _, gone := cancelled[e.SaleID]; gone {
					continue
				}
				out.UdhaarAdded = out.UdhaarAdded.Add(e.Amount)
			}
		}
		return out, nil
	})
}

func (a *Aggregator) Cash(ctx context.Context, tenantID string, from, to time.Time) (CashReport, error) {
	if !from.Before(to) {
		return CashReport{}, domain.ErrInvalidRange
	}
	return cached(ctx, a, tenantID, "cash", rangeKey(from, to), func(ctx context.Context) (CashReport, error) {
		out := CashReport{
			From:       from,
			To:         to,
			WalkInCash: decimal.Zero,
			ByMode:     map[domain.PaymentMethod]decimal.Decimal{},
			Received:   decimal.Zero,
			Expenses:   decimal.Zero,
		}
		sales, err := a.activeSales(ctx, tenantID, from, to)
		if err != nil {
			return out, err
		}
		for _, s := range sales {
			if s.Customer == nil {
				out.WalkInCash = out.WalkInCash.Add(s.PaidAmount)
			}
		}
		entries, err := a.entries(ctx, tenantID, from, to, domain.LedgerPayment, domain.LedgerExpense)
		if err != nil {
			return out, err
		}
		for _, e := range entries {
			if e.Type == domain.LedgerExpense {
				out.Expenses = out.Expenses.Add(e.Amount)
				continue
			}
			mode := e.PaymentMode.OrCash()
			out.ByMode[mode] = out.ByMode[mode].Add(e.Amount)
			out.Received = out.Received.Add(e.Amount)
		}
		out.Total = out.WalkInCash.Add(out.Received)
		out.Net = out.Total.Sub(out.Expenses)
		return out, nil
	})
}

// Profit uses the cost snapshotted on each line at sale time. Returns subtract the refund and give
// back the cost of any units that went back on the shelf. Cancelled sales and their returns are
// left out entirely.
func (a *Aggregator) Profit(ctx context.Context, tenantID string, from, to time.Time) (ProfitReport, error) {
	if !from.Before(to) {
		return ProfitReport{}, domain.ErrInvalidRange
	}
	return cached(ctx, a, tenantID, "profit", rangeKey(from, to), func(ctx context.Context) (ProfitReport, error) {
		out := ProfitReport{
			From:     from,
			To:       to,
			Sales:    decimal.Zero,
			Cost:     decimal.Zero,
			Discount: decimal.Zero,
			Returns:  decimal.Zero,
			Expenses: decimal.Zero,
		}
		sales, err := a.activeSales(ctx, tenantID, from, to)
		if err != nil {
			return out, err
		}
		for _, s := range sales {
			for _, item := range s.Items {
				out.Sales = out.Sales.Add(item.Total)
				out.Cost = out.Cost.Add(item.CostPriceAtSale.Mul(item.ConvertedBaseQuantity))
			}
			out.Discount = out.Discount.Add(s.Discount)
		}

		returns, err := a.standingReturns(ctx, tenantID, from, to)
		if err != nil {
			return out, err
		}
		for _, r := range returns {
			restockedCost := decimal.Zero
			for _, item := range r.Items {
				restockedCost = restockedCost.Add(item.CostPriceAtSale.Mul(item.BaseQuantity))
			}
			out.Returns = out.Returns.Add(r.TotalReturnAmount.Sub(restockedCost))
		}

		expenses, err := a.entries(ctx, tenantID, from, to, domain.LedgerExpense)
		if err != nil {
			return out, err
		}
		for _, e := range expenses {
			out.Expenses = out.Expenses.Add(e.Amount)
		}

		out.Profit = out.Sales.Sub(out.Discount).Sub(out.Cost).Sub(out.Returns).Sub(out.Expenses)
		return out, nil
	})
}

func (a *Aggregator) standingReturns(ctx context.Context, tenantID string, from, to time.Time) ([]domain.Return, error) {
	cancelled, err := a.cancelledSales(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	returns, err := a.reader.ListReturns(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	out := returns[:0]
	for _, r := range returns {
		if _, gone := cancelled[r.SaleID]; !gone {
			out = append(out, r)
		}
	}
	return out, nil
}

// Dues lists customers who owe anything, largest due first.
func (a *Aggregator) Dues(ctx context.Context, tenantID string) (DuesReport, error) {
	return cached(ctx, a, tenantID, "dues", "all", func(ctx context.Context) (DuesReport, error) {
		out := DuesReport{Customers: []CustomerDue{}, Total: decimal.Zero}
		customers, err := a.reader.ListCustomers(ctx, tenantID)
		if err != nil {
			return out, err
		}
		for _, c := range customers {
			if !c.DueAmount.IsPositive() {
				continue
			}
			out.Customers = append(out.Customers, CustomerDue{
				CustomerID: c.ID,
				Name:       c.Name,
				ShopName:   c.ShopName,
				Phone:      c.Phone,
				Due:        c.DueAmount,
			})
			out.Total = out.Total.Add(c.DueAmount)
		}
		sort.SliceStable(out.Customers, func(i, j int) bool {
			return out.Customers[i].Due.GreaterThan(out.Customers[j].Due)
		})
		return out, nil
	})
}

// Overdue lists sales still owing after their due date, largest pending first.
func (a *Aggregator) Overdue(ctx context.Context, tenantID string, now time.Time) (OverdueReport, error) {
	now = now.UTC()
	return cached(ctx, a, tenantID, "overdue", now.Format(time.DateOnly), func(ctx context.Context) (OverdueReport, error) {
		out := OverdueReport{Sales: []OverdueSale{}, Total: decimal.Zero}
		sales, err := a.activeSales(ctx, tenantID, time.Time{}, time.Time{})
		if err != nil {
			return out, err
		}
		for _, s := range sales {
			if !s.IsOverdue(now) {
				continue
			}
			name := ""
			if s.Customer != nil {
				name = s.Customer.Name
			}
			out.Sales = append(out.Sales, OverdueSale{
				SaleID:        s.ID,
				InvoiceNumber: s.InvoiceNumber,
				CustomerName:  name,
				Pending:       s.PendingAmount,
				DueDate:       s.DueDate,
				DaysOverdue:   int(now.Sub(s.DueDate).Hours() / 24),
			})
			out.Total = out.Total.Add(s.PendingAmount)
		}
		sort.SliceStable(out.Sales, func(i, j int) bool {
			return out.Sales[i].Pending.GreaterThan(out.Sales[j].Pending)
		})
		return out, nil
	})
}

func (a *Aggregator) SalesOverview(ctx context.Context, tenantID string, status domain.SaleStatus) (SalesOverview, error) {
	if status != "" && !status.Valid() {
		return SalesOverview{}, domain.ErrInvalidEnum.With("unknown sale status %q", string(status))
	}
	return cached(ctx, a, tenantID, "sales", string(status), func(ctx context.Context) (SalesOverview, error) {
		out := SalesOverview{Status: status, PendingTotal: decimal.Zero}
		sales, err := a.reader.ListSales(ctx, store.SaleFilter{TenantID: tenantID, Status: status})
		if err != nil {
			return out, err
		}
		customers := map[string]struct{}{}
		for _, s := range sales {
			if s.Status == domain.SaleStatusCancelled || !s.PendingAmount.IsPositive() {
				continue
			}
			out.OpenCount++
			out.PendingTotal = out.PendingTotal.Add(s.PendingAmount)
			if id, ok := s.CustomerID(); ok {
				customers[id] = struct{}{}
			}
		}
		out.Customers = len(customers)
		return out, nil
	})
}
