package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/store"
)

// tx is one SERIALIZABLE transaction. Rows it reads for update are locked with FOR UPDATE so
// concurrent units queue instead of failing late at commit.
type tx struct {
	tx *sql.Tx
}

var _ store.Tx = (*tx)(nil)

func (t *tx) Commit() error {
	return mapError(t.tx.Commit())
}

func (t *tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return err
	}
	return nil
}

func (t *tx) GetProducts(ctx context.Context, tenantID string, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE tenant_id = $1 AND id = ANY($2)
	`, tenantID, ids)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var row productRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, err
		}
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (t *tx) InsertProduct(ctx context.Context, product domain.Product) error {
	args, err := productArgs(product)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, args...)
	return mapError(err)
}

func (t *tx) UpdateProductCost(ctx context.Context, tenantID string, productID string, cost decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET last_purchase_cost = $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, productID, cost)
	return requireRow(res, err, store.ErrNotFound)
}

// DeductStock is a compare-and-set: the row only changes while it still holds enough stock.
func (t *tx) DeductStock(ctx context.Context, tenantID string, productID string, qty decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND stock >= $3
	`, tenantID, productID, qty)
	return requireRow(res, err, store.ErrStockConflict)
}

func (t *tx) IncreaseStock(ctx context.Context, tenantID string, productID string, qty decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + $3, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, productID, qty)
	return requireRow(res, err, store.ErrNotFound)
}

func (t *tx) GetCustomer(ctx context.Context, tenantID string, customerID string) (*domain.Customer, error) {
	var row customerRow
	err := t.tx.QueryRowContext(ctx, `
		SELECT `+customerColumns+`
		FROM customers
		WHERE tenant_id = $1 AND id = $2
		FOR UPDATE
	`, tenantID, customerID).Scan(row.targets()...)
	if err != nil {
		return nil, mapError(err)
	}
	c := row.toDomain()
	return &c, nil
}

func (t *tx) InsertCustomer(ctx context.Context, customer domain.Customer) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, customer.ID, customer.TenantID, customer.Name, customer.ShopName, customer.Phone, customer.Address,
		customer.DueAmount, customer.IsActive, customer.CreatedAt)
	return mapError(err)
}

func (t *tx) SetCustomerDue(ctx context.Context, tenantID string, customerID string, due decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE customers SET due_amount = $3
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, customerID, due)
	return requireRow(res, err, store.ErrNotFound)
}

func (t *tx) AppendLedgerEntry(ctx context.Context, e domain.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+ledgerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`, e.ID, e.TenantID, nullString(e.CustomerID), nullString(e.SaleID), string(e.Type), e.Amount, e.Delta, e.BalanceAfter,
		string(e.PaymentMode), e.Remark, e.Category, string(e.Source), e.CreatedBy, e.Date)
	return mapError(err)
}

func (t *tx) ListLedgerEntries(ctx context.Context, filter store.LedgerFilter) ([]domain.LedgerEntry, error) {
	where, args := ledgerWhere(filter)
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries WHERE ` + where + ` ORDER BY date, seq`
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make([]domain.LedgerEntry, 0, 16)
	for rows.Next() {
		var row ledgerRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, err
		}
		out = append(out, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

func (t *tx) NextInvoiceSequence(ctx context.Context, tenantID string) (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO invoice_counters (tenant_id, last_value)
		VALUES ($1, 1)
		ON CONFLICT (tenant_id)
		DO UPDATE SET last_value = invoice_counters.last_value + 1
		RETURNING last_value
	`, tenantID).Scan(&next)
	if err != nil {
		return 0, mapError(err)
	}
	return next, nil
}

func (t *tx) FindSaleByIdempotencyKey(ctx context.Context, tenantID string, key string) (*domain.Sale, error) {
	return t.getSale(ctx, "idempotency_key", tenantID, key)
}

func (t *tx) GetSale(ctx context.Context, tenantID string, saleID string) (*domain.Sale, error) {
	return t.getSale(ctx, "id", tenantID, saleID)
}

func (t *tx) getSale(ctx context.Context, column string, tenantID string, value string) (*domain.Sale, error) {
	var row saleRow
	err := t.tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT %s
		FROM sales
		WHERE tenant_id = $1 AND %s = $2
		FOR UPDATE
	`, saleColumns, column), tenantID, value).Scan(row.targets()...)
	if err != nil {
		return nil, mapError(err)
	}
	sale, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (t *tx) InsertSale(ctx context.Context, sale domain.Sale) error {
	args, err := saleArgs(sale)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO sales (`+saleColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, args...)
	return mapError(err)
}

func (t *tx) UpdateSale(ctx context.Context, sale domain.Sale) error {
	items, err := json.Marshal(nonNilSlice(sale.Items))
	if err != nil {
		return err
	}
	returns, err := json.Marshal(nonNilSlice(sale.Returns))
	if err != nil {
		return err
	}
	var cancelledAt sql.NullTime
	if sale.CancelledAt != nil {
		cancelledAt = sql.NullTime{Time: *sale.CancelledAt, Valid: true}
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE sales SET
			items = $3, paid_amount = $4, pending_amount = $5, adjustments = $6, returns_amount = $7,
			status = $8, returns = $9, updated_at = $10, cancelled_at = $11
		WHERE tenant_id = $1 AND id = $2
	`, sale.TenantID, sale.ID, items, sale.PaidAmount, sale.PendingAmount, sale.Adjustments, sale.ReturnsAmount,
		string(sale.Status), returns, sale.UpdatedAt, cancelledAt)
	return requireRow(res, err, store.ErrNotFound)
}

func (t *tx) ListOpenSales(ctx context.Context, tenantID string, customerID string) ([]domain.Sale, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE tenant_id = $1 AND customer_id = $2 AND pending_amount > 0 AND status <> $3
		ORDER BY created_at, invoice_number
		FOR UPDATE
	`, tenantID, customerID, string(domain.SaleStatusCancelled))
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()
	return scanSales(rows)
}

func (t *tx) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO payments (id, tenant_id, customer_id, sale_id, amount, method, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.ID, p.TenantID, p.CustomerID, p.SaleID, p.Amount, string(p.Method), p.CreatedAt)
	return mapError(err)
}

func (t *tx) InsertReturn(ctx context.Context, r domain.Return) error {
	items, err := json.Marshal(nonNilSlice(r.Items))
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO sale_returns (id, tenant_id, sale_id, customer_id, items, total_return_amount, return_type, note, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, r.ID, r.TenantID, r.SaleID, r.CustomerID, items, r.TotalReturnAmount, string(r.ReturnType), r.Note, r.CreatedBy, r.CreatedAt)
	return mapError(err)
}

func (t *tx) InsertAdjustment(ctx context.Context, a domain.Adjustment) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO adjustments (id, tenant_id, sale_id, amount, reason, note, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.TenantID, a.SaleID, a.Amount, string(a.Reason), a.Note, a.CreatedBy, a.CreatedAt)
	return mapError(err)
}

func (t *tx) InsertPurchase(ctx context.Context, p domain.Purchase) error {
	items, err := json.Marshal(nonNilSlice(p.Items))
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO purchases (id, tenant_id, supplier_name, invoice_number, items, total_amount, note, created_by, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.TenantID, p.SupplierName, p.InvoiceNumber, items, p.TotalAmount, p.Note, p.CreatedBy, p.CreatedAt)
	return mapError(err)
}

func requireRow(res sql.Result, err error, missing error) error {
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return missing
	}
	return nil
}

func scanSales(rows *sql.Rows) ([]domain.Sale, error) {
	out := make([]domain.Sale, 0, 8)
	for rows.Next() {
		var row saleRow
		if err := rows.Scan(row.targets()...); err != nil {
			return nil, err
		}
		sale, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// ledgerWhere renders a LedgerFilter as a positional WHERE clause. Zero bounds are open.
func ledgerWhere(filter store.LedgerFilter) (string, []any) {
	clauses := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.CustomerID != "" {
		add("customer_id = $%d", filter.CustomerID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, typ := range filter.Types {
			types = append(types, string(typ))
		}
		add("type = ANY($%d)", types)
	}
	if !filter.From.IsZero() {
		add("date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("date < $%d", filter.To)
	}
	return strings.Join(clauses, " AND "), args
}
