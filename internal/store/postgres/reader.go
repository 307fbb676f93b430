package postgres

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/store"
	"udhaar/backend/internal/xid"
)

// Read models go through gorm; they never take row locks.

func (s *Store) ListProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	var rows []productRow
	if err := s.gdb.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("name").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) ListCustomers(ctx context.Context, tenantID string) ([]domain.Customer, error) {
	var rows []customerRow
	if err := s.gdb.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("lower(name)").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.Customer, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) GetCustomer(ctx context.Context, tenantID string, customerID string) (*domain.Customer, error) {
	var row customerRow
	err := s.gdb.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, customerID).Take(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	c := row.toDomain()
	return &c, nil
}

func (s *Store) GetSale(ctx context.Context, tenantID string, saleID string) (*domain.Sale, error) {
	return takeSale(s.gdb.WithContext(ctx).Where("tenant_id = ? AND id = ?", tenantID, saleID))
}

func (s *Store) FindSaleByIdempotencyKey(ctx context.Context, tenantID string, key string) (*domain.Sale, error) {
	return takeSale(s.gdb.WithContext(ctx).Where("tenant_id = ? AND idempotency_key = ?", tenantID, key))
}

func takeSale(query *gorm.DB) (*domain.Sale, error) {
	var row saleRow
	if err := query.Take(&row).Error; err != nil {
		return nil, notFound(err)
	}
	sale, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

// ListSales returns newest first.
func (s *Store) ListSales(ctx context.Context, filter store.SaleFilter) ([]domain.Sale, error) {
	query := s.gdb.WithContext(ctx).Where("tenant_id = ?", filter.TenantID)
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at < ?", filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []saleRow
	if err := query.Order("created_at DESC, invoice_number DESC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		sale, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, sale)
	}
	return out, nil
}

// ListLedgerEntries returns entries in posting order. With a limit it keeps the most recent ones.
func (s *Store) ListLedgerEntries(ctx context.Context, filter store.LedgerFilter) ([]domain.LedgerEntry, error) {
	query := s.gdb.WithContext(ctx).Where("tenant_id = ?", filter.TenantID)
	if filter.CustomerID != "" {
		query = query.Where("customer_id = ?", filter.CustomerID)
	}
	if len(filter.Types) > 0 {
		types := make([]string, 0, len(filter.Types))
		for _, typ := range filter.Types {
			types = append(types, string(typ))
		}
		query = query.Where("type IN ?", types)
	}
	if !filter.From.IsZero() {
		query = query.Where("date >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("date < ?", filter.To)
	}

	var rows []ledgerRow
	if filter.Limit > 0 {
		if err := query.Order("date DESC, seq DESC").Limit(filter.Limit).Find(&rows).Error; err != nil {
			return nil, mapError(err)
		}
		slices.Reverse(rows)
	} else if err := query.Order("date, seq").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}

	out := make([]domain.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) ListReturns(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]domain.Return, error) {
	query := s.gdb.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("created_at < ?", to)
	}
	var rows []returnRow
	if err := query.Order("created_at").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.Return, 0, len(rows))
	for _, row := range rows {
		ret, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, ret)
	}
	return out, nil
}

func (s *Store) ListPurchases(ctx context.Context, tenantID string, from time.Time, to time.Time) ([]domain.Purchase, error) {
	query := s.gdb.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("created_at < ?", to)
	}
	var rows []purchaseRow
	if err := query.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	out := make([]domain.Purchase, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	row := auditRow{
		ID:         entry.ID,
		TenantID:   entry.TenantID,
		ActorID:    entry.ActorID,
		ActorRole:  entry.ActorRole,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Detail:     entry.Detail,
		CreatedAt:  entry.CreatedAt,
	}
	return mapError(s.gdb.WithContext(ctx).Create(&row).Error)
}

func (s *Store) ListAuditLogs(ctx context.Context, tenantID string, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	query := s.gdb.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("created_at < ?", to)
	}

	var rows []auditRow
	if err := query.Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	logs := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		logs = append(logs, domain.AuditLog{
			ID:         row.ID,
			TenantID:   row.TenantID,
			ActorID:    row.ActorID,
			ActorRole:  row.ActorRole,
			Action:     row.Action,
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			Detail:     row.Detail,
			CreatedAt:  row.CreatedAt.UTC(),
		})
	}
	return logs, nil
}

func (s *Store) FindUser(ctx context.Context, username string) (*domain.UserAccount, error) {
	var row userRow
	err := s.gdb.WithContext(ctx).
		Where("lower(username) = ?", strings.ToLower(strings.TrimSpace(username))).
		Take(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &domain.UserAccount{
		ID:        row.ID,
		TenantID:  row.TenantID,
		Username:  row.Username,
		Password:  row.PasswordHash,
		Role:      row.Role,
		Active:    row.Active,
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

// UpsertUser stores an account with an already hashed password. Used to bootstrap owners.
func (s *Store) UpsertUser(ctx context.Context, user domain.UserAccount) error {
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, tenant_id, username, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (lower(username))
		DO UPDATE SET password_hash = EXCLUDED.password_hash, role = EXCLUDED.role, active = EXCLUDED.active
	`, user.ID, user.TenantID, strings.ToLower(strings.TrimSpace(user.Username)), user.Password, user.Role, user.Active, user.CreatedAt)
	return mapError(err)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return mapError(err)
}
