package inventory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udhaar/backend/internal/domain"
	"udhaar/backend/internal/store"
)

type fakeStock struct {
	stock map[string]decimal.Decimal
	calls []string
}

func (f *fakeStock) DeductStock(_ context.Context, _ string, id string, qty decimal.Decimal) error {
	f.calls = append(f.calls, "deduct:"+id)
	if f.stock[id].LessThan(qty) {
		return store.ErrStockConflict
	}
	f.stock[id] = f.stock[id].Sub(qty)
	return nil
}

func (f *fakeStock) IncreaseStock(_ context.Context, _ string, id string, qty decimal.Decimal) error {
	f.calls = append(f.calls, "add:"+id)
	f.stock[id] = f.stock[id].Add(qty)
	return nil
}

func n(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestRequirementAccumulates(t *testing.T) {
	req := Requirement{}
	req.Add("b", n(12))
	req.Add("a", n(1))
	req.Add("b", n(3))

	assert.Equal(t, []string{"a", "b"}, req.ProductIDs())
	assert.True(t, n(15).Equal(req["b"]))
}

func TestValidateChecksEveryLineBeforeWriting(t *testing.T) {
	products := map[string]domain.Product{
		"a": {ID: "a", Name: "Rice", BaseUnit: "kg", Stock: n(10)},
		"b": {ID: "b", Name: "Soap", BaseUnit: "piece", Stock: n(5)},
	}
	req := Requirement{"a": n(4), "b": n(24)}

	err := Validate(products, req)
	require.True(t, errors.Is(err, domain.ErrInsufficientStock))
	assert.Contains(t, err.Error(), "Available: 5 piece, Required: 24 piece")

	err = Validate(products, Requirement{"missing": n(1)})
	require.True(t, errors.Is(err, store.ErrNotFound))
}

func TestDeductAllSortedAndConflicting(t *testing.T) {
	f := &fakeStock{stock: map[string]decimal.Decimal{"a": n(5), "b": n(1)}}

	err := DeductAll(context.Background(), f, "t1", Requirement{"b": n(2), "a": n(1)})
	require.True(t, errors.Is(err, store.ErrStockConflict))
	assert.Equal(t, []string{"deduct:a", "deduct:b"}, f.calls)
}

func TestRestoreAndAdd(t *testing.T) {
	f := &fakeStock{stock: map[string]decimal.Decimal{"a": n(0)}}
	require.NoError(t, RestoreAll(context.Background(), f, "t1", Requirement{"a": n(24)}))
	require.NoError(t, Add(context.Background(), f, "t1", "a", decimal.Zero))
	assert.True(t, n(24).Equal(f.stock["a"]))
	assert.Len(t, f.calls, 1)
}
