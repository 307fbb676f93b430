package pricing

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udhaar/backend/internal/domain"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func soap() domain.Product {
	return domain.Product{
		ID:       "prod_soap",
		Name:     "Soap",
		BaseUnit: "piece",
		PackagingLevels: []domain.PackagingLevel{
			{Name: "box", Quantity: 12},
			{Name: "carton", Quantity: 10},
		},
		DefaultPrices: map[string]decimal.Decimal{
			"piece":  d("10"),
			"box":    d("110"),
			"carton": d("1000"),
		},
		IsActive: true,
	}
}

func TestConversionFactorIsCumulative(t *testing.T) {
	p := soap()

	cases := map[string]string{"piece": "1", "box": "12", "carton": "120", " BOX ": "12"}
	for unit, want := range cases {
		got, err := ConversionFactor(p, unit)
		require.NoError(t, err, unit)
		assert.True(t, d(want).Equal(got), "%s: want %s got %s", unit, want, got)
	}

	_, err := ConversionFactor(p, "pallet")
	require.True(t, errors.Is(err, ErrUnknownUnit))
}

func TestToBaseQuantityRoundTrip(t *testing.T) {
	p := soap()
	for _, unit := range []string{"piece", "box", "carton"} {
		for _, qty := range []string{"1", "2", "0.5", "7.25"} {
			base, err := ToBaseQuantity(p, unit, d(qty))
			require.NoError(t, err)
			factor, err := ConversionFactor(p, unit)
			require.NoError(t, err)
			assert.True(t, base.Div(factor).Equal(d(qty)), "%s %s", unit, qty)
		}
	}
}

func TestToBaseQuantityRejectsNonPositive(t *testing.T) {
	_, err := ToBaseQuantity(soap(), "box", decimal.Zero)
	require.True(t, errors.Is(err, ErrInvalidQuantity))
	_, err = ToBaseQuantity(soap(), "box", d("-1"))
	require.True(t, errors.Is(err, ErrInvalidQuantity))
}

func TestUnitPricePrefersSellingPriceForBase(t *testing.T) {
	p := soap()
	p.SellingPrice = decimal.NewNullDecimal(d("9.5"))

	price, err := UnitPrice(p, "piece")
	require.NoError(t, err)
	assert.True(t, d("9.5").Equal(price))

	price, err = UnitPrice(p, "box")
	require.NoError(t, err)
	assert.True(t, d("110").Equal(price))
}

func TestUnitPriceErrors(t *testing.T) {
	p := soap()
	delete(p.DefaultPrices, "carton")
	_, err := UnitPrice(p, "carton")
	require.True(t, errors.Is(err, ErrPriceNotDefined))

	p.DefaultPrices["box"] = d("-1")
	_, err = UnitPrice(p, "box")
	require.True(t, errors.Is(err, ErrInvalidPrice))

	_, err = UnitPrice(p, "crate")
	require.True(t, errors.Is(err, ErrUnknownUnit))
}

// Two boxes of a 12-piece box cost 2 x box price and consume 24 pieces.
func TestScenarioBoxSale(t *testing.T) {
	p := soap()
	p.PackagingLevels = p.PackagingLevels[:1]
	delete(p.DefaultPrices, "carton")

	total, err := LineTotal(p, "box", d("2"))
	require.NoError(t, err)
	assert.True(t, d("220").Equal(total))

	base, err := ToBaseQuantity(p, "box", d("2"))
	require.NoError(t, err)
	assert.True(t, d("24").Equal(base))
}

func TestPerBaseUnit(t *testing.T) {
	cost, err := PerBaseUnit(soap(), "box", d("96"))
	require.NoError(t, err)
	assert.True(t, d("8").Equal(cost))
}

func TestValidateProduct(t *testing.T) {
	require.NoError(t, ValidateProduct(Normalize(soap())))

	dup := soap()
	dup.PackagingLevels = append(dup.PackagingLevels, domain.PackagingLevel{Name: "Box", Quantity: 3})
	require.True(t, errors.Is(ValidateProduct(Normalize(dup)), ErrInvalidPackaging))

	small := soap()
	small.PackagingLevels[0].Quantity = 1
	require.True(t, errors.Is(ValidateProduct(Normalize(small)), ErrInvalidPackaging))

	noBase := soap()
	delete(noBase.DefaultPrices, "piece")
	require.True(t, errors.Is(ValidateProduct(Normalize(noBase)), ErrPriceNotDefined))

	stray := soap()
	stray.DefaultPrices["crate"] = d("5")
	require.True(t, errors.Is(ValidateProduct(Normalize(stray)), ErrUnknownUnit))

	badPurchase := soap()
	badPurchase.PurchaseUnit = "pallet"
	require.True(t, errors.Is(ValidateProduct(Normalize(badPurchase)), ErrUnknownUnit))

	negative := soap()
	negative.Stock = d("-1")
	require.True(t, errors.Is(ValidateProduct(Normalize(negative)), domain.ErrInvalidProduct))
}
