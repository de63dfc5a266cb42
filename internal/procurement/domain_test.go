package procurement

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func samplePurchase() Purchase {
	return Purchase{
		CompanyID:   1,
		VendorID:    10,
		InvoiceDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Discount:    d("10"),
		PaidAmount:  d("100"),
		Lines: []PurchaseLine{
			{LineType: LineMaterial, ItemName: "Cement", Qty: d("10"), UnitPrice: d("10")},
			{LineType: LineService, Qty: d("1"), UnitPrice: d("100")},
			{LineType: LineOther, Qty: d("1"), UnitPrice: d("100")},
		},
	}
}

func TestPurchaseTotals(t *testing.T) {
	p := samplePurchase()
	require.True(t, p.Subtotal().Equal(d("300")))
	require.True(t, p.Total().Equal(d("290")))
	require.True(t, p.Due().Equal(d("190")))
}

func TestNetLineAmountsAbsorbRoundingOnLastLine(t *testing.T) {
	p := samplePurchase()
	net := p.NetLineAmounts()
	require.Len(t, net, 3)
	require.Equal(t, "96.67", net[0].StringFixed(2))
	require.Equal(t, "96.67", net[1].StringFixed(2))
	require.Equal(t, "96.66", net[2].StringFixed(2))

	sum := decimal.Zero
	for _, v := range net {
		sum = sum.Add(v)
	}
	require.True(t, sum.Equal(p.Total()))
}

func TestNetLineAmountsWithoutDiscount(t *testing.T) {
	p := samplePurchase()
	p.Discount = decimal.Zero
	net := p.NetLineAmounts()
	require.Equal(t, "100.00", net[0].StringFixed(2))
	require.Equal(t, "100.00", net[2].StringFixed(2))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(samplePurchase()))

	p := samplePurchase()
	p.Discount = d("400")
	require.ErrorIs(t, Validate(p), ErrValidation)

	p = samplePurchase()
	p.PaidAmount = d("291")
	require.ErrorIs(t, Validate(p), ErrValidation)

	p = samplePurchase()
	p.Lines[0].ItemName = " "
	require.ErrorIs(t, Validate(p), ErrValidation)

	p = samplePurchase()
	p.Lines[1].LineType = "FREIGHT"
	require.ErrorIs(t, Validate(p), ErrValidation)

	p = samplePurchase()
	p.Lines[2].Qty = decimal.Zero
	require.ErrorIs(t, Validate(p), ErrValidation)
}
