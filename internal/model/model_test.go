package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func strPtr(v string) *string { return &v }

func TestAddressBookFullAddress(t *testing.T) {
	tests := []struct {
		name string
		in   AddressBook
		want string
	}{
		{
			name: "all parts",
			in:   AddressBook{ProvinceName: strPtr("CA"), CityName: strPtr("LA"), DistrictName: strPtr("DT"), Detail: strPtr("Main St")},
			want: "CALADTMain St",
		},
		{
			name: "missing district",
			in:   AddressBook{ProvinceName: strPtr("CA"), CityName: strPtr("LA"), Detail: strPtr("Main St")},
			want: "CALAMain St",
		},
		{
			name: "nothing set",
			in:   AddressBook{},
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.FullAddress()
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "null")
		})
	}
}

func TestShoppingCartSubtotal(t *testing.T) {
	line := ShoppingCart{Number: 3, Amount: decimal.RequireFromString("0.10")}
	assert.True(t, decimal.RequireFromString("0.30").Equal(line.Subtotal()))

	zero := ShoppingCart{Number: 0, Amount: decimal.RequireFromString("9.99")}
	assert.True(t, zero.Subtotal().IsZero())
}

func TestOrderStatus(t *testing.T) {
	assert.True(t, OrderStatusToBeConfirmed.Valid())
	assert.Equal(t, OrderStatus(2), OrderStatusToBeConfirmed)
	assert.Equal(t, "to_be_confirmed", OrderStatusToBeConfirmed.String())
	assert.False(t, OrderStatus(0).Valid())
	assert.False(t, OrderStatus(7).Valid())
	assert.Equal(t, "OrderStatus(7)", OrderStatus(7).String())
}
