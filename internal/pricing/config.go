package pricing

import "github.com/shopspring/decimal"

// Config carries the externally-owned pricing parameters. Tax rate and the
// shipping policy for empty carts are deliberately not hardcoded: the two
// storefront checkout flows disagree on both, so each flow gets a named
// preset and integrators pick one (or build their own).
type Config struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal

	// FreeShippingOnEmptyCart waives the flat fee when the cart has no
	// items. When false, an empty cart is charged the flat fee like any
	// other sub-threshold subtotal.
	FreeShippingOnEmptyCart bool
}

// StandardConfig mirrors the regular checkout flow: 8% tax, flat fee applies
// to empty carts.
func StandardConfig() Config {
	return Config{
		TaxRate:               decimal.NewFromFloat(0.08),
		FreeShippingThreshold: decimal.NewFromInt(100),
		FlatShippingFee:       decimal.NewFromInt(15),
	}
}

// ExpressConfig mirrors the express checkout flow: 18% tax, empty carts ship
// free.
func ExpressConfig() Config {
	return Config{
		TaxRate:                 decimal.NewFromFloat(0.18),
		FreeShippingThreshold:   decimal.NewFromInt(100),
		FlatShippingFee:         decimal.NewFromInt(15),
		FreeShippingOnEmptyCart: true,
	}
}

// ConfigByName resolves a preset name from configuration. Unknown names fall
// back to the standard flow.
func ConfigByName(name string) Config {
	if name == "express" {
		return ExpressConfig()
	}
	return StandardConfig()
}
