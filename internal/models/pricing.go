package models

// EffectiveUnitPrice is the price captured into cart-line and order-item
// snapshots. A sale is a percentage discount off the list price; a discount
// outside (0, 100] is ignored rather than producing a negative price.
func EffectiveUnitPrice(p *Product) float64 {
	if p.IsOnSale && p.Discount > 0 && p.Discount <= 100 {
		return p.Price - p.Price*p.Discount/100
	}
	return p.Price
}
