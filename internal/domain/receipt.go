package domain

import (
	"github.com/shopspring/decimal"
)

// Receipt is the merged view of all package receipts at completion
type Receipt struct {
	Items     map[string]int
	Counted   map[string]int
	Returned  map[string]int
	Serials   map[string][]string
	UnitCosts map[string]decimal.Decimal
}

// Receipt merges the tracking receipt of the order.
//
// Shipped quantities default to the ordered items. Counted quantities
// default to shipped minus returned. Serials prefer the counted lines, then
// the backup set, then the shipped lines.
func (o *Order) Receipt() *Receipt {
	r := &Receipt{
		Items:     make(map[string]int),
		Counted:   make(map[string]int),
		Returned:  make(map[string]int),
		Serials:   make(map[string][]string),
		UnitCosts: make(map[string]decimal.Decimal),
	}

	for _, sku := range o.SKUs() {
		if n := o.Meta.ReturnDetails.ReturnedQuantity(sku); n > 0 {
			r.Returned[sku] = n
		}
	}

	countedSerials := make(map[string][]string)
	shippedSerials := make(map[string][]string)
	hasShipped, hasCounted := false, false

	if tr := o.Meta.TrackingReceipt; tr != nil {
		for _, pkg := range tr.Packages {
			for _, line := range pkg.Items {
				hasShipped = true
				r.Items[line.SKU] += line.Quantity
				shippedSerials[line.SKU] = append(shippedSerials[line.SKU], line.Serials...)
				if line.UnitCost != nil {
					r.UnitCosts[line.SKU] = *line.UnitCost
				}
			}
			for _, line := range pkg.CountedItems {
				hasCounted = true
				r.Counted[line.SKU] += line.Quantity
				countedSerials[line.SKU] = append(countedSerials[line.SKU], line.Serials...)
				if line.UnitCost != nil {
					r.UnitCosts[line.SKU] = *line.UnitCost
				}
			}
		}
	}

	if !hasShipped {
		for _, item := range o.Items {
			r.Items[item.SKU] += item.Quantity
		}
	}
	if !hasCounted {
		for sku, shipped := range r.Items {
			r.Counted[sku] = shipped - r.Returned[sku]
		}
	}

	var backup map[string][]string
	if o.Meta.TrackingReceipt != nil {
		backup = o.Meta.TrackingReceipt.BackupSerials
	}
	for _, sku := range o.SKUs() {
		switch {
		case len(countedSerials[sku]) > 0:
			r.Serials[sku] = countedSerials[sku]
		case len(backup[sku]) > 0:
			r.Serials[sku] = backup[sku]
		case len(shippedSerials[sku]) > 0:
			r.Serials[sku] = shippedSerials[sku]
		}
	}

	return r
}

// Shipped returns the shipped quantity of a SKU
func (r *Receipt) Shipped(sku string) int {
	return r.Items[sku]
}

// ShippedNet returns shipped minus returned
func (r *Receipt) ShippedNet(sku string) int {
	return r.Items[sku] - r.Returned[sku]
}

// CountedQuantity returns the counted quantity of a SKU
func (r *Receipt) CountedQuantity(sku string) int {
	return r.Counted[sku]
}

// Variance returns counted minus shipped net of returns
func (r *Receipt) Variance(sku string) int {
	return r.Counted[sku] - r.ShippedNet(sku)
}

// UnitCost returns the invoice unit cost when the receipt carries one
func (r *Receipt) UnitCost(sku string) (decimal.Decimal, bool) {
	cost, ok := r.UnitCosts[sku]
	return cost, ok
}
