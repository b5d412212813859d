package cart

import (
	cartdto "github.com/angelmondragon/storefront-core/api/controllers/cart/dto"
	cartsvc "github.com/angelmondragon/storefront-core/internal/cart"
	"github.com/angelmondragon/storefront-core/pkg/shopify"
	"github.com/shopspring/decimal"
)

func newCartView(snap cartsvc.Snapshot) cartdto.Cart {
	view := cartdto.Cart{
		DeviceID:   snap.DeviceID,
		State:      snap.State.String(),
		CartID:     snap.CartID,
		Stale:      snap.Stale,
		Lines:      []cartdto.CartLine{},
		LocalTotal: snap.LocalTotal,
	}
	if snap.Cart == nil {
		return view
	}

	view.CheckoutURL = snap.Cart.CheckoutURL
	if !snap.Cart.EstimatedCost.Amount.IsZero() || snap.Cart.EstimatedCost.CurrencyCode != "" {
		estimated := newMoney(snap.Cart.EstimatedCost)
		view.EstimatedTotal = &estimated
	}

	for _, line := range snap.Cart.Lines {
		qty := snap.Quantity(line)
		view.ItemCount += qty
		view.Lines = append(view.Lines, newCartLine(line, qty))
	}
	return view
}

func newCartLine(line shopify.CartLine, qty int) cartdto.CartLine {
	merch := line.Merchandise
	out := cartdto.CartLine{
		ID:             line.ID,
		VariantID:      merch.ID,
		Title:          merch.Title,
		ProductTitle:   merch.Product.Title,
		Quantity:       qty,
		RemoteQuantity: line.Quantity,
		Price:          newMoney(merch.Price),
		LineTotal: cartdto.Money{
			Amount:       merch.Price.Amount.Mul(decimal.NewFromInt(int64(qty))),
			CurrencyCode: merch.Price.CurrencyCode,
		},
	}
	if len(merch.Product.Images) > 0 {
		out.ImageURL = merch.Product.Images[0].URL
	}
	if merch.CompareAtPrice != nil {
		compare := newMoney(*merch.CompareAtPrice)
		out.CompareAtPrice = &compare
	}
	return out
}

func newMoney(m shopify.Money) cartdto.Money {
	return cartdto.Money{Amount: m.Amount, CurrencyCode: m.CurrencyCode}
}
