package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"shopsy-inventory-api/internal/model"
	"shopsy-inventory-api/internal/service"
)

type catalogueItem struct {
	ProductID string
	Name      string
	Quantity  int
}

// catalogue is the demo storefront's initial stock.
var catalogue = []catalogueItem{
	{ProductID: "classic-white-t-shirt", Name: "Classic White T-Shirt", Quantity: 25},
	{ProductID: "denim-jacket", Name: "Denim Jacket", Quantity: 10},
	{ProductID: "beige-chino-shorts", Name: "Beige Chino Shorts", Quantity: 12},
	{ProductID: "skinny-blue-jeans", Name: "Skinny Blue Jeans", Quantity: 20},
	{ProductID: "black-womens-top", Name: "Black Womens Top", Quantity: 18},
	{ProductID: "summer-dress", Name: "Summer Dress", Quantity: 8},
}

// seedCatalogue creates a record for every catalogue product that has none.
// It is safe to run repeatedly.
func seedCatalogue(ctx context.Context, svc *service.StockService, threshold int, out io.Writer) (int, error) {
	created := 0
	for _, item := range catalogue {
		rec, err := svc.CreateRecord(ctx, item.ProductID, item.Quantity, threshold)
		switch {
		case errors.Is(err, model.ErrConflict):
			fmt.Fprintf(out, "exists   %-24s %s\n", item.ProductID, item.Name)
		case err != nil:
			return created, fmt.Errorf("seed %s: %w", item.ProductID, err)
		default:
			created++
			fmt.Fprintf(out, "created  %-24s %s (%d available, %s)\n", item.ProductID, item.Name, rec.QuantityAvailable, rec.Status)
		}
	}
	return created, nil
}
