// Package importer validates spreadsheet rows against the catalog and
// commits the valid ones in batches.
package importer

import (
	"strings"

	"github.com/safar/kasir-pos/internal/models"
	"github.com/safar/kasir-pos/internal/store"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusValid     Status = "valid"
	StatusInvalid   Status = "invalid"
	StatusDuplicate Status = "duplicate"
)

type Classified struct {
	Row     Row                `json:"row"`
	Status  Status             `json:"status"`
	Reason  string             `json:"reason,omitempty"`
	Product store.ProductInput `json:"-"`
}

type Summary struct {
	Total     int `json:"total"`
	Valid     int `json:"valid"`
	Invalid   int `json:"invalid"`
	Duplicate int `json:"duplicate"`
}

// Classify labels every row as valid, invalid or duplicate. It depends only
// on its arguments. A row is a duplicate when its name and size match a
// stored product or an earlier valid row, ignoring case and surrounding
// space. Invalid rows never claim a key.
func Classify(existing []models.Product, rows []Row) []Classified {
	seen := make(map[string]bool, len(existing)+len(rows))
	for _, p := range existing {
		seen[productKey(p.Name, p.Weight)] = true
	}

	out := make([]Classified, 0, len(rows))
	for _, row := range rows {
		c := Classified{Row: row}

		in, reason := parseRow(row)
		switch {
		case reason != "":
			c.Status = StatusInvalid
			c.Reason = reason
		case seen[productKey(row.Name, row.Weight)]:
			c.Status = StatusDuplicate
			c.Reason = "product with the same name and size already exists"
		default:
			c.Status = StatusValid
			c.Product = in
			seen[productKey(row.Name, row.Weight)] = true
		}
		out = append(out, c)
	}
	return out
}

func Summarize(classified []Classified) Summary {
	s := Summary{Total: len(classified)}
	for _, c := range classified {
		switch c.Status {
		case StatusValid:
			s.Valid++
		case StatusInvalid:
			s.Invalid++
		case StatusDuplicate:
			s.Duplicate++
		}
	}
	return s
}

func parseRow(row Row) (store.ProductInput, string) {
	name := strings.TrimSpace(row.Name)
	weight := strings.TrimSpace(row.Weight)
	if name == "" {
		return store.ProductInput{}, "name is required"
	}
	if weight == "" {
		return store.ProductInput{}, "size is required"
	}

	price, err := decimal.NewFromString(row.Price)
	if err != nil || !price.IsPositive() {
		return store.ProductInput{}, "price must be a positive number"
	}

	stock, err := decimal.NewFromString(row.Stock)
	if err != nil || stock.IsNegative() || !stock.IsInteger() {
		return store.ProductInput{}, "stock must be a whole number of zero or more"
	}

	return store.ProductInput{
		Name:   name,
		Weight: weight,
		Price:  price.Round(2),
		Stock:  int(stock.IntPart()),
	}, ""
}

func productKey(name, weight string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(weight))
}
