// Package report turns stored transactions into per-product sales summaries
// and renders them for export.
package report

import (
	"sort"
	"strings"
	"time"

	"github.com/safar/kasir-pos/internal/apperr"
	"github.com/safar/kasir-pos/internal/models"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates in Location. A zero
// Start or End leaves that side open.
type DateRange struct {
	Start    time.Time
	End      time.Time
	Location *time.Location
}

// ParseDateRange reads YYYY-MM-DD bounds; either may be empty.
func ParseDateRange(start, end string, loc *time.Location) (DateRange, error) {
	if loc == nil {
		loc = time.Local
	}
	r := DateRange{Location: loc}

	var err error
	if start != "" {
		if r.Start, err = time.ParseInLocation(dateLayout, start, loc); err != nil {
			return DateRange{}, apperr.Validationf("invalid start date %q", start)
		}
	}
	if end != "" {
		if r.End, err = time.ParseInLocation(dateLayout, end, loc); err != nil {
			return DateRange{}, apperr.Validationf("invalid end date %q", end)
		}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return DateRange{}, apperr.Validation("end date must not be before start date")
	}
	return r, nil
}

func (r DateRange) IsOpen() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains compares by calendar date only; time of day is ignored.
func (r DateRange) Contains(t time.Time) bool {
	day := r.day(t)
	if !r.Start.IsZero() && day.Before(r.day(r.Start)) {
		return false
	}
	if !r.End.IsZero() && day.After(r.day(r.End)) {
		return false
	}
	return true
}

func (r DateRange) day(t time.Time) time.Time {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Label renders the period the way the export headers show it.
func (r DateRange) Label() string {
	from, to := "Awal", "Sekarang"
	if !r.Start.IsZero() {
		from = r.Start.Format(dateLayout)
	}
	if !r.End.IsZero() {
		to = r.End.Format(dateLayout)
	}
	return from + " - " + to
}

type SortField string

const (
	SortByName     SortField = "name"
	SortByWeight   SortField = "weight"
	SortByPrice    SortField = "price"
	SortByQuantity SortField = "quantity"
	SortByRevenue  SortField = "revenue"
)

type SortSpec struct {
	Field SortField
	Desc  bool
}

func ParseSort(field, direction string) (SortSpec, error) {
	spec := SortSpec{Field: SortField(field)}
	switch spec.Field {
	case "":
		spec.Field = SortByName
	case SortByName, SortByWeight, SortByPrice, SortByQuantity, SortByRevenue:
	default:
		return SortSpec{}, apperr.Validationf("unknown sort field %q", field)
	}

	switch strings.ToLower(direction) {
	case "", "asc":
	case "desc":
		spec.Desc = true
	default:
		return SortSpec{}, apperr.Validationf("unknown sort direction %q", direction)
	}
	return spec, nil
}

// Row is one product's sales in the period. Weight and Price come from the
// first line item seen for the product name.
type Row struct {
	Name     string          `json:"name"`
	Weight   string          `json:"weight"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	Revenue  decimal.Decimal `json:"revenue"`
}

type Summary struct {
	Rows         []Row           `json:"rows"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	ItemsSold    int             `json:"items_sold"`
	Transactions int             `json:"transactions"`
}

// Aggregate groups the line items of transactions inside r by product name
// and sorts the result. Ties keep first-seen order.
func Aggregate(txns []models.Transaction, r DateRange, spec SortSpec) Summary {
	summary := Summary{Rows: []Row{}, TotalRevenue: decimal.Zero}
	index := make(map[string]int)

	for _, txn := range txns {
		if !r.Contains(txn.CreatedAt) {
			continue
		}
		summary.Transactions++

		for _, item := range txn.Items {
			i, ok := index[item.ProductName]
			if !ok {
				i = len(summary.Rows)
				index[item.ProductName] = i
				summary.Rows = append(summary.Rows, Row{
					Name:    item.ProductName,
					Weight:  item.ProductWeight,
					Price:   item.Price,
					Revenue: decimal.Zero,
				})
			}
			summary.Rows[i].Quantity += item.Quantity
			summary.Rows[i].Revenue = summary.Rows[i].Revenue.Add(item.Subtotal)
			summary.TotalRevenue = summary.TotalRevenue.Add(item.Subtotal)
			summary.ItemsSold += item.Quantity
		}
	}

	sortRows(summary.Rows, spec)
	return summary
}

func sortRows(rows []Row, spec SortSpec) {
	sort.SliceStable(rows, func(i, j int) bool {
		c := compareRows(rows[i], rows[j], spec.Field)
		if spec.Desc {
			return c > 0
		}
		return c < 0
	})
}

func compareRows(a, b Row, field SortField) int {
	switch field {
	case SortByWeight:
		return strings.Compare(strings.ToLower(a.Weight), strings.ToLower(b.Weight))
	case SortByPrice:
		return a.Price.Cmp(b.Price)
	case SortByQuantity:
		switch {
		case a.Quantity < b.Quantity:
			return -1
		case a.Quantity > b.Quantity:
			return 1
		}
		return 0
	case SortByRevenue:
		return a.Revenue.Cmp(b.Revenue)
	default:
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}
}
