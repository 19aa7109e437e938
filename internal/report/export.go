package report

import (
	"bufio"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var columns = []string{"Nama Produk", "Berat/Ukuran", "Harga Satuan", "Qty Terjual", "Total"}

// Header is the block printed above the data rows of every export.
type Header struct {
	Title      string
	User       string
	Range      DateRange
	ExportedAt time.Time
}

func (h Header) title() string {
	if strings.TrimSpace(h.Title) == "" {
		return "Laporan Penjualan"
	}
	return h.Title
}

func (h Header) exportedAt() string {
	return h.ExportedAt.Format("02/01/2006 15.04.05")
}

// WriteCSV writes the header block, a blank line, the column row and one
// line per summary row. Text fields are always quoted.
func WriteCSV(w io.Writer, h Header, s Summary) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "%s\n", h.title())
	fmt.Fprintf(bw, "User: %s\n", h.User)
	if !h.Range.IsOpen() {
		fmt.Fprintf(bw, "Periode: %s\n", h.Range.Label())
	}
	fmt.Fprintf(bw, "Tanggal Export: %s\n\n", h.exportedAt())

	fmt.Fprintf(bw, "%s\n", strings.Join(columns, ","))
	for _, row := range s.Rows {
		fmt.Fprintf(bw, "%s,%s,%s,%d,%s\n",
			quote(row.Name), quote(row.Weight), row.Price.String(), row.Quantity, row.Revenue.String())
	}

	return bw.Flush()
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

//go:embed print.html.tmpl
var printTemplate string

var printTmpl = template.Must(template.New("print").Funcs(template.FuncMap{
	"rupiah": FormatRupiah,
}).Parse(printTemplate))

type printView struct {
	Title      string
	User       string
	Period     string
	ExportedAt string
	Columns    []string
	Summary    Summary
}

// WriteHTML renders a printable document with a grand total row.
func WriteHTML(w io.Writer, h Header, s Summary) error {
	view := printView{
		Title:      h.title(),
		User:       h.User,
		ExportedAt: h.exportedAt(),
		Columns:    columns,
		Summary:    s,
	}
	if !h.Range.IsOpen() {
		view.Period = h.Range.Label()
	}
	return printTmpl.Execute(w, view)
}

// FormatRupiah formats an amount as "Rp 1.234.567" with a ",50" style
// fraction only when there is one.
func FormatRupiah(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	whole := d.Truncate(0)
	digits := whole.String()
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}

	out := "Rp " + sign + b.String()
	if frac := d.Sub(whole); !frac.IsZero() {
		out += fmt.Sprintf(",%02d", frac.Shift(2).IntPart())
	}
	return out
}
