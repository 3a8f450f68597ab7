// Package exchange reads and writes the CSV documents the storefront
// trades with clients: the catalog export and cart imports.
package exchange

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/drstein77/luxestore/internal/cart"
	"github.com/drstein77/luxestore/internal/models"
)

var ErrMalformed = errors.New("malformed csv")

var (
	productHeader = []string{"id", "name", "category", "price", "in_stock", "description"}
	cartHeader    = []string{"product_id", "quantity"}
)

// WriteProducts writes products as CSV with a header row. Prices keep two decimals.
func WriteProducts(w io.Writer, products []models.Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(productHeader); err != nil {
		return err
	}

	for _, p := range products {
		record := []string{
			p.ID,
			p.Name,
			p.Category,
			p.Price.StringFixed(2),
			strconv.FormatBool(p.Available()),
			p.Description,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCartLines parses product_id,quantity rows. A leading header row is optional.
// Any bad row fails the whole document.
func ReadCartLines(r io.Reader) ([]models.CartLine, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(cartHeader)
	cr.TrimLeadingSpace = true

	lines := make([]models.CartLine, 0)
	for row := 1; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}

		if row == 1 && isHeader(record) {
			continue
		}

		line, err := parseLine(record)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, row, err)
		}
		lines = append(lines, line)
	}
}

func isHeader(record []string) bool {
	for i, name := range cartHeader {
		if !strings.EqualFold(strings.TrimSpace(record[i]), name) {
			return false
		}
	}
	return true
}

func parseLine(record []string) (models.CartLine, error) {
	id := strings.TrimSpace(record[0])
	if id == "" {
		return models.CartLine{}, errors.New("empty product id")
	}

	qty, err := strconv.Atoi(strings.TrimSpace(record[1]))
	if err != nil {
		return models.CartLine{}, fmt.Errorf("bad quantity %q", record[1])
	}
	if qty < 1 || qty > cart.MaxQuantity {
		return models.CartLine{}, fmt.Errorf("quantity %d is outside 1..%d", qty, cart.MaxQuantity)
	}

	return models.CartLine{ProductID: id, Quantity: qty}, nil
}
