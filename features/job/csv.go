package job

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

var requiredColumns = []string{"S. No.", "Product Name", "Input Image Urls"}

// ValidationError marks user-fixable problems with the uploaded CSV, as
// opposed to storage or queue failures.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ParseCSV validates an uploaded CSV and converts it into product records.
// Expected columns: "S. No." (numeric), "Product Name" (non-empty),
// "Input Image Urls" (comma-separated, at least one URL per row).
func ParseCSV(r io.Reader) ([]Product, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, validationErrorf("csv file is empty")
	}
	if err != nil {
		return nil, validationErrorf("error processing csv file: %v", err)
	}

	idx := make(map[string]int, len(header))
	for i, col := range header {
		idx[strings.TrimSpace(col)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, validationErrorf("missing required column: %s", col)
		}
	}

	var products []Product
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, validationErrorf("error processing csv file: %v", err)
		}

		serial, err := strconv.Atoi(strings.TrimSpace(record[idx["S. No."]]))
		if err != nil {
			return nil, validationErrorf("serial numbers must be numeric")
		}

		name := strings.TrimSpace(record[idx["Product Name"]])
		if name == "" {
			return nil, validationErrorf("product names cannot be empty")
		}

		var urls []string
		for _, u := range strings.Split(record[idx["Input Image Urls"]], ",") {
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) == 0 {
			return nil, validationErrorf("no valid image urls for product: %s", name)
		}

		products = append(products, Product{
			SerialNumber: serial,
			Name:         name,
			InputURLs:    urls,
		})
	}

	if len(products) == 0 {
		return nil, validationErrorf("csv file is empty")
	}
	return products, nil
}

// WriteCSV renders the processed products back out, mirroring the input layout
// plus an "Output Image Urls" column. Failed inputs are simply absent from the
// output list.
func WriteCSV(w io.Writer, products []Product) error {
	writer := csv.NewWriter(w)

	if err := writer.Write([]string{"S. No.", "Product Name", "Input Image Urls", "Output Image Urls"}); err != nil {
		return err
	}
	for _, p := range products {
		record := []string{
			strconv.Itoa(p.SerialNumber),
			p.Name,
			strings.Join(p.InputURLs, ","),
			strings.Join(p.OutputURLs, ","),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
