package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/facturaIA/invoice-integrity-service/internal/apperrors"
	"github.com/facturaIA/invoice-integrity-service/internal/models"
)

// loadInvoice reads one invoice object from a JSON file
func loadInvoice(path string) (*models.InvoiceRecord, error) {
	invoices, err := readInvoices(path)
	if err != nil {
		return nil, err
	}
	if len(invoices) != 1 {
		return nil, apperrors.Newf(apperrors.CodeInvalidInput, "%s: expected one invoice, found %d", path, len(invoices))
	}
	return &invoices[0], nil
}

// loadCorpus reads every invoice under path. A directory contributes all of
// its *.json files in name order; each file holds an object or an array.
func loadCorpus(path string) ([]models.InvoiceRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "corpus not readable")
	}
	if !info.IsDir() {
		return readInvoices(path)
	}

	files, err := filepath.Glob(filepath.Join(path, "*.json"))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "bad corpus path")
	}
	sort.Strings(files)

	var corpus []models.InvoiceRecord
	for _, f := range files {
		invoices, err := readInvoices(f)
		if err != nil {
			return nil, err
		}
		corpus = append(corpus, invoices...)
	}
	return corpus, nil
}

func readInvoices(path string) ([]models.InvoiceRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, "failed to read invoice file")
	}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var invoices []models.InvoiceRecord
		if err := json.Unmarshal(data, &invoices); err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, fmt.Sprintf("%s: invalid invoice JSON", path))
		}
		stem := fileStem(path)
		for i := range invoices {
			if invoices[i].ID == "" {
				invoices[i].ID = fmt.Sprintf("%s-%d", stem, i+1)
			}
		}
		return invoices, nil
	}

	var inv models.InvoiceRecord
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidInput, fmt.Sprintf("%s: invalid invoice JSON", path))
	}
	if inv.ID == "" {
		inv.ID = fileStem(path)
	}
	return []models.InvoiceRecord{inv}, nil
}

// fileStem names invoices that carry no id, so the same file read as input
// and as corpus is still recognised as one invoice
func fileStem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
