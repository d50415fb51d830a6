package pdftext

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"tariff-advisor/internal/ptbr"
)

var (
	// ErrInstallationNotFound is returned when the installation has no folder.
	ErrInstallationNotFound = errors.New("pdftext: installation folder not found")
	// ErrNoInvoices is returned when no file falls inside the requested range.
	ErrNoInvoices = errors.New("pdftext: no invoices in range")
)

var invoiceFileName = regexp.MustCompile(`_(\w{3})-(\d{4})\.pdf$`)

// Document is one archived invoice PDF.
type Document struct {
	Path   string
	Period time.Time
}

// Archive lists invoice PDFs stored as <root>/<installation>/*_<MMM>-<YYYY>.pdf.
type Archive struct {
	root string
}

// NewArchive validates the archive root.
func NewArchive(root string) (*Archive, error) {
	if root == "" {
		return nil, errors.New("pdftext: empty archive root")
	}
	return &Archive{root: root}, nil
}

// List returns the installation's invoices whose period falls in [from, to],
// oldest first. The bounds are swapped when given in reverse order.
func (a *Archive) List(installation string, from, to time.Time) ([]Document, error) {
	if installation == "" || filepath.Base(installation) != installation {
		return nil, fmt.Errorf("pdftext: invalid installation %q", installation)
	}
	if to.Before(from) {
		from, to = to, from
	}
	dir := filepath.Join(a.root, installation)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrInstallationNotFound, installation)
	}
	if err != nil {
		return nil, err
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := invoiceFileName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		period, err := ptbr.ParsePeriod(m[1] + "-" + m[2])
		if err != nil {
			continue
		}
		if period.Before(from) || period.After(to) {
			continue
		}
		docs = append(docs, Document{Path: filepath.Join(dir, entry.Name()), Period: period})
	}
	if len(docs) == 0 {
		return nil, ErrNoInvoices
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].Period.Equal(docs[j].Period) {
			return docs[i].Path < docs[j].Path
		}
		return docs[i].Period.Before(docs[j].Period)
	})
	return docs, nil
}
