package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/invoice/extraction"
	"tariff-advisor/internal/invoice/infrastructure/pdftext"
)

type config struct {
	policy   string
	out      string
	textOnly bool
	files    []string
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	policy, err := extraction.ParseContractedPolicy(cfg.policy)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	extractor := extraction.NewExtractor(extraction.WithContractedPolicy(policy))
	reader := pdftext.NewReader()

	var out io.Writer = os.Stdout
	if cfg.out != "" {
		f, err := os.Create(cfg.out)
		if err != nil {
			fmt.Fprintln(os.Stderr, "create output:", err)
			os.Exit(2)
		}
		defer f.Close()
		out = f
	}

	status := 0
	var records []invoice.Record
	var texts []string
	for _, path := range cfg.files {
		text, err := readText(reader, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			status = 1
			continue
		}
		if cfg.textOnly {
			texts = append(texts, text)
			continue
		}
		records = append(records, extractor.Extract(text))
	}

	if cfg.textOnly {
		_, err = io.WriteString(out, strings.Join(texts, "\f\n"))
	} else {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		err = enc.Encode(records)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "write output:", err)
		os.Exit(2)
	}
	os.Exit(status)
}

// readText returns the PDF text layer, or the file itself for .txt inputs.
func readText(reader *pdftext.Reader, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".txt") {
		data, err := os.ReadFile(path)
		return string(data), err
	}
	return reader.ReadFile(path)
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.policy, "contracted-policy", getenvDefault("EXTRACTION_CONTRACTED_POLICY", ""), "placement of a lone contracted demand: fora_ponta, ambos or generica")
	flag.StringVar(&cfg.out, "out", "", "output file (default stdout)")
	flag.BoolVar(&cfg.textOnly, "text", false, "print the extracted text instead of records")
	flag.Parse()

	cfg.files = flag.Args()
	if len(cfg.files) == 0 {
		return cfg, errors.New("usage: invoice-extract [flags] invoice.pdf...")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
