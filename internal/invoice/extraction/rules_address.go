package extraction

import (
	"regexp"
	"strings"

	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
)

// The customer block sits right above the second CNPJ on the page: the
// first CNPJ belongs to the utility.
var (
	cnpjPattern   = regexp.MustCompile(`(?i)CNPJ\s*:?\s*\d{2}\.?\d{3}\.?\d{3}/?\d{4}-?\d{2}`)
	streetPattern = regexp.MustCompile(`^(?:RUA|AVENIDA|RODOVIA|ESTRADA|TRAVESSA|PRACA|ALAMEDA|LARGO|VIA|BECO|LADEIRA|QUADRA|SERVIDAO|AV|ROD|EST|TV|PCA|AL|R)(?:\.|\b)`)
	cepPattern    = regexp.MustCompile(`\b\d{5}-?\d{3}\b`)
	datePattern   = regexp.MustCompile(`\b\d{2}/\d{2}/\d{2,4}\b`)
)

// boilerplate lists folded fragments of lines that never belong to the
// customer block.
var boilerplate = []string{
	"EDP", "DISTRIBUI", "ENERGIA S.A", "ESPIRITO SANTO CENTRAIS",
	"CLASSIFICACAO", "MODALIDADE", "SUBGRUPO", "TARIFA", "TENSAO",
	"INSCRICAO", "INSC.", "NOTA FISCAL", "CONTA DE ENERGIA", "SERIE",
	"DATA DE EMISSAO", "VENCIMENTO", "REFERENCIA", "COD. IDENT", "PAGINA",
}

const maxCustomerBlockLines = 8

// customerBlock returns the unit name and address recovered from the lines
// above the customer's CNPJ.
func customerBlock(text string) (unit, address string, ok bool) {
	all := lines(text)
	seen := 0
	marker := -1
	for i, line := range all {
		if cnpjPattern.MatchString(line) {
			seen++
			if seen == 2 {
				marker = i
				break
			}
		}
	}
	if marker < 0 {
		return "", "", false
	}

	var names, tail []string
	street := ""
	if prefix := strings.TrimSpace(cnpjPattern.Split(all[marker], 2)[0]); plausibleFragment(prefix) {
		names = append(names, collapseSpaces(prefix))
	}
	for i := marker - 1; i >= 0 && marker-i <= maxCustomerBlockLines; i-- {
		line := collapseSpaces(all[i])
		if !plausibleFragment(line) {
			continue
		}
		folded := ptbr.Fold(line)
		if streetPattern.MatchString(folded) {
			street = line
			break
		}
		if cepPattern.MatchString(line) {
			tail = append(tail, line)
			continue
		}
		names = append(names, line)
	}

	reverse(names)
	reverse(tail)
	unit = strings.Join(names, " ")
	if street != "" {
		address = strings.Join(append([]string{street}, tail...), " - ")
	}
	return unit, address, unit != "" || address != ""
}

func plausibleFragment(line string) bool {
	line = strings.TrimSpace(line)
	if len(line) < 3 || datePattern.MatchString(line) || cnpjPattern.MatchString(line) {
		return false
	}
	letters := 0
	for _, r := range line {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r > 0x7f {
			letters++
		}
	}
	if letters < 3 {
		return false
	}
	folded := ptbr.Fold(line)
	for _, fragment := range boilerplate {
		if strings.Contains(folded, fragment) {
			return false
		}
	}
	return true
}

func reverse(values []string) {
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
}

func customerBlockRule() Rule {
	return NewRule("customer_block", func(text string) (Patch, bool) {
		unit, address, ok := customerBlock(text)
		if !ok {
			return nil, false
		}
		return func(rec *invoice.Record) {
			id := identification(rec)
			if unit != "" {
				id.UnitName = invoice.String(unit)
			}
			if address != "" {
				id.Address = invoice.String(address)
			}
		}, true
	})
}
