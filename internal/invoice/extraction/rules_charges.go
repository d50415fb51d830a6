package extraction

import (
	"regexp"
	"strings"

	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
)

var (
	// amount, rate, base, name
	contributionRow = re(num + `[ \t]+` + num + `[ \t]+` + num + `[ \t]+(PIS(?:/PASEP)?|COFINS)\b`)
	// name, base, rate, amount
	icmsRow = re(`\bICMS\b[^\d\n]*?` + num + `[ \t]+` + num + `%?[ \t]+` + num)

	tariffLine = re(`\b(TUSD|TE)\s*-\s*Cons(?:\w+)?\s+Ativ[oa]\s+(` + peakLabel + `|` + offPeakLabel + `|` + interLabel + `)\s+kWh\s+` + num + `\s+` + num + `\s+` + snum)

	totalsRow     = re(`\bTOTAL\s+` + num + `\s+` + num)
	totalToPayRow = re(`\bTOTAL\s+A\s+PAGAR\s*:?\s*(?:R\$)?\s*` + num)
)

func contributionTaxRule() Rule {
	return NewRule("taxes_pis_cofins", func(text string) (Patch, bool) {
		var taxes []invoice.Tax
		for _, m := range contributionRow.FindAllStringSubmatch(text, -1) {
			name := invoice.TaxPIS
			if strings.EqualFold(m[4], invoice.TaxCOFINS) {
				name = invoice.TaxCOFINS
			}
			taxes = append(taxes, invoice.Tax{
				Name:   name,
				Amount: ptbr.ParseNumberPtr(m[1]),
				Rate:   ptbr.ParseNumberPtr(m[2]),
				Base:   ptbr.ParseNumberPtr(m[3]),
			})
		}
		if len(taxes) == 0 {
			return nil, false
		}
		return func(rec *invoice.Record) { rec.Taxes = append(rec.Taxes, taxes...) }, true
	})
}

// icmsTaxRule reads ICMS from its own table; rows whose rate is not a
// percentage are skipped.
func icmsTaxRule() Rule {
	return NewRule("taxes_icms", func(text string) (Patch, bool) {
		for _, m := range icmsRow.FindAllStringSubmatch(text, -1) {
			rate := ptbr.ParseNumberPtr(m[2])
			if rate == nil || *rate < 0 || *rate > 100 {
				continue
			}
			tax := invoice.Tax{
				Name:   invoice.TaxICMS,
				Base:   ptbr.ParseNumberPtr(m[1]),
				Rate:   rate,
				Amount: ptbr.ParseNumberPtr(m[3]),
			}
			return func(rec *invoice.Record) { rec.Taxes = append(rec.Taxes, tax) }, true
		}
		return nil, false
	})
}

func tariffLinesRule() Rule {
	return NewRule("tariff_lines", func(text string) (Patch, bool) {
		var out []invoice.TariffLine
		for _, m := range tariffLine.FindAllStringSubmatch(text, -1) {
			out = append(out, invoice.TariffLine{
				Description: strings.ToUpper(m[1]),
				Period:      normalizePeriod(m[2]),
				Quantity:    ptbr.ParseNumberPtr(m[3]),
				UnitPrice:   ptbr.ParseNumberPtr(m[4]),
				Total:       ptbr.ParseNumberPtr(m[5]),
			})
		}
		if len(out) == 0 {
			return nil, false
		}
		return func(rec *invoice.Record) { rec.TariffLines = out }, true
	})
}

func totalsRule() Rule {
	return NewRule("totals", func(text string) (Patch, bool) {
		if m := totalsRow.FindStringSubmatch(text); m != nil {
			totals := invoice.Totals{
				InvoiceTotal: ptbr.ParseNumberPtr(m[1]),
				Subtotal:     ptbr.ParseNumberPtr(m[2]),
			}
			return func(rec *invoice.Record) { rec.Totals = &totals }, true
		}
		total, ok := firstNumber(totalToPayRow, text)
		if !ok {
			return nil, false
		}
		return func(rec *invoice.Record) {
			rec.Totals = &invoice.Totals{InvoiceTotal: total}
		}, true
	})
}

// componentVocabulary lists the descriptions recognised as extra components.
var componentVocabulary = []*regexp.Regexp{
	re(`Demanda\s+N[ãa]o\s+Utilizada`),
	re(`Demanda\s+(?:de\s+)?Ultrapassagem`),
	re(`Bandeira`),
	re(`Ilum(?:\.|ina[çc][ãa]o)?\s*P[úu]b`),
	re(`(?:\bERE\b\s*-?\s*)?Energia\s+Reativa\s+Excedente|\bUFER\b`),
	re(`Imposto\s+de\s+Renda|\bIRRF\b|Reten[çc][ãa]o\s+(?:de\s+)?IR\b`),
	re(`\bJuros\b`),
	re(`\bMulta\b`),
	re(`Tarifa\s+Postal`),
}

var unitTokens = map[string]bool{
	"KWH": true, "KW": true, "KVARH": true, "KVAR": true, "UN": true,
	"R$": true, "%": true, "QTD": true,
}

// componentLine splits a vocabulary line into its component. Lines carry
// quantity, unit rate and total, optionally followed by the withheld-tax
// column; lines printing only a value (or a value and its withheld tax)
// are accepted too.
func componentLine(line string) (invoice.Component, bool) {
	matched := false
	for _, term := range componentVocabulary {
		if term.MatchString(line) {
			matched = true
			break
		}
	}
	if !matched {
		return invoice.Component{}, false
	}
	prefix, nums := trailingNumbers(line)
	if len(nums) > 4 {
		prefix = strings.Join(append([]string{prefix}, nums[:len(nums)-4]...), " ")
		nums = nums[len(nums)-4:]
	}
	c := invoice.Component{Description: componentDescription(prefix)}
	if c.Description == "" {
		return invoice.Component{}, false
	}
	switch len(nums) {
	case 4:
		c.Quantity = ptbr.ParseNumberPtr(nums[0])
		c.UnitPrice = ptbr.ParseNumberPtr(nums[1])
		c.Total = ptbr.ParseNumberPtr(nums[2])
		c.Withheld = ptbr.ParseNumberPtr(nums[3])
	case 3:
		c.Quantity = ptbr.ParseNumberPtr(nums[0])
		c.UnitPrice = ptbr.ParseNumberPtr(nums[1])
		c.Total = ptbr.ParseNumberPtr(nums[2])
	case 2:
		c.Total = ptbr.ParseNumberPtr(nums[0])
		c.Withheld = ptbr.ParseNumberPtr(nums[1])
	case 1:
		c.Total = ptbr.ParseNumberPtr(nums[0])
	default:
		return invoice.Component{}, false
	}
	if c.Total == nil {
		return invoice.Component{}, false
	}
	return c, true
}

func componentDescription(prefix string) string {
	fields := strings.Fields(prefix)
	for len(fields) > 0 && unitTokens[strings.ToUpper(fields[len(fields)-1])] {
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

func extraComponentsRule() Rule {
	return NewRule("extra_components", func(text string) (Patch, bool) {
		var out []invoice.Component
		for _, line := range lines(text) {
			if c, ok := componentLine(line); ok {
				out = append(out, c)
			}
		}
		if len(out) == 0 {
			return nil, false
		}
		return func(rec *invoice.Record) { rec.ExtraComponents = out }, true
	})
}

// DefaultRules is the registry used by NewExtractor.
func DefaultRules(policy ContractedPolicy) []Rule {
	rules := []Rule{
		installationRule(),
		customerRule(),
		referenceMonthRule(),
		tariffGroupRule(),
		consumerClassRule(),
		voltageRule(),
		modalityRule(),
		customerBlockRule(),
		readingsRule(),
	}
	rules = append(rules, consumptionRules()...)
	return append(rules,
		contractedRule(policy),
		maximumDemandRule(),
		dmcrRule(),
		billedDemandRule(),
		reactiveRule(),
		contributionTaxRule(),
		icmsTaxRule(),
		tariffLinesRule(),
		totalsRule(),
		extraComponentsRule(),
	)
}
