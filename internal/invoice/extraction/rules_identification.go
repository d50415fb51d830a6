package extraction

import (
	"fmt"
	"regexp"
	"strings"

	invoice "tariff-advisor/internal/invoice/domain"
	"tariff-advisor/internal/ptbr"
)

var (
	installationPatterns = []*regexp.Regexp{
		re(`COD\.?\s*IDENT\.?\s*:?\s*(\d+)`),
		re(`Instala[çc][ãa]o\s*:?\s*(\d{5,})`),
	}
	customerPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b(0*\d{7,})\s*PAG`),
		re(`(?:N[ºo°]\s*(?:do\s+)?)?Cliente\s*:?\s*(\d{5,})`),
	}
	monthNamePattern = re(`\b(Janeiro|Fevereiro|Mar[çc]o|Abril|Maio|Junho|Julho|Agosto|Setembro|Outubro|Novembro|Dezembro)\s*/\s*(\d{4})\b`)
	monthAbbrPattern = regexp.MustCompile(`\b(JAN|FEV|MAR|ABR|MAI|JUN|JUL|AGO|SET|OUT|NOV|DEZ)/(\d{4})\b`)
	monthRefPattern  = re(`Refer[êe]ncia[^\n]*?(?:^|[^\d/])(\d{2})/(\d{4})\b`)

	subgroupPatterns = []*regexp.Regexp{
		re(`Classifica[çc][ãa]o\s*:?\s*(A[1-4]a?|AS|B[1-4])\b`),
		re(`Subgrupo\s*:?\s*(A[1-4]a?|AS|B[1-4])\b`),
		regexp.MustCompile(`\b(A[1-4]a?|B[1-4])\b`),
	}
	classPattern = regexp.MustCompile(`(PODER\s+P[UÚ]BLICO|COMERCIAL|INDUSTRIAL|RESIDENCIAL|RURAL|SERVI[CÇ]O\s+P[UÚ]BLICO|ILUMINA[CÇ][AÃ]O\s+P[UÚ]BLICA)(\s*-\s*[A-ZÀ-Ú]+(?: [A-ZÀ-Ú]+\b)*)?`)

	voltagePattern  = re(`Tens[ãa]o(?:\s+(?:Nominal|de\s+Fornecimento|Contratada))?\s*:?\s*` + num + `\s*(kV|V)\b`)
	modalityPattern = re(`(?:Modalidade(?:\s+Tarif[áa]ria)?|Tarifa\s+Hor[áa]ria|Tarifa)\s*:?\s*(?:HOR[ÁA]RIA\s+|Hor\.\s*)?(VERDE|AZUL|BRANCA|CONVENCIONAL)\b`)
	readingPatterns = []*regexp.Regexp{
		re(`Roteiro\s+de\s+leitura:[^\n]*?:\s*([0-3]\d/\d{2}/\d{4})\s*a\s*([0-3]\d/\d{2}/\d{4})`),
		re(`Leituras?[^\n]*?([0-3]\d/\d{2}/\d{4})\s*(?:a|à|até|-)\s*([0-3]\d/\d{2}/\d{4})`),
	}
)

func firstSubmatch(patterns []*regexp.Regexp, text string) []string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m
		}
	}
	return nil
}

func installationRule() Rule {
	return NewRule("installation_number", func(text string) (Patch, bool) {
		m := firstSubmatch(installationPatterns, text)
		if m == nil {
			return nil, false
		}
		return func(rec *invoice.Record) {
			identification(rec).InstallationNumber = invoice.String(m[1])
		}, true
	})
}

func customerRule() Rule {
	return NewRule("customer_number", func(text string) (Patch, bool) {
		m := firstSubmatch(customerPatterns, text)
		if m == nil {
			return nil, false
		}
		return func(rec *invoice.Record) {
			identification(rec).CustomerNumber = invoice.String(m[1])
		}, true
	})
}

func referenceMonthRule() Rule {
	return NewRule("reference_month", func(text string) (Patch, bool) {
		var month string
		if m := monthNamePattern.FindStringSubmatch(text); m != nil {
			if mm, ok := ptbr.MonthFromName(m[1]); ok {
				month = fmt.Sprintf("%02d/%s", int(mm), m[2])
			}
		}
		if month == "" {
			if m := monthAbbrPattern.FindStringSubmatch(text); m != nil {
				if t, err := ptbr.ParsePeriod(m[1] + "-" + m[2]); err == nil {
					month = t.Format("01/2006")
				}
			}
		}
		if month == "" {
			if m := monthRefPattern.FindStringSubmatch(text); m != nil {
				if _, err := ptbr.ParseReferenceMonth(m[1] + "/" + m[2]); err == nil {
					month = m[1] + "/" + m[2]
				}
			}
		}
		if month == "" {
			return nil, false
		}
		return func(rec *invoice.Record) {
			identification(rec).ReferenceMonth = invoice.String(month)
		}, true
	})
}

// tariffGroupRule reports the subgroup ("A4") and its group letter ("A").
func tariffGroupRule() Rule {
	return NewRule("tariff_group", func(text string) (Patch, bool) {
		m := firstSubmatch(subgroupPatterns, text)
		if m == nil {
			return nil, false
		}
		subgroup := strings.ToUpper(m[1])
		if strings.HasSuffix(subgroup, "A") && len(subgroup) == 3 {
			subgroup = subgroup[:2] + "a"
		}
		return func(rec *invoice.Record) {
			id := identification(rec)
			id.Subgroup = invoice.String(subgroup)
			id.TariffGroup = invoice.String(subgroup[:1])
		}, true
	})
}

func consumerClassRule() Rule {
	return NewRule("consumer_class", func(text string) (Patch, bool) {
		m := classPattern.FindStringSubmatch(text)
		if m == nil {
			return nil, false
		}
		class := collapseSpaces(m[0])
		return func(rec *invoice.Record) {
			identification(rec).ConsumerClass = invoice.String(class)
		}, true
	})
}

// voltageRule captures the nominal voltage and derives the supply tier.
func voltageRule() Rule {
	return NewRule("voltage", func(text string) (Patch, bool) {
		m := voltagePattern.FindStringSubmatch(text)
		if m == nil {
			return nil, false
		}
		value, err := ptbr.ParseNumber(m[1])
		if err != nil {
			return nil, false
		}
		unit := "V"
		if strings.EqualFold(m[2], "kV") {
			unit = "kV"
		}
		tier := VoltageTier(value, unit)
		return func(rec *invoice.Record) {
			id := identification(rec)
			id.Voltage = invoice.String(m[1])
			id.VoltageUnit = invoice.String(unit)
			id.VoltageTier = invoice.String(tier)
		}, true
	})
}

// Voltage tiers reported in nivel_tensao.
const (
	TierLow    = "baixa tensão"
	TierMedium = "média tensão"
	TierHigh   = "alta tensão"
)

// VoltageTier classifies a nominal voltage: up to 1 kV is low, below 69 kV
// is medium, anything above is high.
func VoltageTier(value float64, unit string) string {
	kv := value
	if unit != "kV" {
		kv = value / 1000
	}
	switch {
	case kv <= 1:
		return TierLow
	case kv < 69:
		return TierMedium
	default:
		return TierHigh
	}
}

func modalityRule() Rule {
	return NewRule("modality", func(text string) (Patch, bool) {
		m := modalityPattern.FindStringSubmatch(text)
		if m == nil {
			return nil, false
		}
		modality := strings.ToLower(ptbr.Fold(m[1]))
		return func(rec *invoice.Record) {
			identification(rec).Modality = invoice.String(modality)
		}, true
	})
}

func readingsRule() Rule {
	return NewRule("readings", func(text string) (Patch, bool) {
		m := firstSubmatch(readingPatterns, text)
		if m == nil {
			return nil, false
		}
		return func(rec *invoice.Record) {
			r := readings(rec)
			r.Start = invoice.String(m[1])
			r.End = invoice.String(m[2])
		}, true
	})
}
