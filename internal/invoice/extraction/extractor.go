package extraction

import (
	"fmt"
	"io"
	"log"
	"strings"

	invoice "tariff-advisor/internal/invoice/domain"
)

// Patch writes the values a rule recovered into the record.
type Patch func(rec *invoice.Record)

// Rule recovers one field or a tightly related field group from invoice text.
// Extract must not mutate shared state; it reports ok=false on a miss.
type Rule interface {
	Name() string
	Extract(text string) (Patch, bool)
}

type ruleFunc struct {
	name string
	fn   func(text string) (Patch, bool)
}

func (r ruleFunc) Name() string                      { return r.name }
func (r ruleFunc) Extract(text string) (Patch, bool) { return r.fn(text) }

// NewRule adapts a function into a Rule.
func NewRule(name string, fn func(text string) (Patch, bool)) Rule {
	return ruleFunc{name: name, fn: fn}
}

// RuleObserver receives one outcome per rule per extraction.
type RuleObserver interface {
	ObserveRule(rule string, hit bool)
}

// RuleObserverFunc adapts a function into a RuleObserver.
type RuleObserverFunc func(rule string, hit bool)

// ObserveRule calls f.
func (f RuleObserverFunc) ObserveRule(rule string, hit bool) { f(rule, hit) }

// ContractedPolicy decides where a generic "Demanda Contratada" value lands
// when the invoice has no peak/off-peak split.
type ContractedPolicy string

const (
	// GenericAsOffPeak copies the generic value into the off-peak slot.
	GenericAsOffPeak ContractedPolicy = "fora_ponta"
	// GenericAsBoth copies the generic value into both slots.
	GenericAsBoth ContractedPolicy = "ambos"
	// GenericOnly keeps the value only in contratada_kw.
	GenericOnly ContractedPolicy = "generica"
)

// ParseContractedPolicy validates a policy name, defaulting to GenericAsOffPeak.
func ParseContractedPolicy(raw string) (ContractedPolicy, error) {
	switch ContractedPolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", GenericAsOffPeak:
		return GenericAsOffPeak, nil
	case GenericAsBoth:
		return GenericAsBoth, nil
	case GenericOnly:
		return GenericOnly, nil
	}
	return "", fmt.Errorf("extraction: unknown contracted demand policy %q", raw)
}

// Extractor runs the rule registry over invoice text.
type Extractor struct {
	rules    []Rule
	logger   *log.Logger
	observer RuleObserver
	policy   ContractedPolicy
}

// Option configures the extractor.
type Option func(*Extractor)

// WithLogger sets the logger used for recovered rule failures.
func WithLogger(logger *log.Logger) Option {
	return func(e *Extractor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver sets the rule outcome observer.
func WithObserver(observer RuleObserver) Option {
	return func(e *Extractor) {
		e.observer = observer
	}
}

// WithContractedPolicy overrides the generic contracted demand policy.
func WithContractedPolicy(policy ContractedPolicy) Option {
	return func(e *Extractor) {
		if policy != "" {
			e.policy = policy
		}
	}
}

// WithRules replaces the default registry.
func WithRules(rules ...Rule) Option {
	return func(e *Extractor) {
		e.rules = rules
	}
}

// NewExtractor builds an extractor with the default rule registry.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		logger: log.New(io.Discard, "", 0),
		policy: GenericAsOffPeak,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rules == nil {
		e.rules = DefaultRules(e.policy)
	}
	return e
}

// RuleNames lists the registry in execution order.
func (e *Extractor) RuleNames() []string {
	names := make([]string, 0, len(e.rules))
	for _, r := range e.rules {
		names = append(names, r.Name())
	}
	return names
}

// Extract converts invoice text into a record. It never fails: a rule that
// misses or panics, while matching or while patching, leaves its fields
// absent and the remaining rules still run.
func (e *Extractor) Extract(text string) invoice.Record {
	text = normalizeText(text)
	var rec invoice.Record
	for _, rule := range e.rules {
		next, ok := e.run(rule, text, rec)
		if ok {
			rec = next
		}
		if e.observer != nil {
			e.observer.ObserveRule(rule.Name(), ok)
		}
	}
	finalize(&rec)
	return rec
}

// run matches rule and applies its patch to a copy of rec; a panic in
// either step discards the copy.
func (e *Extractor) run(rule Rule, text string, rec invoice.Record) (next invoice.Record, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("extraction rule panic: rule=%s err=%v", rule.Name(), r)
			next, ok = invoice.Record{}, false
		}
	}()
	patch, ok := rule.Extract(text)
	if !ok {
		return rec, false
	}
	next = cloneRecord(rec)
	if patch != nil {
		patch(&next)
	}
	return next, true
}

// cloneRecord copies the nested structs rules write through, so a patch that
// panics halfway cannot leave partial writes in the record being built.
func cloneRecord(rec invoice.Record) invoice.Record {
	if rec.Identification != nil {
		id := *rec.Identification
		rec.Identification = &id
	}
	if rec.Readings != nil {
		r := *rec.Readings
		rec.Readings = &r
	}
	if rec.Demand != nil {
		d := *rec.Demand
		rec.Demand = &d
	}
	if rec.ReactiveEnergy != nil {
		r := *rec.ReactiveEnergy
		if r.Excess != nil {
			x := *r.Excess
			r.Excess = &x
		}
		rec.ReactiveEnergy = &r
	}
	if rec.Totals != nil {
		t := *rec.Totals
		rec.Totals = &t
	}
	rec.Taxes = append([]invoice.Tax(nil), rec.Taxes...)
	return rec
}

func normalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.ReplaceAll(text, " ", " ")
}

// finalize derives computed fields once every rule has run.
func finalize(rec *invoice.Record) {
	c := &rec.Consumption
	if c.PeakKWh != nil && c.OffPeakKWh != nil {
		c.TotalKWh = invoice.Float(*c.PeakKWh + *c.OffPeakKWh)
	} else {
		c.TotalKWh = nil
	}
	rec.Taxes = dedupeTaxes(rec.Taxes)

	if rec.Identification != nil && *rec.Identification == (invoice.Identification{}) {
		rec.Identification = nil
	}
	if rec.Readings != nil && *rec.Readings == (invoice.Readings{}) {
		rec.Readings = nil
	}
}

// dedupeTaxes keeps the first entry per tax name.
func dedupeTaxes(taxes []invoice.Tax) []invoice.Tax {
	if len(taxes) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(taxes))
	out := make([]invoice.Tax, 0, len(taxes))
	for _, tax := range taxes {
		key := strings.ToUpper(tax.Name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tax)
	}
	return out
}
