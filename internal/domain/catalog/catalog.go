// Package catalog defines the closed set of recognized trust events and their weights.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"time"
)

// Built-in event types.
const (
	VerifiedIdentity     = "verified_identity"
	CompletedTransaction = "completed_transaction"
	PositiveReview       = "positive_review"
	Cancellation         = "cancellation"
	LateDelivery         = "late_delivery"
	DisputeLost          = "dispute_lost"
	ReportedFraud        = "reported_fraud"
	ScoreCorrection      = "score_correction"
)

// Context key carrying the signed amount of a correction event.
const correctionAmountKey = "amount"

const defaultMaxCorrection = 1000

var typePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Diminishing reduces a positive weight once a user has collected FreeCount
// events of the same type inside Window. Every further event is multiplied by
// Factor once more than the previous one.
type Diminishing struct {
	Window    time.Duration
	FreeCount int
	Factor    float64
}

// Entry describes one recognized event type.
type Entry struct {
	Type        string
	Weight      int
	ContextKeys []string
	Diminishing *Diminishing
	// Correction entries take their signed weight from the "amount" context key.
	Correction bool
}

// Summary describes the user's recent history relevant to modifiers.
type Summary struct {
	// SameTypeInWindow counts events of the same type inside the entry's window.
	SameTypeInWindow int
}

// Catalog resolves event types to weights. It holds no mutable state after New.
type Catalog struct {
	entries       map[string]Entry
	keys          map[string]map[string]struct{}
	maxCorrection int
}

// Defaults returns the built-in event definitions. Negative events carry a
// larger magnitude than their positive counterparts.
func Defaults() []Entry {
	return []Entry{
		{Type: VerifiedIdentity, Weight: 50, ContextKeys: []string{"provider", "verification_id"}},
		{Type: CompletedTransaction, Weight: 20, ContextKeys: []string{"order_id", "amount_cents"}},
		{
			Type:        PositiveReview,
			Weight:      10,
			ContextKeys: []string{"review_id", "order_id", "rating"},
			Diminishing: &Diminishing{Window: 24 * time.Hour, FreeCount: 3, Factor: 0.5},
		},
		{Type: Cancellation, Weight: -25, ContextKeys: []string{"order_id", "reason"}},
		{Type: LateDelivery, Weight: -30, ContextKeys: []string{"order_id", "days_late"}},
		{Type: DisputeLost, Weight: -200, ContextKeys: []string{"dispute_id", "order_id"}},
		{Type: ReportedFraud, Weight: -400, ContextKeys: []string{"report_id"}},
		{Type: ScoreCorrection, Correction: true, ContextKeys: []string{correctionAmountKey, "reason", "reference_event_id"}},
	}
}

// New builds a catalog from the defaults plus options and validates it.
func New(opts ...Option) (*Catalog, error) {
	c := &Catalog{
		entries:       make(map[string]Entry),
		maxCorrection: defaultMaxCorrection,
	}
	for _, e := range Defaults() {
		c.entries[e.Type] = e
	}

	for _, opt := range opts {
		opt(c)
	}

	if len(c.entries) == 0 {
		return nil, fmt.Errorf("%w: no event types", ErrInvalidCatalog)
	}

	c.keys = make(map[string]map[string]struct{}, len(c.entries))
	for t, e := range c.entries {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(e.ContextKeys))
		for _, k := range e.ContextKeys {
			set[k] = struct{}{}
		}
		if e.Correction {
			set[correctionAmountKey] = struct{}{}
		}
		c.keys[t] = set
	}
	return c, nil
}

func validateEntry(e Entry) error {
	if !typePattern.MatchString(e.Type) {
		return fmt.Errorf("%w: bad event type name %q", ErrInvalidCatalog, e.Type)
	}
	if !e.Correction && e.Weight == 0 {
		return fmt.Errorf("%w: %s has zero weight", ErrInvalidCatalog, e.Type)
	}
	if d := e.Diminishing; d != nil {
		if d.Window <= 0 || d.FreeCount < 0 || d.Factor <= 0 || d.Factor >= 1 {
			return fmt.Errorf("%w: %s has an invalid diminishing modifier", ErrInvalidCatalog, e.Type)
		}
	}
	return nil
}

// Lookup returns the definition of eventType.
func (c *Catalog) Lookup(eventType string) (Entry, error) {
	e, ok := c.entries[eventType]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	return e, nil
}

// Window returns the diminishing window of eventType, or zero when the type
// has no history-sensitive modifier.
func (c *Catalog) Window(eventType string) time.Duration {
	e, ok := c.entries[eventType]
	if !ok || e.Diminishing == nil || e.Weight <= 0 {
		return 0
	}
	return e.Diminishing.Window
}

// Entries returns all definitions ordered by type name.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

// Check validates eventType and its context without resolving modifiers.
func (c *Catalog) Check(eventType string, raw json.RawMessage) error {
	_, _, err := c.ResolveWeight(eventType, raw, Summary{})
	return err
}

// ResolveWeight returns the signed delta for one occurrence of eventType.
// capped reports whether a modifier reduced the base weight.
func (c *Catalog) ResolveWeight(eventType string, raw json.RawMessage, recent Summary) (delta int, capped bool, err error) {
	e, err := c.Lookup(eventType)
	if err != nil {
		return 0, false, err
	}

	fields, err := parseContext(raw)
	if err != nil {
		return 0, false, err
	}
	allowed := c.keys[eventType]
	for k := range fields {
		if _, ok := allowed[k]; !ok {
			return 0, false, fmt.Errorf("%w: key %q is not recognized for %s", ErrInvalidContext, k, eventType)
		}
	}

	if e.Correction {
		amount, err := c.correctionAmount(fields)
		if err != nil {
			return 0, false, err
		}
		return amount, false, nil
	}

	weight := e.Weight
	d := e.Diminishing
	if d == nil || weight <= 0 || recent.SameTypeInWindow < d.FreeCount {
		return weight, false, nil
	}

	steps := recent.SameTypeInWindow - d.FreeCount + 1
	reduced := int(math.Floor(float64(weight) * math.Pow(d.Factor, float64(steps))))
	return reduced, reduced != weight, nil
}

func (c *Catalog) correctionAmount(fields map[string]json.RawMessage) (int, error) {
	raw, ok := fields[correctionAmountKey]
	if !ok {
		return 0, fmt.Errorf("%w: %s requires %q", ErrInvalidContext, ScoreCorrection, correctionAmountKey)
	}
	var amount int
	if err := json.Unmarshal(raw, &amount); err != nil {
		return 0, fmt.Errorf("%w: %q must be an integer", ErrInvalidContext, correctionAmountKey)
	}
	if amount == 0 || amount > c.maxCorrection || amount < -c.maxCorrection {
		return 0, fmt.Errorf("%w: %q must be non-zero and within ±%d", ErrInvalidContext, correctionAmountKey, c.maxCorrection)
	}
	return amount, nil
}

func parseContext(raw json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, fmt.Errorf("%w: context must be a JSON object", ErrInvalidContext)
	}
	return fields, nil
}
