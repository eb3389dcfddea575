// Package smartalbum evaluates declarative rule sets against image records
// to compute live virtual album membership. Membership is never persisted;
// it is recomputed from the in-memory collection on demand.
package smartalbum

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"photo-library/internal/store"
)

// MatchMode combines per-rule results.
type MatchMode string

const (
	// MatchAll requires every rule to match (conjunction).
	MatchAll MatchMode = "all"
	// MatchAny requires at least one rule to match (disjunction).
	MatchAny MatchMode = "any"
)

// Field names a queryable image attribute.
type Field string

const (
	FieldRating      Field = "rating"
	FieldFlag        Field = "flag"
	FieldKeyword     Field = "keyword"
	FieldCamera      Field = "camera"
	FieldLens        Field = "lens"
	FieldCaptureDate Field = "captureDate"
	FieldImportDate  Field = "importDate"
	FieldFileName    Field = "fileName"
)

// Compare names a comparison operator. Which operators are legal depends on
// the field's type: numeric fields take equals/greaterThan/lessThan, text
// fields take equals/notEquals/contains, date fields additionally take
// between.
type Compare string

const (
	CompareEquals      Compare = "equals"
	CompareNotEquals   Compare = "notEquals"
	CompareContains    Compare = "contains"
	CompareGreaterThan Compare = "greaterThan"
	CompareLessThan    Compare = "lessThan"
	CompareBetween     Compare = "between"
)

// Rule is one (field, comparison, value) predicate. Date values use RFC 3339;
// between takes two RFC 3339 values joined by "..".
type Rule struct {
	Field   Field   `json:"field"`
	Compare Compare `json:"compare"`
	Value   string  `json:"value"`
}

// Criteria is a rule list plus the mode that combines them.
type Criteria struct {
	Match MatchMode `json:"match"`
	Rules []Rule    `json:"rules"`
}

// Parse decodes criteria from their JSON album representation and validates
// every rule.
func Parse(raw string) (*Criteria, error) {
	var c Criteria
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("malformed smart criteria: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Encode renders criteria to their JSON album representation.
func (c *Criteria) Encode() (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// Validate checks the mode and every rule's field/comparison pairing.
func (c *Criteria) Validate() error {
	if c.Match != MatchAll && c.Match != MatchAny {
		return fmt.Errorf("unknown match mode %q", c.Match)
	}
	for i, rule := range c.Rules {
		if err := rule.validate(); err != nil {
			return fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return nil
}

func (r Rule) validate() error {
	var allowed []Compare
	switch r.Field {
	case FieldRating:
		allowed = []Compare{CompareEquals, CompareGreaterThan, CompareLessThan}
	case FieldFlag, FieldKeyword, FieldCamera, FieldLens, FieldFileName:
		allowed = []Compare{CompareEquals, CompareNotEquals, CompareContains}
	case FieldCaptureDate, FieldImportDate:
		allowed = []Compare{CompareEquals, CompareGreaterThan, CompareLessThan, CompareBetween}
	default:
		return fmt.Errorf("unknown field %q", r.Field)
	}

	for _, cmp := range allowed {
		if r.Compare == cmp {
			return nil
		}
	}
	return fmt.Errorf("comparison %q not valid for field %q", r.Compare, r.Field)
}

// Matches evaluates every rule against the image and combines the results
// per the match mode. An empty rule list matches nothing in any mode.
func (c *Criteria) Matches(img *store.Image) bool {
	if len(c.Rules) == 0 {
		return false
	}

	for _, rule := range c.Rules {
		matched := rule.matches(img)
		if c.Match == MatchAll && !matched {
			return false
		}
		if c.Match == MatchAny && matched {
			return true
		}
	}
	return c.Match == MatchAll
}

// Evaluate returns the ids of all matching images, preserving input order.
func (c *Criteria) Evaluate(images []*store.Image) []string {
	var ids []string
	for _, img := range images {
		if c.Matches(img) {
			ids = append(ids, img.ID)
		}
	}
	return ids
}

func (r Rule) matches(img *store.Image) bool {
	switch r.Field {
	case FieldRating:
		// Rating 0 means "never rated"; an unrated image never satisfies
		// a positive numeric comparison.
		if img.Rating == 0 {
			return false
		}
		want, err := strconv.Atoi(r.Value)
		if err != nil {
			return false
		}
		return compareNumeric(float64(img.Rating), float64(want), r.Compare)

	case FieldFlag:
		return compareText(string(img.Flag), r.Value, r.Compare)

	case FieldKeyword:
		return matchKeyword(img.Keywords, r.Value, r.Compare)

	case FieldCamera:
		if img.Camera == "" {
			return false
		}
		return compareText(img.Camera, r.Value, r.Compare)

	case FieldLens:
		if img.Lens == "" {
			return false
		}
		return compareText(img.Lens, r.Value, r.Compare)

	case FieldFileName:
		return compareText(img.FileName, r.Value, r.Compare)

	case FieldCaptureDate:
		if img.CaptureDate == nil {
			return false
		}
		return compareDate(*img.CaptureDate, r.Value, r.Compare)

	case FieldImportDate:
		return compareDate(img.ImportDate, r.Value, r.Compare)
	}
	return false
}

func compareNumeric(have, want float64, cmp Compare) bool {
	switch cmp {
	case CompareEquals:
		return have == want
	case CompareGreaterThan:
		return have > want
	case CompareLessThan:
		return have < want
	}
	return false
}

func compareText(have, want string, cmp Compare) bool {
	switch cmp {
	case CompareEquals:
		return strings.EqualFold(have, want)
	case CompareNotEquals:
		return !strings.EqualFold(have, want)
	case CompareContains:
		return strings.Contains(strings.ToLower(have), strings.ToLower(want))
	}
	return false
}

// matchKeyword treats the keyword list as a set: equals means "has this
// keyword", notEquals means "does not have it", contains means "some keyword
// contains this substring". An image with no keywords never satisfies a
// positive comparison but does satisfy notEquals.
func matchKeyword(keywords []string, want string, cmp Compare) bool {
	switch cmp {
	case CompareEquals:
		for _, k := range keywords {
			if strings.EqualFold(k, want) {
				return true
			}
		}
		return false
	case CompareNotEquals:
		for _, k := range keywords {
			if strings.EqualFold(k, want) {
				return false
			}
		}
		return true
	case CompareContains:
		for _, k := range keywords {
			if strings.Contains(strings.ToLower(k), strings.ToLower(want)) {
				return true
			}
		}
		return false
	}
	return false
}

func compareDate(have time.Time, value string, cmp Compare) bool {
	if cmp == CompareBetween {
		bounds := strings.SplitN(value, "..", 2)
		if len(bounds) != 2 {
			return false
		}
		from, err1 := parseDate(bounds[0])
		to, err2 := parseDate(bounds[1])
		if err1 != nil || err2 != nil {
			return false
		}
		return !have.Before(from) && !have.After(to)
	}

	want, err := parseDate(value)
	if err != nil {
		return false
	}

	switch cmp {
	case CompareEquals:
		// Date equality is day-granular; comparing instants would never match.
		y1, m1, d1 := have.UTC().Date()
		y2, m2, d2 := want.UTC().Date()
		return y1 == y2 && m1 == m2 && d1 == d2
	case CompareGreaterThan:
		return have.After(want)
	case CompareLessThan:
		return have.Before(want)
	}
	return false
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
