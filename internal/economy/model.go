package economy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// SchemaVersion is the current record layout; Migrate upgrades older records.
const SchemaVersion = 2

var (
	symbolRE = regexp.MustCompile(`^[A-Z]{1,6}$`)
	caseIDRE = regexp.MustCompile(`^[a-z0-9_]{1,48}$`)
)

func ValidateSymbol(symbol string) error {
	if !symbolRE.MatchString(strings.TrimSpace(symbol)) {
		return invalidf("symbol must be 1-6 uppercase letters")
	}
	return nil
}

func ValidateCaseID(id string) error {
	if !caseIDRE.MatchString(id) {
		return invalidf("case id must be lowercase letters, digits or underscores")
	}
	return nil
}

// Round2 rounds money to cents.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ParseAmount parses a user supplied amount and rejects non-positive values.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.ReplaceAll(s, ",", ".")))
	if err != nil {
		return decimal.Zero, invalidf("amount %q is not a number", s)
	}
	if !d.IsPositive() {
		return decimal.Zero, invalidf("amount must be > 0")
	}
	return Round2(d), nil
}

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
	RarityMythical  Rarity = "mythical"
)

var rarityOrder = []Rarity{RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary, RarityMythical}

// Rank orders rarities by ascending scarcity; unknown rarities rank -1.
func (r Rarity) Rank() int {
	for i, v := range rarityOrder {
		if v == r {
			return i
		}
	}
	return -1
}

func (r Rarity) Valid() bool { return r.Rank() >= 0 }

func ParseRarity(s string) (Rarity, error) {
	r := Rarity(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", invalidf("unknown rarity %q", s)
	}
	return r, nil
}

// RarityValues maps a rarity to the value credited to totalWithdrawn when a
// withdrawal is approved.
type RarityValues map[Rarity]decimal.Decimal

func DefaultRarityValues() RarityValues {
	return RarityValues{
		RarityCommon:    decimal.NewFromInt(5),
		RarityUncommon:  decimal.NewFromInt(10),
		RarityRare:      decimal.NewFromInt(25),
		RarityEpic:      decimal.NewFromInt(50),
		RarityLegendary: decimal.NewFromInt(100),
		RarityMythical:  decimal.NewFromInt(250),
	}
}

// Value returns the configured value for r, falling back to the common value.
func (v RarityValues) Value(r Rarity) decimal.Decimal {
	if val, ok := v[r]; ok {
		return val
	}
	return v[RarityCommon]
}

// ParseRarityValues reads "common=5,rare=25" style overrides on top of the defaults.
func ParseRarityValues(s string) (RarityValues, error) {
	values := DefaultRarityValues()
	s = strings.TrimSpace(s)
	if s == "" {
		return values, nil
	}
	for _, pair := range strings.Split(s, ",") {
		name, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("rarity value %q must be name=value", pair)
		}
		r, err := ParseRarity(name)
		if err != nil {
			return nil, err
		}
		val, err := decimal.NewFromString(strings.TrimSpace(raw))
		if err != nil || val.IsNegative() {
			return nil, fmt.Errorf("rarity value for %s must be a non-negative number", r)
		}
		values[r] = Round2(val)
	}
	return values, nil
}

func (v RarityValues) String() string {
	keys := make([]Rarity, 0, len(v))
	for r := range v {
		keys = append(keys, r)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Rank() < keys[j].Rank() })
	parts := make([]string, 0, len(keys))
	for _, r := range keys {
		parts = append(parts, string(r)+"="+v[r].String())
	}
	return strings.Join(parts, ",")
}
