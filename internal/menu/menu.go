// Package menu holds the catalogue of sizes and add-ons and prices orders against it.
package menu

import "strings"

// Size identifies a portion of fries.
type Size string

const (
	SizeM  Size = "M"
	SizeL  Size = "L"
	SizeXL Size = "XL"
)

// Addon is the add-on selection of an order. The zero value means the
// customer has not answered yet.
type Addon string

const (
	AddonNone                Addon = "none"
	AddonPremium             Addon = "premium"
	AddonExtraPremium        Addon = "extra_premium"
	AddonPremiumExtraPremium Addon = "premium+extra_premium"
)

// Extra premium variants.
const (
	VariantCarneMechada = "Carne mechada"
	VariantPulledPork   = "Pulled Pork"
)

// SizeInfo describes a size tier.
type SizeInfo struct {
	Grams int
	Price int
}

// AddonInfo describes a single add-on and its per-size price.
type AddonInfo struct {
	Name        string
	Description string
	Price       map[Size]int
}

// DrinkPrice is the flat price of a 350cc can.
const DrinkPrice = 1200

// Sizes lists the tiers in the order they are offered.
var Sizes = []Size{SizeM, SizeL, SizeXL}

var sizeTable = map[Size]SizeInfo{
	SizeM:  {Grams: 200, Price: 2500},
	SizeL:  {Grams: 250, Price: 3000},
	SizeXL: {Grams: 300, Price: 3400},
}

var (
	premium = AddonInfo{
		Name:        "Salsa de queso cheddar",
		Description: "Salsa de queso cheddar fundida",
		Price:       map[Size]int{SizeM: 800, SizeL: 1000, SizeXL: 1200},
	}
	extraPremium = AddonInfo{
		Name:        "Carne mechada o Pulled Pork",
		Description: "Carnes cocinadas lentamente",
		Price:       map[Size]int{SizeM: 1100, SizeL: 1300, SizeXL: 1500},
	}
)

// Order is the accumulator filled in while the customer answers each question.
type Order struct {
	CustomerName string `json:"customerName"`
	Size         Size   `json:"size,omitempty"`
	Addon        Addon  `json:"addon,omitempty"`
	AddonVariant string `json:"addonVariant,omitempty"`
	Drink        bool   `json:"drink"`
}

// LookupSize returns the tier information for s.
func LookupSize(s Size) (SizeInfo, bool) {
	info, ok := sizeTable[s]
	return info, ok
}

// Premium returns the premium add-on.
func Premium() AddonInfo { return premium }

// ExtraPremium returns the extra premium add-on.
func ExtraPremium() AddonInfo { return extraPremium }

// NeedsVariant reports whether the add-on requires picking a meat variant.
func (a Addon) NeedsVariant() bool {
	return a == AddonExtraPremium || a == AddonPremiumExtraPremium
}

// Selected reports whether the add-on carries a price.
func (a Addon) Selected() bool {
	return a == AddonPremium || a == AddonExtraPremium || a == AddonPremiumExtraPremium
}

// Components splits a combined add-on into its priced parts.
func (a Addon) Components() []AddonInfo {
	switch a {
	case AddonPremium:
		return []AddonInfo{premium}
	case AddonExtraPremium:
		return []AddonInfo{extraPremium}
	case AddonPremiumExtraPremium:
		return []AddonInfo{premium, extraPremium}
	default:
		return nil
	}
}

// AddonPrice is the price of a for size s. Combined add-ons are the plain sum
// of both components.
func AddonPrice(a Addon, s Size) int {
	total := 0
	for _, c := range a.Components() {
		total += c.Price[s]
	}
	return total
}

// Total computes the amount to pay for o.
func Total(o Order) int {
	total := sizeTable[o.Size].Price
	total += AddonPrice(o.Addon, o.Size)
	if o.Drink {
		total += DrinkPrice
	}
	return total
}

// Label renders the add-on for humans, including the chosen variant.
func Label(a Addon, variant string) string {
	parts := a.Components()
	if len(parts) == 0 {
		return ""
	}
	names := make([]string, 0, len(parts))
	for _, p := range parts {
		name := p.Name
		if p.Name == extraPremium.Name && variant != "" {
			name = variant
		}
		names = append(names, name)
	}
	return strings.Join(names, " + ")
}

// Descriptor is the compact add-on value stored with an order row, for
// example "premium+extra_premium (Pulled Pork)". Empty when no add-on.
func Descriptor(a Addon, variant string) string {
	if !a.Selected() {
		return ""
	}
	if a.NeedsVariant() && variant != "" {
		return string(a) + " (" + variant + ")"
	}
	return string(a)
}
