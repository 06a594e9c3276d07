package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allAddons = []Addon{"", AddonNone, AddonPremium, AddonExtraPremium, AddonPremiumExtraPremium}

func TestTotalLargeExtraPremiumWithDrink(t *testing.T) {
	o := Order{Size: SizeL, Addon: AddonExtraPremium, AddonVariant: VariantPulledPork, Drink: true}
	assert.Equal(t, 5500, Total(o))
}

func TestTotalBaseTiers(t *testing.T) {
	tests := []struct {
		size Size
		want int
	}{
		{SizeM, 2500},
		{SizeL, 3000},
		{SizeXL, 3400},
	}
	for _, tt := range tests {
		t.Run(string(tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, Total(Order{Size: tt.size, Addon: AddonNone}))
		})
	}
}

func TestCombinedAddonIsSumOfComponents(t *testing.T) {
	for _, s := range Sizes {
		want := AddonPrice(AddonPremium, s) + AddonPrice(AddonExtraPremium, s)
		assert.Equal(t, want, AddonPrice(AddonPremiumExtraPremium, s), "size %s", s)
	}
	assert.Equal(t, 3400+1200+1500, Total(Order{Size: SizeXL, Addon: AddonPremiumExtraPremium}))
}

func TestTotalNonDecreasingInExtras(t *testing.T) {
	for _, s := range Sizes {
		base := Total(Order{Size: s})
		for _, a := range allAddons {
			withAddon := Total(Order{Size: s, Addon: a})
			withDrink := Total(Order{Size: s, Addon: a, Drink: true})
			assert.GreaterOrEqual(t, withAddon, base, "size %s addon %q", s, a)
			assert.Equal(t, withAddon+DrinkPrice, withDrink, "size %s addon %q", s, a)
			if a == AddonPremium || a == AddonExtraPremium {
				assert.LessOrEqual(t, withAddon, Total(Order{Size: s, Addon: AddonPremiumExtraPremium}))
			}
		}
	}
}

func TestTotalDeterministic(t *testing.T) {
	o := Order{Size: SizeM, Addon: AddonPremium, Drink: true}
	first := Total(o)
	Total(Order{Size: SizeXL, Addon: AddonPremiumExtraPremium, Drink: true})
	assert.Equal(t, first, Total(o))
	assert.Equal(t, 2500+800+1200, first)
}

func TestTotalUnknownSize(t *testing.T) {
	assert.Equal(t, DrinkPrice, Total(Order{Drink: true}))
}

func TestLabelAndDescriptor(t *testing.T) {
	assert.Equal(t, "", Label(AddonNone, ""))
	assert.Equal(t, "Salsa de queso cheddar", Label(AddonPremium, ""))
	assert.Equal(t, "Salsa de queso cheddar + Pulled Pork", Label(AddonPremiumExtraPremium, VariantPulledPork))
	assert.Equal(t, "", Descriptor(AddonNone, ""))
	assert.Equal(t, "premium", Descriptor(AddonPremium, ""))
	assert.Equal(t, "extra_premium (Carne mechada)", Descriptor(AddonExtraPremium, VariantCarneMechada))
}
