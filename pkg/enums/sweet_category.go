package enums

// SweetCategory is the closed set of catalog categories.
type SweetCategory string

const (
	SweetCategoryChocolates SweetCategory = "chocolates"
	SweetCategoryCandies    SweetCategory = "candies"
	SweetCategoryCakes      SweetCategory = "cakes"
	SweetCategoryCookies    SweetCategory = "cookies"
	SweetCategoryIceCream   SweetCategory = "ice-cream"
	SweetCategoryPastries   SweetCategory = "pastries"
)

var sweetCategories = set[SweetCategory]{
	kind: "sweet category",
	values: []SweetCategory{
		SweetCategoryChocolates,
		SweetCategoryCandies,
		SweetCategoryCakes,
		SweetCategoryCookies,
		SweetCategoryIceCream,
		SweetCategoryPastries,
	},
	fold: true,
}

// SweetCategories returns the supported categories in display order.
func SweetCategories() []SweetCategory { return sweetCategories.all() }

func (c SweetCategory) String() string { return string(c) }
func (c SweetCategory) IsValid() bool  { return sweetCategories.has(c) }

// ParseSweetCategory matches ignoring case and surrounding whitespace.
func ParseSweetCategory(value string) (SweetCategory, error) {
	return sweetCategories.parse(value)
}
