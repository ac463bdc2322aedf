package features

import "sort"

// Default merchant category code sets used by the reference configuration.
var (
	DefaultFoodCodes   = []int{5411, 5812, 5814}
	DefaultTravelCodes = []int{4111, 4511, 7011, 7012}
)

// DefaultSalaryType is the transaction type tag that marks a salary credit.
const DefaultSalaryType = "SALARY"

// CategorySets holds the membership sets the ratio features are computed against.
type CategorySets struct {
	Food       map[int]struct{}
	Travel     map[int]struct{}
	SalaryType string
}

// NewCategorySets builds membership sets from code lists.
func NewCategorySets(food, travel []int, salaryType string) CategorySets {
	if salaryType == "" {
		salaryType = DefaultSalaryType
	}
	return CategorySets{
		Food:       toSet(food),
		Travel:     toSet(travel),
		SalaryType: salaryType,
	}
}

// DefaultCategorySets returns the reference food/travel sets.
func DefaultCategorySets() CategorySets {
	return NewCategorySets(DefaultFoodCodes, DefaultTravelCodes, DefaultSalaryType)
}

// Overlap returns codes present in both the food and travel sets, ascending.
func (s CategorySets) Overlap() []int {
	var out []int
	for code := range s.Food {
		if _, ok := s.Travel[code]; ok {
			out = append(out, code)
		}
	}
	sort.Ints(out)
	return out
}

func (s CategorySets) isFood(code int) bool {
	_, ok := s.Food[code]
	return ok
}

func (s CategorySets) isTravel(code int) bool {
	_, ok := s.Travel[code]
	return ok
}

func toSet(codes []int) map[int]struct{} {
	set := make(map[int]struct{}, len(codes))
	for _, c := range codes {
		set[c] = struct{}{}
	}
	return set
}
