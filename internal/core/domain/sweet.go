package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

type Category string

const (
	CategoryChocolate Category = "Chocolate"
	CategoryCandy     Category = "Candy"
	CategoryGummy     Category = "Gummy"
	CategoryLollipop  Category = "Lollipop"
	CategoryHardCandy Category = "Hard Candy"
	CategoryOther     Category = "Other"
)

// CategoryAll is the search value that disables category filtering.
const CategoryAll = "All"

var Categories = []Category{
	CategoryChocolate,
	CategoryCandy,
	CategoryGummy,
	CategoryLollipop,
	CategoryHardCandy,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

const (
	MaxNameLength = 100
	MinPrice      = 0.01
	MaxPrice      = 10000
	// MaxQuantity matches the 32-bit quantity column of the SQL store.
	MaxQuantity   = math.MaxInt32
)

const (
	msgNameRequired     = "Please provide a sweet name"
	msgNameTooLong      = "Sweet name cannot exceed 100 characters"
	msgCategoryRequired = "Please provide a category"
	msgPriceRequired    = "Please provide a price"
	msgPriceTooLow      = "Price must be at least $0.01"
	msgPriceTooHigh     = "Price cannot exceed $10,000"
	msgPriceCents       = "Price cannot have more than 2 decimal places"
	msgQuantityNegative = "Quantity cannot be negative"
	msgQuantityTooHigh  = "Quantity cannot exceed 2147483647"
	msgCreatorRequired  = "Sweet must record the account that created it"
)

type Sweet struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"`
	CreatedBy string    `json:"createdBy"`
	Version   int       `json:"-"` // optimistic locking, SQL store only
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate checks every field constraint of a full record. All violations
// are reported together.
func (s Sweet) Validate() error {
	var problems []string

	name := strings.TrimSpace(s.Name)
	switch {
	case name == "":
		problems = append(problems, msgNameRequired)
	case utf8.RuneCountInString(name) > MaxNameLength:
		problems = append(problems, msgNameTooLong)
	}

	switch {
	case s.Category == "":
		problems = append(problems, msgCategoryRequired)
	case !s.Category.Valid():
		problems = append(problems, fmt.Sprintf("%s is not a valid category", s.Category))
	}

	switch {
	case math.IsNaN(s.Price):
		problems = append(problems, msgPriceRequired)
	case s.Price < MinPrice:
		problems = append(problems, msgPriceTooLow)
	case s.Price > MaxPrice:
		problems = append(problems, msgPriceTooHigh)
	case !wholeCents(s.Price):
		problems = append(problems, msgPriceCents)
	}

	switch {
	case s.Quantity < 0:
		problems = append(problems, msgQuantityNegative)
	case s.Quantity > MaxQuantity:
		problems = append(problems, msgQuantityTooHigh)
	}
	if s.CreatedBy == "" {
		problems = append(problems, msgCreatorRequired)
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// wholeCents reports whether p has at most two decimal places, allowing for
// binary rounding of values such as 2.99.
func wholeCents(p float64) bool {
	cents := p * 100
	return math.Abs(cents-math.Round(cents)) < 1e-6
}

// SweetDraft is the admin-supplied input for a new record.
type SweetDraft struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Price    *float64 `json:"price"`
	Quantity *int     `json:"quantity"`
}

// NewSweet builds the record a draft describes and validates it.
func (d SweetDraft) NewSweet(creatorID string) (Sweet, error) {
	s := Sweet{
		Name:      strings.TrimSpace(d.Name),
		Category:  d.Category,
		CreatedBy: creatorID,
		// NaN marks a missing price until validation reports it.
		Price: math.NaN(),
	}
	if d.Price != nil {
		s.Price = *d.Price
	}
	if d.Quantity != nil {
		s.Quantity = *d.Quantity
	}
	return s, s.Validate()
}

// SweetPatch carries the admin-settable fields of an update. Nil fields are
// left untouched. CreatedBy is deliberately absent.
type SweetPatch struct {
	Name     *string   `json:"name"`
	Category *Category `json:"category"`
	Price    *float64  `json:"price"`
	Quantity *int      `json:"quantity"`
}

func (p SweetPatch) Empty() bool {
	return p.Name == nil && p.Category == nil && p.Price == nil && p.Quantity == nil
}

// Apply returns a copy of s with the patch fields written over it.
func (p SweetPatch) Apply(s Sweet) Sweet {
	if p.Name != nil {
		s.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		s.Category = *p.Category
	}
	if p.Price != nil {
		s.Price = *p.Price
	}
	if p.Quantity != nil {
		s.Quantity = *p.Quantity
	}
	return s
}

// SearchParams are the optional search inputs as received from callers.
type SearchParams struct {
	Name     string
	Category string
	MinPrice *float64
	MaxPrice *float64
}

// Filter turns the search inputs into a store predicate. An empty category
// or CategoryAll leaves the category unconstrained.
func (p SearchParams) Filter() SweetFilter {
	f := SweetFilter{
		NameContains: strings.TrimSpace(p.Name),
		MinPrice:     p.MinPrice,
		MaxPrice:     p.MaxPrice,
	}
	if c := strings.TrimSpace(p.Category); c != "" && c != CategoryAll {
		category := Category(c)
		f.Category = &category
	}
	return f
}

// SweetFilter is the predicate evaluated by the store. Zero values mean the
// dimension is unconstrained.
type SweetFilter struct {
	NameContains string
	Category     *Category
	MinPrice     *float64
	MaxPrice     *float64
}

// Matches evaluates the filter in memory with the same semantics the
// database queries use.
func (f SweetFilter) Matches(s Sweet) bool {
	if f.NameContains != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	if f.Category != nil && s.Category != *f.Category {
		return false
	}
	if f.MinPrice != nil && s.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && s.Price > *f.MaxPrice {
		return false
	}
	return true
}
