package domain

import "time"

// CategoryType classifies which side of the ledger a category applies to.
type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
	CategoryBoth    CategoryType = "both"
)

// ValidCategoryType reports whether t is one of the three allowed values.
func ValidCategoryType(t CategoryType) bool {
	switch t {
	case CategoryIncome, CategoryExpense, CategoryBoth:
		return true
	}
	return false
}

// Category is a row in a tenant's categories collection. Default categories
// are seeded at provisioning time and cannot be deleted.
type Category struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Color     string       `json:"color"`
	Type      CategoryType `json:"type"`
	IsDefault bool         `json:"is_default"`
	CreatedAt time.Time    `json:"created_at"`
}

// Transaction is a row in a tenant's transactions collection.
type Transaction struct {
	ID         string       `json:"id"`
	Amount     float64      `json:"amount"`
	Type       CategoryType `json:"type"`
	CategoryID string       `json:"category_id"`
	Date       time.Time    `json:"date"`
	Note       string       `json:"note,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// DefaultCategories is the fixed catalog seeded for every new tenant.
var DefaultCategories = []Category{
	{Name: "Salary", Color: "#4CAF50", Type: CategoryIncome, IsDefault: true},
	{Name: "Investments", Color: "#009688", Type: CategoryIncome, IsDefault: true},
	{Name: "Groceries", Color: "#FF9800", Type: CategoryExpense, IsDefault: true},
	{Name: "Rent", Color: "#795548", Type: CategoryExpense, IsDefault: true},
	{Name: "Utilities", Color: "#607D8B", Type: CategoryExpense, IsDefault: true},
	{Name: "Transport", Color: "#3F51B5", Type: CategoryExpense, IsDefault: true},
	{Name: "Health", Color: "#E91E63", Type: CategoryExpense, IsDefault: true},
	{Name: "Entertainment", Color: "#9C27B0", Type: CategoryExpense, IsDefault: true},
	{Name: "Other", Color: "#9E9E9E", Type: CategoryBoth, IsDefault: true},
}
