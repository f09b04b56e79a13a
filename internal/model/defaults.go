package model

// DefaultCurrencies returns the stock currency list used to seed a fresh
// data set. IDs are unassigned; the store hands them out.
func DefaultCurrencies() []Currency {
	codes := [][3]string{
		{"USD", "US Dollar", "$"},
		{"EUR", "Euro", "€"},
		{"GBP", "British Pound", "£"},
		{"JPY", "Japanese Yen", "¥"},
		{"CAD", "Canadian Dollar", "C$"},
		{"AUD", "Australian Dollar", "A$"},
		{"CHF", "Swiss Franc", "CHF"},
		{"CNY", "Chinese Yuan", "¥"},
		{"INR", "Indian Rupee", "₹"},
		{"MUR", "Mauritian Rupee", "Rs"},
	}
	out := make([]Currency, 0, len(codes))
	for _, c := range codes {
		out = append(out, Currency{Code: c[0], Name: c[1], Symbol: c[2], IsActive: true})
	}
	return out
}

// DefaultCategories returns the stock category list, expenses first.
func DefaultCategories() []Category {
	expense := []string{
		"Bills - Electricity", "Bills - Water", "Bills - Gas", "Bills - Internet",
		"Bills - Phone",
		"Food - Groceries", "Food - Dining Out", "Food - Snacks", "Food - Takeaway",
		"Car - Insurance", "Car - Parking", "Car - Fuel", "Car - Repairs",
		"Health - Medical Visit", "Health - Pharmacy", "Health - Insurance", "Health - Gym", "Health - Supplements",
		"Shopping - Clothing", "Shopping - Beauty", "Shopping - Electronics", "Shopping - Home Supplies",
		"Education - Courses", "Education - Books",
		"Entertainment - Streaming", "Entertainment - Apps", "Entertainment - Movies", "Entertainment - Games",
		"Travel - Flights", "Travel - Accommodation",
		"Gifts - Gifts", "Gifts - Donation",
		"Financial - Loan Payments", "Financial - Taxes", "Financial - Fees",
		"Miscellaneous",
	}
	income := []string{
		"Salary", "Bonus", "Freelance", "Business Income", "Interest Income",
		"Dividends", "Refunds", "Gifts", "Sale of Assets", "Other Income",
	}

	out := make([]Category, 0, len(expense)+len(income))
	for _, name := range expense {
		out = append(out, Category{Name: name, Type: TypeExpense, IsDefault: true, IsActive: true})
	}
	for _, name := range income {
		out = append(out, Category{Name: name, Type: TypeIncome, IsDefault: true, IsActive: true})
	}
	return out
}
