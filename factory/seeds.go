/*
seeds.go - Seed rule and category definitions

PURPOSE:
  Ships a working rule set for a fresh install: one rule per account type,
  with the segment layout finance uses day one. Installs can replace any of
  it through the rule config API; these are only defaults.

LAYOUT:
  ASSET   ASSET:<currency>.<provider>
  LIAB    LIAB:<group>-<currency>.<network>   (card/bank/other groups)
  EQUITY  EQUITY:<currency>
  REV     REV:<currency>.<kind>
  EXP     EXP:<currency>.<kind>
*/
package factory

import "github.com/warp/coa-engine/coderule"

// SeedRulesJSON is the default rule set, one rule per account type.
const SeedRulesJSON = `[
  {
    "id": 1, "code": "ASSET", "name": "Asset", "separator": ":",
    "groups": [
      {
        "id": 0, "separator": ":",
        "steps": [
          {"step_id": 101, "step_order": 1, "label": "Currency", "category_code": "CURRENCY", "input_type": "SELECT", "separator": "."},
          {"step_id": 102, "step_order": 2, "label": "Provider", "category_code": "PROVIDER", "input_type": "SELECT", "separator": "."}
        ]
      }
    ]
  },
  {
    "id": 2, "code": "LIAB", "name": "Liability", "separator": ":",
    "groups": [
      {
        "id": 1, "code": "CARD", "name": "Card schemes", "input_type": "SELECT", "separator": "-",
        "steps": [
          {"step_id": 201, "step_order": 1, "label": "Currency", "category_code": "CURRENCY", "input_type": "SELECT", "separator": "."},
          {"step_id": 202, "step_order": 2, "label": "Network", "category_code": "NETWORK", "input_type": "SELECT", "separator": "/"}
        ]
      },
      {
        "id": 2, "code": "BANK", "name": "Bank borrowings", "input_type": "SELECT", "separator": "-",
        "steps": [
          {"step_id": 203, "step_order": 1, "label": "Currency", "category_code": "CURRENCY", "input_type": "SELECT", "separator": "."},
          {"step_id": 204, "step_order": 2, "label": "Bank", "category_code": "BANK_NAME", "input_type": "SELECT", "separator": "."}
        ]
      },
      {
        "id": 3, "name": "Other payables", "input_type": "TEXT", "separator": ":",
        "steps": [
          {"step_id": 205, "step_order": 1, "label": "Currency", "category_code": "CURRENCY", "input_type": "SELECT", "separator": "."}
        ]
      }
    ]
  },
  {
    "id": 3, "code": "EQUITY", "name": "Equity", "separator": ":",
    "groups": [
      {
        "id": 0, "separator": ":",
        "steps": [
          {"step_id": 301, "step_order": 1, "label": "Currency", "category_code": "CURRENCY", "input_type": "SELECT", "separator": "."}
        ]
      }
    ]
  },
  {
    "id": 4, "code": "REV", "name": "Revenue", "separator": ":",
    "groups": [
      {
        "id": 0, "separator": ":",
        "steps": [
          {"step_id": 401, "step_order": 1, "label": "Currency", "category_code": "CURRENCY", "input_type": "SELECT", "separator": "."},
          {"step_id": 402, "step_order": 2, "label": "Kind of revenue", "category_code": "KINDS_OF_REVENUE", "input_type": "SELECT", "separator": "."}
        ]
      }
    ]
  },
  {
    "id": 5, "code": "EXP", "name": "Expense", "separator": ":",
    "groups": [
      {
        "id": 0, "separator": ":",
        "steps": [
          {"step_id": 501, "step_order": 1, "label": "Currency", "category_code": "CURRENCY", "input_type": "SELECT", "separator": "."},
          {"step_id": 502, "step_order": 2, "label": "Kind of expense", "category_code": "KINDS_OF_EXPENSE", "input_type": "SELECT", "separator": "."}
        ]
      }
    ]
  }
]`

// SeedCategory is one seeded rule category with its initial values.
type SeedCategory struct {
	Code   string
	Name   string
	Values []SeedValue
}

// SeedValue is one seeded option under a category.
type SeedValue struct {
	Value string
	Name  string
}

// CategoryValues adapts the seed values into store rows.
func (c SeedCategory) CategoryValues() []coderule.CategoryValue {
	values := make([]coderule.CategoryValue, len(c.Values))
	for i, v := range c.Values {
		values[i] = coderule.CategoryValue{Name: v.Name, Value: v.Value, SortOrder: i}
	}
	return values
}

// SeedCategories lists the categories every install starts with. Values
// here feed the SELECT steps of the seed rules.
func SeedCategories() []SeedCategory {
	return []SeedCategory{
		{
			Code: "CURRENCY", Name: "Currency",
			Values: []SeedValue{
				{Value: "USD", Name: "US Dollar"},
				{Value: "EUR", Name: "Euro"},
				{Value: "SGD", Name: "Singapore Dollar"},
				{Value: "VND", Name: "Vietnamese Dong"},
			},
		},
		{
			Code: "PROVIDER", Name: "Provider",
			Values: []SeedValue{
				{Value: "STRIPE", Name: "Stripe"},
				{Value: "ADYEN", Name: "Adyen"},
			},
		},
		{
			Code: "BANK_NAME", Name: "Bank name",
			Values: []SeedValue{
				{Value: "DBS", Name: "DBS Bank"},
				{Value: "HSBC", Name: "HSBC"},
			},
		},
		{
			Code: "NETWORK", Name: "Network",
			Values: []SeedValue{
				{Value: "VISA", Name: "Visa"},
				{Value: "MC", Name: "Mastercard"},
			},
		},
		{
			Code: "KINDS_OF_REVENUE", Name: "Kinds of revenue",
			Values: []SeedValue{
				{Value: "FEES", Name: "Fee income"},
				{Value: "FX", Name: "FX income"},
			},
		},
		{
			Code: "KINDS_OF_EXPENSE", Name: "Kinds of expense",
			Values: []SeedValue{
				{Value: "OPS", Name: "Operations"},
				{Value: "COMP", Name: "Compensation"},
			},
		},
	}
}
