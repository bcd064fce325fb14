/*
category.go - Out-of-band value lists for SELECT inputs

PURPOSE:
  SELECT steps reference a category (CURRENCY, NETWORK, ...) whose values
  are administered separately from the rules. A category's values feed the
  dropdowns; removing a value soft-deletes it so existing codes keep their
  meaning.
*/
package coderule

// CategoryValue is one selectable option under a category. Deleted values
// stay on record but stop appearing in listings.
type CategoryValue struct {
	ID         int64  `json:"id,omitempty"`
	CategoryID int64  `json:"category_id"`
	Name       string `json:"name"`
	Value      string `json:"value"`
	SortOrder  int    `json:"sort_order,omitempty"`
	Deleted    bool   `json:"is_delete"`
}

// Category is one administered value list.
type Category struct {
	ID     int64           `json:"id"`
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Values []CategoryValue `json:"rule_values"`
}

// ActiveValues returns the category's values with soft-deleted ones
// filtered out, in sort order as stored.
func (c *Category) ActiveValues() []CategoryValue {
	out := make([]CategoryValue, 0, len(c.Values))
	for _, v := range c.Values {
		if !v.Deleted {
			out = append(out, v)
		}
	}
	return out
}

// StepValues adapts the active values to the shape SELECT steps carry.
func (c *Category) StepValues() []StepValue {
	values := c.ActiveValues()
	out := make([]StepValue, 0, len(values))
	for _, v := range values {
		out = append(out, StepValue{Value: v.Value, Name: v.Name})
	}
	return out
}
