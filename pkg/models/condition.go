package models

// Operator is the comparison applied by a leaf condition.
type Operator string

const (
	OperatorEq         Operator = "eq"
	OperatorNe         Operator = "ne"
	OperatorGt         Operator = "gt"
	OperatorGte        Operator = "gte"
	OperatorLt         Operator = "lt"
	OperatorLte        Operator = "lte"
	OperatorIn         Operator = "in"         // Field value is a member of Value (a sequence)
	OperatorContains   Operator = "contains"   // Value is contained in the field value
	OperatorStartsWith Operator = "startswith"
	OperatorEndsWith   Operator = "endswith"
)

// Condition is a node of the boolean trigger DSL. Exactly one of the
// composite slots (And, Or, Not) or the leaf slot (Field/Operator/Value) is
// populated; a zero-value node always evaluates true. Nesting is unlimited.
type Condition struct {
	And []*Condition `json:"and,omitempty"`
	Or  []*Condition `json:"or,omitempty"`
	Not *Condition   `json:"not,omitempty"`

	Field    string   `json:"field,omitempty"` // Dot-notation path into the event context
	Operator Operator `json:"operator,omitempty"`
	Value    any      `json:"value,omitempty"`
}

// IsLeaf reports whether the node carries a field comparison.
func (c *Condition) IsLeaf() bool {
	return c.Field != "" || c.Operator != ""
}

// IsEmpty reports whether the node constrains nothing and so matches any event.
func (c *Condition) IsEmpty() bool {
	return c == nil || (len(c.And) == 0 && len(c.Or) == 0 && c.Not == nil && !c.IsLeaf())
}
