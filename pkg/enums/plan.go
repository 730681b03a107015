package enums

// Plan is the internal paid plan tier. PlanNone means no paid relationship.
type Plan string

const (
	PlanNone   Plan = "none"
	PlanGrowth Plan = "growth"
	PlanScale  Plan = "scale"
	PlanPro    Plan = "pro"
)

var validPlans = []Plan{
	PlanNone,
	PlanGrowth,
	PlanScale,
	PlanPro,
}

// String implements fmt.Stringer.
func (p Plan) String() string {
	return string(p)
}

// IsValid reports whether the value is a known Plan.
func (p Plan) IsValid() bool {
	return member(validPlans, p)
}

// IsPaid reports whether the plan represents a paid tier.
func (p Plan) IsPaid() bool {
	return p != PlanNone && p.IsValid()
}

// ParsePlan converts raw input into a Plan.
func ParsePlan(value string) (Plan, error) {
	return parse("plan", validPlans, value)
}
