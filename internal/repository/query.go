package repository

const (
	// DefaultLimit is the number of products returned when no limit is given.
	DefaultLimit = 100
	maxLimit     = 1000

	StoreField QueryField = "store"
)

type Query struct {
	Values map[QueryField]string

	Limit int
}

type QueryField string

func NewQuery() *Query {
	return &Query{
		Values: map[QueryField]string{},
		Limit:  DefaultLimit,
	}
}

func (q *Query) With(field QueryField, val string) *Query {
	if val == "" {
		return q
	}
	q.Values[field] = val
	return q
}

// ApplyLimit sets the limit, falling back to DefaultLimit for non-positive values.
func (q *Query) ApplyLimit(limit int) *Query {
	q.Limit = DefaultLimit
	if limit > 0 {
		q.Limit = min(maxLimit, limit)
	}
	return q
}

// Store returns the store filter, or "" when none is set.
func (q Query) Store() string {
	return q.Values[StoreField]
}

// EffectiveLimit returns the limit to apply in a query.
func (q Query) EffectiveLimit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}
