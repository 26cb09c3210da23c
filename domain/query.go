package domain

import "sort"

type SortDirection int

const (
	Ascending SortDirection = iota
	Descending
)

// Query describes one evaluation over a collection: a predicate, a numeric
// sort key, a direction and an optional limit. Queries are cheap values,
// recreated for each evaluation; they hold no state.
//
// A nil Match accepts every document. A nil SortKey sorts by document id
// alone. Sort-key ties are always broken by document id so that the order
// is stable across re-evaluations.
type Query struct {
	Collection Collection
	Match      func(Document) bool
	SortKey    func(Document) int64
	Direction  SortDirection
	Limit      int // 0 means unbounded
}

// Apply filters, sorts and limits docs. The input slice is not modified.
func (q Query) Apply(docs []Document) []Document {
	var out []Document
	for _, d := range docs {
		if q.Match == nil || q.Match(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return q.less(out[i], out[j]) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (q Query) less(a, b Document) bool {
	var ka, kb int64
	if q.SortKey != nil {
		ka, kb = q.SortKey(a), q.SortKey(b)
	}
	if ka != kb {
		if q.Direction == Descending {
			return ka > kb
		}
		return ka < kb
	}
	return a.DocumentID() < b.DocumentID()
}
