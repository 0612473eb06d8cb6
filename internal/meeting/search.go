package meeting

import "strings"

// Searchable exposes named string fields for free-text search.
type Searchable interface {
	Text(field string) (string, bool)
}

// SearchByText keeps records where any of fields contains query,
// case-insensitively. A blank query keeps everything.
func SearchByText[R Searchable](records []R, query string, fields []string) []R {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return records
	}
	out := make([]R, 0, len(records))
	for _, r := range records {
		for _, f := range fields {
			v, ok := r.Text(f)
			if ok && strings.Contains(strings.ToLower(v), q) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
