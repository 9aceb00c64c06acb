package result

// Result is one page of search hits plus the total match count.
type Result struct {
	data  []map[string]any
	count int64
}

// New creates a search result.
func New(data []map[string]any, count int64) Result {
	if data == nil {
		data = []map[string]any{}
	}
	return Result{data: data, count: count}
}

// Data returns the documents of the page.
func (r *Result) Data() []map[string]any { return r.data }

// Count returns the total number of matches across pages.
func (r *Result) Count() int64 { return r.count }
