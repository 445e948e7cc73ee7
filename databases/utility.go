package databases

// Page size bounds for list queries
const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// NormalizePage clamps a limit/offset pair into the supported range
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// OffsetForPage converts a 1-based page number into an offset
func OffsetForPage(limit, page int) int {
	if page <= 1 {
		return 0
	}
	return page*limit - limit
}
