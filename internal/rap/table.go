package rap

// Row is one carat band of a rate or discount table. Value is the per-carat
// rate or the discount percentage, depending on the table.
type Row struct {
	ID        int64     `json:"id"`
	Color     Color     `json:"color"`
	ShapeCode ShapeCode `json:"s_code"`
	FSize     float64   `json:"f_size"`
	TSize     float64   `json:"t_size"`
	Value     float64   `json:"value"`
}

// Tables holds the full rate and discount lists.
type Tables struct {
	Rates     []Row `json:"rates"`
	Discounts []Row `json:"discounts"`
}

func (r Row) covers(color Color, code ShapeCode, carat float64) bool {
	return r.Color == color && r.ShapeCode == code && r.FSize <= carat && carat <= r.TSize
}

// narrower reports whether r should win over other when both match.
// Narrowest band first, then the higher lower bound, then the older row.
func (r Row) narrower(other Row) bool {
	rw, ow := r.TSize-r.FSize, other.TSize-other.FSize
	if rw != ow {
		return rw < ow
	}
	if r.FSize != other.FSize {
		return r.FSize > other.FSize
	}
	return r.ID < other.ID
}

// match finds the best row for the key independent of row order.
func match(rows []Row, color Color, code ShapeCode, carat float64) (Row, bool) {
	var best Row
	found := false
	for _, r := range rows {
		if !r.covers(color, code, carat) {
			continue
		}
		if !found || r.narrower(best) {
			best, found = r, true
		}
	}
	return best, found
}
