package resolve

// Map returns a copy of the id -> symbol mapping.
func (x Index) Map() map[string]string {
	out := make(map[string]string, len(x.symbols))
	for id, s := range x.symbols {
		out[id] = s
	}
	return out
}
