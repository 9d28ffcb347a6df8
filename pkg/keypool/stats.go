package keypool

// Stats summarizes the pool for operator screens.
type Stats struct {
	Total     int    `json:"total"`
	Active    int    `json:"active"`
	Exhausted int    `json:"exhausted"`
	Unused    int    `json:"unused"`
	LastUsed  string `json:"lastUsed,omitempty"`
}

// Stats counts records by state and names the most recently used record.
func (p Pool) Stats() Stats {
	s := Stats{Total: len(p)}
	var latest *KeyRecord
	for i := range p {
		r := &p[i]
		if r.Active {
			s.Active++
		}
		if r.Exhausted {
			s.Exhausted++
		}
		if r.LastUsed == nil {
			s.Unused++
			continue
		}
		if latest == nil || r.LastUsed.After(*latest.LastUsed) {
			latest = r
		}
	}
	if latest != nil {
		s.LastUsed = latest.Name
	}
	return s
}
