package status

// Summary counts classified portfolios for the health endpoint.
type Summary struct {
	Total       int          `json:"total"`
	Bands       map[Band]int `json:"bands"`
	BeingLogged int          `json:"being_logged"`
	Locked      int          `json:"locked"`
	Unchecked   int          `json:"unchecked"`
}

// Summarize counts results per band. Every band is present in the map, with
// zero where no portfolio falls in it.
func Summarize(results []Result) Summary {
	s := Summary{Bands: make(map[Band]int, len(Bands()))}
	for _, b := range Bands() {
		s.Bands[b] = 0
	}
	for _, r := range results {
		s.Total++
		s.Bands[r.Band]++
		if r.IsBeingLogged {
			s.BeingLogged++
		}
		if r.Locked {
			s.Locked++
		}
		if !r.AllSitesChecked {
			s.Unchecked++
		}
	}
	return s
}
