package models

import "time"

// WarmupResult is the outcome of preloading one catalog.
type WarmupResult struct {
	Catalog  string        `json:"catalog"`
	Entries  int           `json:"entries"`
	Duration time.Duration `json:"duration_ns"`
	Error    string        `json:"error,omitempty"`
}

// OK reports whether the catalog loaded.
func (r WarmupResult) OK() bool {
	return r.Error == ""
}

// WarmupReport summarises a warmup run.
type WarmupReport struct {
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Results    []WarmupResult `json:"results"`
}

// Ready reports whether every catalog loaded.
func (r WarmupReport) Ready() bool {
	if len(r.Results) == 0 {
		return false
	}
	for _, res := range r.Results {
		if !res.OK() {
			return false
		}
	}
	return true
}

// Failed lists the catalogs that did not load.
func (r WarmupReport) Failed() []string {
	var names []string
	for _, res := range r.Results {
		if !res.OK() {
			names = append(names, res.Catalog)
		}
	}
	return names
}

// CatalogStatus is the live state of one catalog snapshot.
type CatalogStatus struct {
	Catalog  string     `json:"catalog"`
	Entries  int        `json:"entries"`
	LoadedAt *time.Time `json:"loaded_at,omitempty"`
}
