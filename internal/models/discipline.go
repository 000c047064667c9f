package models

import "encoding/json"

// Discipline is a course unit published by the remote discipline catalog.
// Capacity is the nominal seat ceiling, not the live availability.
type Discipline struct {
	ID       int64  `json:"id"`
	Course   string `json:"course"`
	Name     string `json:"name"`
	Capacity *int   `json:"capacity"`
}

// NominalCapacity returns the catalog ceiling, zero when unknown.
func (d Discipline) NominalCapacity() int {
	if d.Capacity == nil {
		return 0
	}
	return *d.Capacity
}

// UnmarshalJSON accepts the upstream Portuguese field names.
func (d *Discipline) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID       int64  `json:"id"`
		Curso    string `json:"curso"`
		Course   string `json:"course"`
		Nome     string `json:"nome"`
		Name     string `json:"name"`
		Vagas    *int   `json:"vagas"`
		Capacity *int   `json:"capacity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.ID = raw.ID
	d.Course = firstNonEmpty(raw.Curso, raw.Course)
	d.Name = firstNonEmpty(raw.Nome, raw.Name)
	d.Capacity = raw.Vagas
	if d.Capacity == nil {
		d.Capacity = raw.Capacity
	}
	return nil
}

// DisciplineSeats pairs a discipline with its live seat count.
type DisciplineSeats struct {
	Discipline
	SeatsLeft int `json:"seats_left"`
}
