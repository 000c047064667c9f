package models

import (
	"encoding/json"
	"strings"
)

// BookAvailability is the lending state reported by the remote library catalog.
type BookAvailability string

// Possible book availability values.
const (
	BookAvailable   BookAvailability = "AVAILABLE"
	BookUnavailable BookAvailability = "UNAVAILABLE"
)

// Book is a title held by the remote library catalog.
type Book struct {
	ID           int64            `json:"id"`
	Title        string           `json:"title"`
	Author       string           `json:"author"`
	Year         int              `json:"year"`
	Availability BookAvailability `json:"availability"`
}

// RemotelyAvailable reports the catalog's own lending flag.
func (b Book) RemotelyAvailable() bool {
	return b.Availability == BookAvailable
}

// UnmarshalJSON accepts the upstream field names and availability encodings.
func (b *Book) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                    int64           `json:"id"`
		Titulo                string          `json:"titulo"`
		Title                 string          `json:"title"`
		Autor                 string          `json:"autor"`
		Author                string          `json:"author"`
		Ano                   int             `json:"ano"`
		Year                  int             `json:"year"`
		StatusDisponibilidade json.RawMessage `json:"statusDisponibilidade"`
		Status                json.RawMessage `json:"status"`
		Disponibilidade       json.RawMessage `json:"disponibilidade"`
		Disponivel            json.RawMessage `json:"disponivel"`
		Availability          json.RawMessage `json:"availability"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.ID = raw.ID
	b.Title = firstNonEmpty(raw.Titulo, raw.Title)
	b.Author = firstNonEmpty(raw.Autor, raw.Author)
	b.Year = raw.Ano
	if b.Year == 0 {
		b.Year = raw.Year
	}
	b.Availability = ParseBookAvailability(firstPresent(raw.StatusDisponibilidade, raw.Status, raw.Disponibilidade, raw.Disponivel, raw.Availability))
	return nil
}

// ParseBookAvailability maps a raw JSON availability value onto BookAvailability.
// Absent or unrecognised values are unavailable.
func ParseBookAvailability(raw json.RawMessage) BookAvailability {
	if isAbsent(raw) {
		return BookUnavailable
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return BookAvailable
		}
		return BookUnavailable
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n != 0 {
			return BookAvailable
		}
		return BookUnavailable
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return BookUnavailable
	}
	value := strings.ToUpper(strings.TrimSpace(str))
	switch value {
	case "DISPONIVEL", "DISPONÍVEL", "AVAILABLE":
		return BookAvailable
	case "INDISPONIVEL", "INDISPONÍVEL", "UNAVAILABLE":
		return BookUnavailable
	}
	switch {
	case strings.HasPrefix(value, "IN"), strings.HasPrefix(value, "UN"):
		return BookUnavailable
	case strings.Contains(value, "DISP"), strings.Contains(value, "AVAIL"):
		return BookAvailable
	}
	return BookUnavailable
}
