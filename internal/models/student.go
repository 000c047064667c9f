package models

import (
	"encoding/json"
	"strings"
)

// StudentStatus is the academic situation reported by the student catalog.
type StudentStatus string

// Possible student statuses.
const (
	StudentStatusActive StudentStatus = "ACTIVE"
	StudentStatusLocked StudentStatus = "LOCKED"
)

// Student represents a learner as published by the remote student catalog.
type Student struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Course   string        `json:"course"`
	Modality string        `json:"modality"`
	Status   StudentStatus `json:"status"`
}

// Active reports whether the student may enroll.
func (s Student) Active() bool {
	return s.Status == StudentStatusActive
}

// UnmarshalJSON decodes the upstream payload, which uses Portuguese field
// names and several spellings for the status field.
func (s *Student) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID                int64           `json:"id"`
		Nome              string          `json:"nome"`
		Name              string          `json:"name"`
		Curso             string          `json:"curso"`
		Course            string          `json:"course"`
		Modalidade        string          `json:"modalidade"`
		Modality          string          `json:"modality"`
		SituacaoAcademica json.RawMessage `json:"situacaoAcademica"`
		Situacao          json.RawMessage `json:"situacao"`
		Status            json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.ID = raw.ID
	s.Name = firstNonEmpty(raw.Nome, raw.Name)
	s.Course = firstNonEmpty(raw.Curso, raw.Course)
	s.Modality = firstNonEmpty(raw.Modalidade, raw.Modality)
	s.Status = ParseStudentStatus(firstPresent(raw.SituacaoAcademica, raw.Situacao, raw.Status))
	return nil
}

// ParseStudentStatus maps a raw JSON status value onto StudentStatus.
// Booleans map to active/locked. Strings are matched exactly first and then by
// prefix or fragment; only an explicit locking word yields LOCKED. Absent,
// blank and unrecognised values are ACTIVE.
func ParseStudentStatus(raw json.RawMessage) StudentStatus {
	if isAbsent(raw) {
		return StudentStatusActive
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return StudentStatusActive
		}
		return StudentStatusLocked
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return StudentStatusActive
	}
	value := strings.ToUpper(strings.TrimSpace(str))
	switch value {
	case "ATIVO", "ATIVA", "ACTIVE":
		return StudentStatusActive
	case "TRANCADO", "TRANCADA", "LOCKED", "SUSPENDED", "SUSPENSO", "INATIVO", "INACTIVE":
		return StudentStatusLocked
	}
	for _, marker := range lockedMarkers {
		if strings.HasPrefix(value, marker) || strings.Contains(value, " "+marker) {
			return StudentStatusLocked
		}
	}
	return StudentStatusActive
}

var lockedMarkers = []string{"TRANC", "SUSP", "INATIV", "INACTIV", "LOCK"}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPresent(values ...json.RawMessage) json.RawMessage {
	for _, v := range values {
		if !isAbsent(v) {
			return v
		}
	}
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}
