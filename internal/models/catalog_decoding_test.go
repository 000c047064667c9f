package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStudentStatusDecoding(t *testing.T) {
	cases := []struct {
		payload string
		want    StudentStatus
	}{
		{`{"situacaoAcademica": "ATIVO"}`, StudentStatusActive},
		{`{"situacao": "ativa"}`, StudentStatusActive},
		{`{"status": true}`, StudentStatusActive},
		{`{"status": false}`, StudentStatusLocked},
		{`{"status": "TRANCADO"}`, StudentStatusLocked},
		{`{"status": "inativo"}`, StudentStatusLocked},
		{`{"status": "Suspenso temporario"}`, StudentStatusLocked},
		{`{"status": "matricula trancada"}`, StudentStatusLocked},
		{`{"status": "ATIVIDADE REGULAR"}`, StudentStatusActive},
		{`{"situacaoAcademica": "MATRICULADO"}`, StudentStatusActive},
		{`{"status": "REGULAR"}`, StudentStatusActive},
		{`{"status": "graduated"}`, StudentStatusActive},
		{`{"status": 7}`, StudentStatusActive},
		{`{"status": ""}`, StudentStatusActive},
		{`{"status": null}`, StudentStatusActive},
		{`{}`, StudentStatusActive},
		{`{"situacaoAcademica": null, "status": "LOCKED"}`, StudentStatusLocked},
	}
	for _, tc := range cases {
		var s Student
		require.NoError(t, json.Unmarshal([]byte(tc.payload), &s), tc.payload)
		assert.Equal(t, tc.want, s.Status, tc.payload)
		assert.Equal(t, tc.want == StudentStatusActive, s.Active(), tc.payload)
	}
}

func TestStudentDecodingFieldNames(t *testing.T) {
	var s Student
	require.NoError(t, json.Unmarshal([]byte(`{"id": 4, "nome": "Carla", "curso": "Medicina", "modalidade": "Presencial", "situacaoAcademica": "ATIVO"}`), &s))
	assert.Equal(t, Student{ID: 4, Name: "Carla", Course: "Medicina", Modality: "Presencial", Status: StudentStatusActive}, s)
	assert.True(t, s.Active())
}

func TestDisciplineDecoding(t *testing.T) {
	var d Discipline
	require.NoError(t, json.Unmarshal([]byte(`{"id": 10, "curso": "Engenharia", "nome": "Calculo I", "vagas": 30}`), &d))
	assert.Equal(t, int64(10), d.ID)
	assert.Equal(t, "Calculo I", d.Name)
	assert.Equal(t, 30, d.NominalCapacity())

	var missing Discipline
	require.NoError(t, json.Unmarshal([]byte(`{"id": 11, "nome": "Fisica"}`), &missing))
	assert.Nil(t, missing.Capacity)
	assert.Zero(t, missing.NominalCapacity())
}

func TestBookAvailabilityDecoding(t *testing.T) {
	cases := map[string]BookAvailability{
		`{"statusDisponibilidade": "DISPONIVEL"}`: BookAvailable,
		`{"status": "available"}`:                 BookAvailable,
		`{"disponibilidade": "INDISPONIVEL"}`:     BookUnavailable,
		`{"status": "Unavailable now"}`:           BookUnavailable,
		`{"disponivel": true}`:                    BookAvailable,
		`{"disponivel": false}`:                   BookUnavailable,
		`{"disponivel": 1}`:                       BookAvailable,
		`{"disponivel": 0}`:                       BookUnavailable,
		`{"status": "Disponível para retirada"}`:  BookAvailable,
		`{"status": "lost"}`:                      BookUnavailable,
		`{}`:                                      BookUnavailable,
	}
	for payload, want := range cases {
		var b Book
		require.NoError(t, json.Unmarshal([]byte(payload), &b), payload)
		assert.Equal(t, want, b.Availability, payload)
	}
}

func TestBookDecodingFieldNames(t *testing.T) {
	var b Book
	require.NoError(t, json.Unmarshal([]byte(`{"id": 300, "titulo": "Dom Casmurro", "autor": "Machado de Assis", "ano": 1899, "statusDisponibilidade": "DISPONIVEL"}`), &b))
	assert.Equal(t, "Dom Casmurro", b.Title)
	assert.Equal(t, "Machado de Assis", b.Author)
	assert.Equal(t, 1899, b.Year)
	assert.True(t, b.RemotelyAvailable())
}

func TestWarmupReportReady(t *testing.T) {
	report := WarmupReport{Results: []WarmupResult{{Catalog: "students"}, {Catalog: "books", Error: "timeout"}}}
	assert.False(t, report.Ready())
	assert.Equal(t, []string{"books"}, report.Failed())
	assert.False(t, WarmupReport{}.Ready())
	assert.True(t, WarmupReport{Results: []WarmupResult{{Catalog: "students"}}}.Ready())
}
