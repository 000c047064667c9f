package repository

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/academic-desk/internal/models"
)

func TestCatalogClientFetchAllDecodesUpstreamPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 1, "nome": "Ana", "curso": "Engenharia", "modalidade": "EAD", "situacaoAcademica": "ATIVO"},
			{"id": 2, "nome": "Bruno", "curso": "Direito", "status": false}
		]`))
	}))
	defer srv.Close()

	client := NewCatalogClient[models.Student]("students", srv.URL, time.Second, nil)
	students, err := client.FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, students, 2)
	assert.Equal(t, "Ana", students[0].Name)
	assert.True(t, students[0].Active())
	assert.Equal(t, models.StudentStatusLocked, students[1].Status)
}

func TestCatalogClientFetchAllRejectsNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewCatalogClient[models.Book]("books", srv.URL, time.Second, nil)
	_, err := client.FetchAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCatalogClientFetchAllTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := NewCatalogClient[models.Discipline]("disciplines", srv.URL, 50*time.Millisecond, nil)
	_, err := client.FetchAll(context.Background())
	require.Error(t, err)
}

func TestCatalogClientFetchAllEmptyAndMalformed(t *testing.T) {
	serve := func(body string) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
	}

	empty := serve(`null`)
	defer empty.Close()
	items, err := NewCatalogClient[models.Discipline]("disciplines", empty.URL, time.Second, nil).FetchAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	malformed := serve(`{"not": "an array"}`)
	defer malformed.Close()
	_, err = NewCatalogClient[models.Discipline]("disciplines", malformed.URL, time.Second, nil).FetchAll(context.Background())
	require.Error(t, err)
}

func TestCatalogClientRequiresURL(t *testing.T) {
	client := NewCatalogClient[models.Book]("books", "", 0, nil)
	_, err := client.FetchAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, "books", client.Name())
}
