// Command catalog_check fetches the three remote catalogs once and reports
// how their payloads decode, without touching the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/noah-isme/academic-desk/internal/models"
	"github.com/noah-isme/academic-desk/internal/repository"
	"github.com/noah-isme/academic-desk/internal/service"
	"github.com/noah-isme/academic-desk/pkg/config"
)

type checkResult struct {
	Catalog  string
	Entries  int
	Notes    []string
	Duration time.Duration
	Error    error
}

func main() {
	var (
		timeout time.Duration
		only    string
	)
	flag.DurationVar(&timeout, "timeout", 0, "HTTP timeout per catalog (defaults to CATALOG_HTTP_TIMEOUT)")
	flag.StringVar(&only, "only", "", "Comma separated catalogs to check (students,disciplines,books)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if timeout <= 0 {
		timeout = cfg.Catalog.HTTPTimeout
	}

	selected := selectCatalogs(only)
	ctx := context.Background()
	var results []checkResult

	if selected[service.CatalogStudents] {
		client := repository.NewCatalogClient[models.Student](service.CatalogStudents, cfg.Catalog.StudentsURL, timeout, nil)
		results = append(results, check(ctx, client, studentNotes))
	}
	if selected[service.CatalogDisciplines] {
		client := repository.NewCatalogClient[models.Discipline](service.CatalogDisciplines, cfg.Catalog.DisciplinesURL, timeout, nil)
		results = append(results, check(ctx, client, disciplineNotes))
	}
	if selected[service.CatalogBooks] {
		client := repository.NewCatalogClient[models.Book](service.CatalogBooks, cfg.Catalog.BooksURL, timeout, nil)
		results = append(results, check(ctx, client, bookNotes))
	}

	failed := printReport(results)
	if failed > 0 {
		os.Exit(1)
	}
}

func selectCatalogs(only string) map[string]bool {
	all := []string{service.CatalogStudents, service.CatalogDisciplines, service.CatalogBooks}
	selected := make(map[string]bool, len(all))
	if strings.TrimSpace(only) == "" {
		for _, name := range all {
			selected[name] = true
		}
		return selected
	}
	for _, name := range strings.Split(only, ",") {
		selected[strings.ToLower(strings.TrimSpace(name))] = true
	}
	return selected
}

type fetcher[T any] interface {
	Name() string
	FetchAll(ctx context.Context) ([]T, error)
}

func check[T any](ctx context.Context, client fetcher[T], notes func([]T) []string) checkResult {
	start := time.Now()
	items, err := client.FetchAll(ctx)
	result := checkResult{Catalog: client.Name(), Duration: time.Since(start), Error: err}
	if err != nil {
		return result
	}
	result.Entries = len(items)
	result.Notes = notes(items)
	return result
}

func studentNotes(students []models.Student) []string {
	var active, locked, noCourse int
	for _, s := range students {
		if s.Active() {
			active++
		} else {
			locked++
		}
		if strings.TrimSpace(s.Course) == "" {
			noCourse++
		}
	}
	return []string{
		fmt.Sprintf("active=%d locked=%d", active, locked),
		fmt.Sprintf("without course=%d", noCourse),
	}
}

func disciplineNotes(disciplines []models.Discipline) []string {
	var noCapacity int
	courses := make(map[string]struct{})
	for _, d := range disciplines {
		if d.NominalCapacity() <= 0 {
			noCapacity++
		}
		courses[strings.ToLower(strings.TrimSpace(d.Course))] = struct{}{}
	}
	return []string{
		fmt.Sprintf("courses=%d", len(courses)),
		fmt.Sprintf("without capacity=%d", noCapacity),
	}
}

func bookNotes(books []models.Book) []string {
	var available int
	for _, b := range books {
		if b.RemotelyAvailable() {
			available++
		}
	}
	return []string{fmt.Sprintf("available=%d unavailable=%d", available, len(books)-available)}
}

func printReport(results []checkResult) int {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "CATALOG\tENTRIES\tDURATION\tDETAILS")
	failed := 0
	for _, r := range results {
		details := strings.Join(r.Notes, "; ")
		if r.Error != nil {
			failed++
			details = fmt.Sprintf("ERROR: %v", r.Error)
		}
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n", r.Catalog, r.Entries, r.Duration.Truncate(time.Millisecond), details)
	}
	_ = writer.Flush()
	fmt.Printf("Catalogs checked: %d, failed: %d\n", len(results), failed)
	return failed
}
