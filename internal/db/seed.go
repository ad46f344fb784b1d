package db

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/storify-asia/storify/pkg/logger"
	"github.com/storify-asia/storify/svc/catalog"
	"github.com/storify-asia/storify/svc/subscription"
)

//go:embed seed.yaml
var seedYAML []byte

type SeedData struct {
	Plans []subscription.Plan `yaml:"plans"`
	Books []catalog.NewBook   `yaml:"books"`
}

// LoadSeed parses the embedded seed file.
func LoadSeed() (SeedData, error) {
	return ParseSeed(seedYAML)
}

func ParseSeed(raw []byte) (SeedData, error) {
	var data SeedData
	if err := yaml.Unmarshal(raw, &data); err != nil {
		return SeedData{}, fmt.Errorf("parse seed: %w", err)
	}
	return data, nil
}

type PlanStore interface {
	UpsertPlan(ctx context.Context, p subscription.Plan) (int64, error)
}

type BookStore interface {
	ListBooks(ctx context.Context, p catalog.ListParams) ([]catalog.Book, error)
	CreateBook(ctx context.Context, nb catalog.NewBook) (*catalog.Book, error)
}

type SeedResult struct {
	Plans int
	Books int
}

// Seed upserts plans by name. Books are only inserted into an empty catalog.
func Seed(ctx context.Context, data SeedData, plans PlanStore, books BookStore, log *slog.Logger) (SeedResult, error) {
	var res SeedResult
	for _, p := range data.Plans {
		if _, err := plans.UpsertPlan(ctx, p); err != nil {
			return res, fmt.Errorf("seed plan %q: %w", p.Name, err)
		}
		res.Plans++
	}

	existing, err := books.ListBooks(ctx, catalog.ListParams{})
	if err != nil {
		return res, fmt.Errorf("list books: %w", err)
	}
	if len(existing) > 0 {
		log.InfoContext(ctx, "catalog not empty, skipping books", slog.Int("books", len(existing)))
		return res, nil
	}
	for _, b := range data.Books {
		if _, err := books.CreateBook(ctx, b); err != nil {
			return res, fmt.Errorf("seed book %q: %w", b.Title, err)
		}
		res.Books++
	}

	log.InfoContext(ctx, "seed applied",
		slog.Int("plans", res.Plans),
		slog.Int("books", res.Books),
		logger.Component("seed"),
	)
	return res, nil
}
