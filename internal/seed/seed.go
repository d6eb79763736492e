package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/academy/internal/clock"
	"github.com/smallbiznis/academy/internal/config"
	coursedomain "github.com/smallbiznis/academy/internal/course/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(run),
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Cfg   config.Config
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

func run(p Params) error {
	if !p.Cfg.SeedCatalog {
		return nil
	}
	created, err := EnsureCatalog(context.Background(), p.DB, p.GenID, p.Clock.Now())
	if err != nil {
		return err
	}
	p.Log.Named("seed").Info("course catalog seeded", zap.Int("created", created))
	return nil
}

type catalogCourse struct {
	slug        string
	title       string
	description string
	price       int64
	capacity    int
	startsAt    time.Time
}

var catalog = []catalogCourse{
	{
		slug:        "grundlagen-persoenlichkeitsentwicklung",
		title:       "Grundlagen der Persönlichkeitsentwicklung",
		description: "Entdecken Sie die Basics der persönlichen Entwicklung.",
		price:       10000,
		capacity:    20,
		startsAt:    time.Date(2025, 11, 15, 10, 0, 0, 0, time.UTC),
	},
	{
		slug:        "selbstvertrauen-30-minuten",
		title:       "Selbstvertrauen in 30 Minuten",
		description: "Schnelle und effektive Techniken zur Stärkung Ihres Selbstvertrauens.",
		price:       10000,
		capacity:    25,
		startsAt:    time.Date(2025, 11, 20, 14, 0, 0, 0, time.UTC),
	},
	{
		slug:        "stressabbau-anfaenger",
		title:       "Stressabbau für Anfänger",
		description: "Einfache Methoden zum Stressabbau für den Alltag.",
		price:       10000,
		capacity:    30,
		startsAt:    time.Date(2025, 11, 25, 16, 0, 0, 0, time.UTC),
	},
	{
		slug:        "pitch-training-kompakt",
		title:       "Pitch-Training kompakt",
		description: "In 90 Minuten zum überzeugenden Pitch.",
		price:       9900,
		capacity:    12,
		startsAt:    time.Date(2026, 4, 5, 12, 0, 0, 0, time.UTC),
	},
	{
		slug:        "design-thinking-crashkurs",
		title:       "Design Thinking Crashkurs",
		description: "Kundenzentriert Probleme lösen, von Research bis Prototyping.",
		price:       12900,
		capacity:    20,
		startsAt:    time.Date(2026, 4, 16, 10, 0, 0, 0, time.UTC),
	},
}

// EnsureCatalog inserts the demo courses that are missing, matched by slug.
// Existing rows are left untouched.
func EnsureCatalog(ctx context.Context, db *gorm.DB, node *snowflake.Node, now time.Time) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	if node == nil {
		return 0, errors.New("seed id generator is required")
	}

	created := 0
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range catalog {
			var existing coursedomain.Course
			err := tx.WithContext(ctx).Where("slug = ?", c.slug).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			capacity := c.capacity
			startsAt := c.startsAt
			course := coursedomain.Course{
				ID:          node.Generate().String(),
				Slug:        c.slug,
				Title:       c.title,
				Description: c.description,
				Price:       c.price,
				Currency:    "EUR",
				Capacity:    &capacity,
				IsPublished: true,
				StartsAt:    &startsAt,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.WithContext(ctx).Create(&course).Error; err != nil {
				return err
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}
