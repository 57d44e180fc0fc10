package migrate

import (
	"context"

	"github.com/baderkha/shelter/pkg/migrate/config"
)

// Runner : runs migration between a source and a destination
type Runner interface {
	Run(ctx context.Context, job config.Job) (*Summary, error)
}
