// Package container builds the dependency injection container.
package container

import (
	"go.uber.org/dig"

	"gymgate/internal/app"
	"gymgate/internal/config"
	"gymgate/internal/db"
	"gymgate/internal/handler"
	"gymgate/internal/membership"
	"gymgate/internal/router"
	"gymgate/internal/services"
	"gymgate/internal/store"
	"gymgate/internal/types"
)

// BuildContainer creates and configures the dig container with every
// constructor the application needs.
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	constructors := []any{
		// Configuration
		config.NewSystemSettingsManager,
		config.NewManager,

		// Infrastructure
		db.NewDB,
		store.NewStore,

		// External collaborators
		func(configManager types.ConfigManager) membership.Validator {
			return membership.NewHTTPValidator(configManager)
		},

		// Domain services
		services.NewCapacityService,
		services.NewAttendanceService,
		services.NewStaleSessionReaper,

		// HTTP surface
		handler.NewServer,
		router.NewRouter,

		// Application
		app.NewApp,
	}

	for _, constructor := range constructors {
		if err := container.Provide(constructor); err != nil {
			return nil, err
		}
	}

	return container, nil
}
