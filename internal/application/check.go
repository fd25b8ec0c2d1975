package application

import (
	"context"
	"sort"
	"strings"

	"mysql-hotbackup/internal/config"
)

// Check runs the preflight checks and, unless skipTopology is set, resolves
// the source directories the way a backup would. The result is printed and
// returned; only unusable collaborators are reported as errors.
func (app *Application) Check(ctx context.Context, skipTopology bool) (*config.HealthCheckResult, error) {
	provider, storageErr := app.storageProvider(ctx)

	result := config.NewPreflight(app.config, provider).Run(ctx)
	if storageErr != nil {
		result.Record("storage", storageErr, false)
	}

	if !skipTopology {
		result.Record("topology", app.resolveTopology(ctx), true)
	}

	app.printHealth(result)
	return result, nil
}

func (app *Application) resolveTopology(ctx context.Context) error {
	provider, release, err := app.configProvider(ctx)
	if err != nil {
		return err
	}
	defer release()

	backupLogger, err := app.newBackupLogger()
	if err != nil {
		return err
	}
	defer backupLogger.Close()

	invoker, err := app.newInvoker(provider, backupLogger)
	if err != nil {
		return err
	}
	_, err = invoker.Resolve(ctx)
	return err
}

func (app *Application) printHealth(result *config.HealthCheckResult) {
	if app.display.GetConfig().Format().IsStructured() {
		app.display.PrintValue(result)
		return
	}

	components := make([]string, 0, len(result.ComponentStatus))
	for component := range result.ComponentStatus {
		components = append(components, component)
	}
	sort.Strings(components)

	rows := make([][]string, 0, len(components))
	for _, component := range components {
		rows = append(rows, []string{component, result.ComponentStatus[component]})
	}
	app.display.PrintHeader("Preflight")
	app.display.PrintTable([]string{"COMPONENT", "STATUS"}, rows)

	if len(result.Issues) > 0 {
		app.display.PrintSection("Issues", result.Issues)
	}
	if len(result.Recommendations) > 0 {
		app.display.PrintSection("Recommendations", result.Recommendations)
	}

	switch result.OverallHealth {
	case config.HealthHealthy:
		app.display.Success("Ready to back up")
	case config.HealthDegraded:
		app.display.Warning("Ready to back up, archive offload may fail: " + strings.Join(result.Issues, "; "))
	default:
		app.display.Error("Not ready to back up")
	}
}
