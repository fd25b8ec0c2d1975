package application

import (
	"context"
	"fmt"
	"time"

	"mysql-hotbackup/internal/backup"
)

// PlanReport is the resolved topology of a backup, printed by plan
type PlanReport struct {
	Sources      []backup.CandidateEntry `json:"sources" yaml:"sources"`
	Skipped      []backup.SkippedSource  `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Destinations *backup.DestinationPlan `json:"destinations,omitempty" yaml:"destinations,omitempty"`
}

// Plan resolves the source directories and, when target is set, the
// destinations they map to. Nothing is created.
func (app *Application) Plan(ctx context.Context, target string) (*PlanReport, error) {
	provider, release, err := app.configProvider(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	backupLogger, err := app.newBackupLogger()
	if err != nil {
		return nil, err
	}
	defer backupLogger.Close()

	invoker, err := app.newInvoker(provider, backupLogger)
	if err != nil {
		return nil, err
	}

	report := &PlanReport{}
	var set *backup.SourceSet
	if target == "" {
		set, err = invoker.Resolve(ctx)
	} else {
		set, report.Destinations, err = invoker.Plan(ctx, target)
	}
	if err != nil {
		return nil, err
	}
	report.Sources = set.Entries()
	report.Skipped = set.Skipped()

	app.printPlan(report)
	return report, nil
}

func (app *Application) printPlan(report *PlanReport) {
	if app.display.GetConfig().Format().IsStructured() {
		app.display.PrintValue(report)
		return
	}

	app.display.PrintHeader("Backup Plan")

	destinations := make(map[string]string)
	if report.Destinations != nil {
		for _, d := range report.Destinations.Destinations {
			destinations[d.Source] = d.Path
		}
	}

	headers := []string{"ROLE", "SOURCE", "STATUS"}
	if report.Destinations != nil {
		headers = append(headers, "DESTINATION")
	}
	rows := make([][]string, 0, len(report.Sources))
	for _, entry := range report.Sources {
		status := app.display.RenderIcon("source") + " copied"
		if !entry.Valid {
			status = app.display.RenderIcon("redundant") + " covered by parent"
		}
		row := []string{entry.Role.String(), entry.Path, status}
		if report.Destinations != nil {
			row = append(row, destinations[entry.Path])
		}
		rows = append(rows, row)
	}
	app.display.PrintTable(headers, rows)

	if len(report.Skipped) > 0 {
		lines := make([]string, 0, len(report.Skipped))
		for _, s := range report.Skipped {
			line := fmt.Sprintf("%s (%s): %s", s.Role, s.Variable, s.Reason)
			if s.Value != "" {
				line = fmt.Sprintf("%s (%s=%q): %s", s.Role, s.Variable, s.Value, s.Reason)
			}
			lines = append(lines, line)
		}
		app.display.PrintSection("Skipped", lines)
	}
}

// Backup runs a hot backup into target, or into backup.target when target
// is empty. Only one backup runs at a time on a host.
func (app *Application) Backup(ctx context.Context, target string) (*backup.Manifest, error) {
	if target == "" {
		target = app.config.Backup.Target
	}
	if target == "" {
		return nil, backup.NewValidationError("a backup target directory is required", nil)
	}

	lock, err := acquireLock(app.config.Backup.LockFile, app.logger)
	if err != nil {
		return nil, err
	}
	defer lock.release()

	ctx, stop := app.withShutdown(ctx)
	defer stop()

	provider, release, err := app.configProvider(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	backupLogger, err := app.newBackupLogger()
	if err != nil {
		return nil, err
	}
	defer backupLogger.Close()

	invoker, err := app.newInvoker(provider, backupLogger)
	if err != nil {
		return nil, err
	}

	app.display.Info(fmt.Sprintf("Starting backup into %s", target))

	board := backup.NewStatusBoard()
	status := app.display.StartStatusLine(board)
	manifest, err := invoker.Run(ctx, target, board)
	status.Stop("")
	if err != nil {
		return nil, err
	}

	app.printManifest(manifest)
	return manifest, nil
}

func (app *Application) printManifest(manifest *backup.Manifest) {
	if app.display.GetConfig().Format().IsStructured() {
		app.display.PrintValue(manifest)
		return
	}

	rows := make([][]string, 0, len(manifest.Destinations))
	for _, d := range manifest.Destinations {
		rows = append(rows, []string{d.Role.String(), d.Source, d.Path})
	}
	app.display.PrintTable([]string{"ROLE", "SOURCE", "DESTINATION"}, rows)

	elapsed := manifest.CompletedAt.Sub(manifest.StartedAt).Round(time.Millisecond)
	app.display.Success(fmt.Sprintf("Backup %s completed in %s", manifest.ID, elapsed))
}
