package rankctl

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/okian/pcarank/internal/cutover"
	"github.com/okian/pcarank/internal/domain/model"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
	keyColor  = color.New(color.FgCyan)
)

func printf(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

// writeRankingTable renders one ranking as an aligned table.
func writeRankingTable(w io.Writer, title string, rows []model.RankingRow) error {
	if err := printf(w, "%s\n", keyColor.Sprint(title)); err != nil {
		return err
	}
	if len(rows) == 0 {
		return printf(w, "%s\n", warnColor.Sprint("no results"))
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Rank", "Name", "WCA ID", "Result", "Competition", "Solves"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	data := make([][]string, 0, len(rows))
	for _, r := range rows {
		data = append(data, []string{
			strconv.Itoa(r.Rank),
			r.PersonName,
			r.PersonID,
			r.Value,
			r.CompetitionID,
			r.Solves,
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	return table.Render()
}

// writeReport summarizes a finished cutover run.
func writeReport(w io.Writer, rep *cutover.Report) error {
	switch {
	case rep.Skipped:
		if err := printf(w, "%s export %s already imported\n", warnColor.Sprint("skipped"), rep.Export.ExportDate); err != nil {
			return err
		}
	case rep.Cancelled:
		if err := printf(w, "%s run %s\n", warnColor.Sprint("cancelled"), rep.RunID); err != nil {
			return err
		}
	default:
		if err := printf(w, "%s dataset %s is now active\n", okColor.Sprint("swapped"), rep.Active); err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Field", "Value"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})
	data := [][]string{
		{"run", rep.RunID},
		{"export date", rep.Export.ExportDate},
		{"target", string(rep.Target)},
		{"persons", strconv.Itoa(rep.Imported.Persons)},
		{"ranks", strconv.Itoa(rep.Imported.Ranks)},
		{"results", strconv.Itoa(rep.Imported.Results)},
		{"invalidated", strconv.Itoa(rep.Invalidated)},
		{"recompute tasks", strconv.Itoa(len(rep.RecomputeTasks))},
		{"elapsed", rep.FinishedAt.Sub(rep.StartedAt).String()},
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	for _, warning := range rep.Warnings {
		if err := printf(w, "%s %s\n", warnColor.Sprint("warning:"), warning); err != nil {
			return err
		}
	}
	return nil
}
