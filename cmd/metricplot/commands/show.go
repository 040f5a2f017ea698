package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/metricplot/pkg/plotpage"
	"github.com/Sumatoshi-tech/metricplot/pkg/report"
)

// Show output formats.
const (
	FormatText = "text"
	FormatTSV  = "tsv"
)

// ShowCommand prints a saved report.
type ShowCommand struct {
	format  string
	html    string
	theme   string
	noColor bool
}

// NewShowCommand creates the show command.
func NewShowCommand() *cobra.Command {
	sc := &ShowCommand{}

	cmd := &cobra.Command{
		Use:   "show <report-dir>",
		Short: "Print a report written by eval",
		Args:  cobra.ExactArgs(1),
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.format, "format", FormatText, "Output format: text, tsv")
	cmd.Flags().StringVar(&sc.html, "html", "", "Also render the learning-curve page to this file")
	cmd.Flags().StringVar(&sc.theme, "theme", string(plotpage.ThemeDark), "Learning-curve theme: dark, light")
	cmd.Flags().BoolVar(&sc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (sc *ShowCommand) run(cmd *cobra.Command, args []string) error {
	if sc.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	res, err := report.Load(args[0])
	if err != nil {
		return fmt.Errorf("load report: %w", err)
	}

	out := cmd.OutOrStdout()

	switch sc.format {
	case FormatTSV:
		err = report.WriteScores(out, res)
	case FormatText:
		err = report.RenderTable(out, res)
		if err == nil {
			report.PrintSummary(out, res.Summarize())
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownFormat, sc.format)
	}

	if err != nil {
		return err
	}

	if sc.html == "" {
		return nil
	}

	return writePage(sc.html, res.LearningCurve(filepath.Base(filepath.Clean(args[0])), plotpage.ParseTheme(sc.theme)))
}

func writePage(path string, page *plotpage.Page) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	err = page.Render(file)
	closeErr := file.Close()

	if err != nil {
		return err
	}

	if closeErr != nil {
		return fmt.Errorf("close %s: %w", path, closeErr)
	}

	return nil
}
