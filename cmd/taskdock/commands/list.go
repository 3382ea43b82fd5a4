package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List open windows",
	Long: `List all open windows as TaskDock orders them.

This command connects to the X11 server, runs one pipeline cycle and prints
the resulting view, grouped per display and desktop.`,
	Example: `  # List windows in table format (default)
  taskdock list

  # List windows in JSON format
  taskdock list --format json

  # List the aggregate container only
  taskdock list --aggregate`,
	RunE: runList,
}

var (
	listFormat    string
	listAggregate bool
	listTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "output format (table or json)")
	listCmd.Flags().BoolVarP(&listAggregate, "aggregate", "a", false, "show only the aggregate container")
	listCmd.Flags().DurationVar(&listTimeout, "timeout", 5*time.Second, "how long to wait for the first view")
}

func runList(cmd *cobra.Command, args []string) error {
	if listFormat != "table" && listFormat != "json" {
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", listFormat)
	}

	configMgr, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := newDaemon(configMgr.Get(), modeReadOnly)
	if err != nil {
		return err
	}
	defer rt.Close()

	updates := rt.hub.Subscribe()
	defer rt.hub.Unsubscribe(updates)

	ctx, cancel := context.WithTimeout(context.Background(), listTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- rt.driver.Run(ctx) }()

	var view model.View
	select {
	case view = <-updates:
	case <-ctx.Done():
		return fmt.Errorf("no window view within %s", listTimeout)
	}
	cancel()
	<-done

	containers := view.Containers
	if listAggregate {
		containers = []model.ContainerView{view.Aggregate}
	}

	switch listFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if listAggregate {
			return encoder.Encode(view.Aggregate)
		}
		return encoder.Encode(view)
	default:
		return printWindowsTable(os.Stdout, containers, view.Active)
	}
}

func printWindowsTable(out io.Writer, containers []model.ContainerView, active model.WindowID) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintln(w, "CONTAINER\tID\tAPP\tPINNED\tTITLE")
	fmt.Fprintln(w, "---------\t--\t---\t------\t-----")

	for _, cv := range containers {
		if len(cv.Windows) == 0 {
			fmt.Fprintf(w, "%s\t-\t-\t-\t(empty)\n", cv.ID)
			continue
		}
		for _, win := range cv.Windows {
			pinned := "No"
			if win.Pinned {
				pinned = "Yes"
			}
			title := win.Title
			if win.ID == active {
				title = "* " + title
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", cv.ID, win.ID, win.AppID, pinned, title)
		}
	}

	return w.Flush()
}
