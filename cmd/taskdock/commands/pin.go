package commands

import (
	"fmt"
	"strconv"

	"github.com/bryanchriswhite/taskdock/internal/config"
	"github.com/bryanchriswhite/taskdock/internal/model"
	"github.com/bryanchriswhite/taskdock/internal/pins"
	"github.com/bryanchriswhite/taskdock/internal/pipeline"
	"github.com/spf13/cobra"
)

var pinCmd = &cobra.Command{
	Use:   "pin",
	Short: "Manage pinned windows and applications",
	Long: `Pin or unpin windows and applications in the pin store.

A running server loads pins at startup; use the API to change pins while
it is running.`,
}

var pinWindowCmd = &cobra.Command{
	Use:   "window add|remove|toggle ID",
	Short: "Pin, unpin or toggle a window",
	Example: `  # Pin window 0x3a00007
  taskdock pin window add 0x3a00007

  # Toggle a window by decimal id
  taskdock pin window toggle 60817415`,
	Args: cobra.ExactArgs(2),
	RunE: runPinWindow,
}

var pinAppCmd = &cobra.Command{
	Use:   "app add|remove APP",
	Short: "Pin or unpin an application",
	Example: `  # Pin Firefox
  taskdock pin app add firefox

  # Unpin the terminal
  taskdock pin app remove gnome-terminal-server`,
	Args: cobra.ExactArgs(2),
	RunE: runPinApp,
}

var pinListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pinned windows and applications",
	RunE:  runPinList,
}

func init() {
	rootCmd.AddCommand(pinCmd)
	pinCmd.AddCommand(pinWindowCmd)
	pinCmd.AddCommand(pinAppCmd)
	pinCmd.AddCommand(pinListCmd)
}

func withRegistry(fn func(*pins.Registry) error) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, reg, err := openPins(configMgr.Get())
	if err != nil {
		return err
	}
	defer store.Close()

	return fn(reg)
}

// parseWindowID accepts decimal or 0x-prefixed hex window ids.
func parseWindowID(s string) (model.WindowID, error) {
	id, err := strconv.ParseUint(s, 0, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid window id: %s", s)
	}
	return model.WindowID(id), nil
}

func runPinWindow(cmd *cobra.Command, args []string) error {
	op, err := pipeline.ParsePinOp(args[0])
	if err != nil {
		return err
	}
	id, err := parseWindowID(args[1])
	if err != nil {
		return err
	}

	return withRegistry(func(reg *pins.Registry) error {
		switch op {
		case pipeline.PinOpPin:
			err = reg.Pin(id)
		case pipeline.PinOpUnpin:
			err = reg.Unpin(id)
		default:
			_, err = reg.TogglePin(id)
		}
		if err != nil {
			return fmt.Errorf("failed to update pin: %w", err)
		}

		state := "unpinned"
		if reg.IsPinned(id) {
			state = "pinned"
		}
		fmt.Printf("✅ Window %d is %s\n", id, state)
		return nil
	})
}

func runPinApp(cmd *cobra.Command, args []string) error {
	op, err := pipeline.ParsePinOp(args[0])
	if err != nil {
		return err
	}
	if op == pipeline.PinOpToggle {
		return fmt.Errorf("use add or remove for applications")
	}
	app := model.AppID(args[1])

	return withRegistry(func(reg *pins.Registry) error {
		state := "pinned"
		if op == pipeline.PinOpPin {
			err = reg.PinApp(app)
		} else {
			err = reg.UnpinApp(app)
			state = "unpinned"
		}
		if err != nil {
			return fmt.Errorf("failed to update pin: %w", err)
		}

		fmt.Printf("✅ Application '%s' is %s\n", app, state)
		return nil
	})
}

func runPinList(cmd *cobra.Command, args []string) error {
	return withRegistry(func(reg *pins.Registry) error {
		fmt.Println("Pinned Windows:")
		if ids := reg.PinnedWindows(); len(ids) == 0 {
			fmt.Println("  (none)")
		} else {
			for _, id := range ids {
				fmt.Printf("  • %d (0x%x)\n", id, uint32(id))
			}
		}

		fmt.Println("\nPinned Applications:")
		if apps := reg.PinnedApps(); len(apps) == 0 {
			fmt.Println("  (none)")
		} else {
			for _, app := range apps {
				fmt.Printf("  • %s\n", app)
			}
		}
		return nil
	})
}
