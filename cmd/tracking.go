package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"snap-confine-go/cgroup"
	"snap-confine-go/naming"
)

var trackingCmd = &cobra.Command{
	Use:    "tracking SNAP-NAME",
	Short:  "Report whether any process of a snap is still tracked",
	Hidden: true,
	Args:   cobra.ExactArgs(1),
	RunE:   runTracking,
}

func init() {
	rootCmd.AddCommand(trackingCmd)
}

func runTracking(cmd *cobra.Command, args []string) error {
	snapName := args[0]
	if err := naming.ValidateSnapName(snapName); err != nil {
		return err
	}

	unified, err := cgroup.IsUnified()
	if err != nil {
		return err
	}

	var tracked bool
	if unified {
		tracked, err = cgroup.IsTrackingSnap(snapName)
	} else {
		tracked, err = cgroup.IsTrackingOccupied(snapName)
	}
	if err != nil {
		return err
	}

	if tracked {
		fmt.Printf("snap %s is running\n", snapName)
	} else {
		fmt.Printf("snap %s is not running\n", snapName)
	}
	return nil
}
