package cmd

import (
	"github.com/spf13/cobra"

	"snap-confine-go/device"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Update the device set of a running snap application",
	Long: `Device updates the already configured device cgroup of a running
application, without resetting it. Hot-plug event handlers call this when
a device assigned to the snap appears or disappears.`,
}

var deviceAllowCmd = &cobra.Command{
	Use:   "allow SECURITY-TAG KIND:MAJOR:MINOR",
	Short: "Grant access to a device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateDevice(args[0], args[1], true)
	},
}

var deviceDenyCmd = &cobra.Command{
	Use:   "deny SECURITY-TAG KIND:MAJOR:MINOR",
	Short: "Revoke access to a device",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateDevice(args[0], args[1], false)
	},
}

func init() {
	deviceCmd.AddCommand(deviceAllowCmd)
	deviceCmd.AddCommand(deviceDenyCmd)
	rootCmd.AddCommand(deviceCmd)
}

func updateDevice(tag, spec string, allow bool) error {
	rule, err := parseRule(spec)
	if err != nil {
		return err
	}

	// Open the controller as it is; the running application keeps the
	// rest of its device set.
	dev, err := device.New(tag, device.FromExisting)
	if err != nil {
		return err
	}
	defer dev.Close()

	if allow {
		return dev.Allow(rule.Kind, rule.Major, rule.Minor)
	}
	return dev.Deny(rule.Kind, rule.Major, rule.Minor)
}
