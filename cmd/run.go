package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"snap-confine-go/device"
	"snap-confine-go/launcher"
)

var runDevices []string

var runCmd = &cobra.Command{
	Use:   "run SECURITY-TAG -- COMMAND [ARGS...]",
	Short: "Confine and execute a snap application",
	Long: `Run confines the calling process for the given security tag and then
executes the command. The device cgroup is configured with the default
device set plus any --device rules, the process is attached to it and
recorded in the per-snap tracking hierarchy, and privileges are dropped
before the command replaces the launcher.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringArrayVar(&runDevices, "device", nil,
		"additional device rule KIND:MAJOR:MINOR (e.g. c:4:1 or b:8:*)")
	rootCmd.AddCommand(runCmd)
}

// parseRule parses a KIND:MAJOR:MINOR device specification.
func parseRule(spec string) (launcher.Rule, error) {
	var rule launcher.Rule
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return rule, fmt.Errorf("invalid device rule %q, expected KIND:MAJOR:MINOR", spec)
	}
	switch parts[0] {
	case "c":
		rule.Kind = device.Char
	case "b":
		rule.Kind = device.Block
	default:
		return rule, fmt.Errorf("invalid device kind %q in rule %q", parts[0], spec)
	}
	major, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return rule, fmt.Errorf("invalid major number in rule %q", spec)
	}
	rule.Major = uint32(major)
	if parts[2] == "*" {
		rule.Minor = device.AnyMinor
	} else {
		minor, err := strconv.ParseUint(parts[2], 10, 32)
		if err != nil {
			return rule, fmt.Errorf("invalid minor number in rule %q", spec)
		}
		rule.Minor = uint32(minor)
	}
	return rule, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	tag := args[0]
	command := args[1:]

	l, err := launcher.New(tag, command)
	if err != nil {
		return err
	}
	for _, spec := range runDevices {
		rule, err := parseRule(spec)
		if err != nil {
			return err
		}
		l.AddRule(rule)
	}

	return l.Run()
}
