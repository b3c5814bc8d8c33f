// Package naming validates snap names, instance names and security tags.
//
// A security tag identifies the isolation domain of one confined
// application. It has the shape snap.<name>.<app> or snap.<name>.hook.<hook>,
// where <name> may carry an instance key: <name>_<key>.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	"snap-confine-go/errors"
)

const maxSnapNameLen = 40
const maxInstanceKeyLen = 10

// validSnapName matches a snap name: lower-case, starts with a letter,
// letters and digits with single interior dashes.
var validSnapName = regexp.MustCompile(`^[a-z](-?[a-z0-9])*$`)

// validInstanceKey matches an instance key: 1-10 alphanumerics.
var validInstanceKey = regexp.MustCompile(`^[a-z0-9]{1,10}$`)

// validSecurityTag matches a full security tag once the instance key has
// been dropped from the name part.
var validSecurityTag = regexp.MustCompile(`^snap\.[a-z](-?[a-z0-9])*\.([a-zA-Z0-9](-?[a-zA-Z0-9])*|hook\.[a-z](-?[a-z])*)$`)

// ValidateSnapName checks that name is a valid snap name.
func ValidateSnapName(name string) error {
	if name == "" {
		return errors.New(errors.KindValidation, "validate-snap-name", "snap name cannot be empty")
	}
	if len(name) > maxSnapNameLen {
		return errors.New(errors.KindValidation, "validate-snap-name",
			fmt.Sprintf("snap name %q is longer than %d characters", name, maxSnapNameLen))
	}
	if !validSnapName.MatchString(name) {
		return errors.New(errors.KindValidation, "validate-snap-name",
			fmt.Sprintf("invalid snap name %q", name))
	}
	return nil
}

// SplitInstanceName splits an instance name into the snap name and the
// instance key. A name without an instance key yields an empty key.
func SplitInstanceName(instanceName string) (snapName, instanceKey string) {
	snapName, instanceKey, _ = strings.Cut(instanceName, "_")
	return snapName, instanceKey
}

// ValidateInstanceName checks that instanceName is a valid snap instance
// name, i.e. a snap name with an optional _<key> suffix.
func ValidateInstanceName(instanceName string) error {
	snapName, instanceKey := SplitInstanceName(instanceName)
	if err := ValidateSnapName(snapName); err != nil {
		return err
	}
	if strings.Contains(instanceName, "_") {
		if !validInstanceKey.MatchString(instanceKey) {
			return errors.New(errors.KindValidation, "validate-instance-name",
				fmt.Sprintf("invalid instance key %q in instance name %q", instanceKey, instanceName))
		}
	}
	return nil
}

// ValidateSecurityTag checks that tag is a well-formed security tag.
func ValidateSecurityTag(tag string) error {
	nameStart := len("snap.")
	if !strings.HasPrefix(tag, "snap.") {
		return errors.New(errors.KindValidation, "validate-security-tag",
			fmt.Sprintf("invalid security tag %q", tag))
	}
	rest := tag[nameStart:]
	nameEnd := strings.IndexByte(rest, '.')
	if nameEnd < 0 {
		return errors.New(errors.KindValidation, "validate-security-tag",
			fmt.Sprintf("invalid security tag %q", tag))
	}
	instanceName := rest[:nameEnd]
	if err := ValidateInstanceName(instanceName); err != nil {
		return errors.New(errors.KindValidation, "validate-security-tag",
			fmt.Sprintf("invalid security tag %q", tag))
	}
	// The tag regex does not know about instance keys; match against the
	// tag with the key dropped.
	snapName, _ := SplitInstanceName(instanceName)
	plainTag := "snap." + snapName + rest[nameEnd:]
	if !validSecurityTag.MatchString(plainTag) {
		return errors.New(errors.KindValidation, "validate-security-tag",
			fmt.Sprintf("invalid security tag %q", tag))
	}
	return nil
}

// InstanceNameFromTag extracts the snap instance name from a validated
// security tag.
func InstanceNameFromTag(tag string) (string, error) {
	if err := ValidateSecurityTag(tag); err != nil {
		return "", err
	}
	rest := tag[len("snap."):]
	name, _, _ := strings.Cut(rest, ".")
	return name, nil
}

// SnapNameFromTag extracts the snap name, with any instance key dropped,
// from a validated security tag.
func SnapNameFromTag(tag string) (string, error) {
	instanceName, err := InstanceNameFromTag(tag)
	if err != nil {
		return "", err
	}
	snapName, _ := SplitInstanceName(instanceName)
	return snapName, nil
}
