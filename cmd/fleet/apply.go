package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/autobot/fleet/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a configuration file",
	Long: `Apply a fleet configuration from a YAML file.

Examples:
  # Apply a role definition
  fleet apply -f role.yaml

  # Apply a sync schedule
  fleet apply -f nightly-sync.yaml`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// FleetResource represents a generic fleet resource
type FleetResource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   ResourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	var resource FleetResource
	if err := yaml.Unmarshal(data, &resource); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}

	c := newClient(cmd)

	switch resource.Kind {
	case "Role":
		return applyRole(c, &resource)
	case "Schedule":
		return applySchedule(c, &resource)
	default:
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func applyRole(c *apiClient, resource *FleetResource) error {
	name := resource.Metadata.Name
	targetPath := getString(resource.Spec, "targetPath", "")

	if targetPath == "" {
		return fmt.Errorf("role targetPath is required")
	}

	role := types.Role{
		Name:           name,
		SourcePaths:    getStringSlice(resource.Spec, "sourcePaths"),
		TargetPath:     targetPath,
		PostSyncCmd:    getString(resource.Spec, "postSyncCmd", ""),
		AutoRestart:    getBool(resource.Spec, "autoRestart", false),
		SystemdService: getString(resource.Spec, "systemdService", ""),
	}

	// Update if the role already exists, create otherwise.
	var existing types.Role
	if err := c.do(http.MethodGet, "/roles/"+name, nil, &existing); err == nil {
		fmt.Printf("Updating role: %s\n", name)
		if err := c.do(http.MethodPut, "/roles/"+name, &role, nil); err != nil {
			return fmt.Errorf("failed to update role: %v", err)
		}
		fmt.Printf("✓ Role updated: %s\n", name)
		return nil
	}

	fmt.Printf("Creating role: %s\n", name)
	if err := c.do(http.MethodPost, "/roles", &role, nil); err != nil {
		return fmt.Errorf("failed to create role: %v", err)
	}
	fmt.Printf("✓ Role created: %s\n", name)
	return nil
}

func applySchedule(c *apiClient, resource *FleetResource) error {
	name := resource.Metadata.Name
	cron := getString(resource.Spec, "cron", "")

	if cron == "" {
		return fmt.Errorf("schedule cron is required")
	}

	schedule := types.Schedule{
		Name:             name,
		CronExpression:   cron,
		Enabled:          getBool(resource.Spec, "enabled", true),
		TargetType:       types.TargetType(getString(resource.Spec, "targetType", "all")),
		TargetNodes:      getStringSlice(resource.Spec, "targetNodes"),
		TargetFilter:     getString(resource.Spec, "targetFilter", ""),
		RestartAfterSync: getBool(resource.Spec, "restartAfterSync", false),
		RestartStrategy:  types.RestartStrategy(getString(resource.Spec, "restartStrategy", "sequential")),
	}

	fmt.Printf("Creating schedule: %s\n", name)
	var created types.Schedule
	if err := c.do(http.MethodPost, "/schedules", &schedule, &created); err != nil {
		return fmt.Errorf("failed to create schedule: %v", err)
	}
	fmt.Printf("✓ Schedule created: %s (ID: %s)\n", name, created.ID)
	return nil
}

// Helper functions
func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getBool(m map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := m[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultValue
}

func getStringSlice(m map[string]interface{}, key string) []string {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		out = append(out, fmt.Sprintf("%v", v))
	}
	return out
}
