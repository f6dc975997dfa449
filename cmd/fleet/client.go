package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/autobot/fleet/pkg/types"
	"github.com/spf13/cobra"
)

// apiClient is a thin HTTP client for the control-plane REST API used by
// the operator subcommands.
type apiClient struct {
	base string
	http *http.Client
}

func newClient(cmd *cobra.Command) *apiClient {
	server, _ := cmd.Flags().GetString("server")
	return &apiClient{
		base: strings.TrimRight(server, "/"),
		http: &http.Client{Timeout: 5 * time.Minute},
	}
}

// cliError carries the HTTP status so main can map it to an exit code.
type cliError struct {
	status  int
	message string
}

func (e *cliError) Error() string { return e.message }

// exitCode maps errors to the CLI exit-code contract: 2 for validation,
// 124 for timeouts, 1 otherwise.
func exitCode(err error) int {
	var ce *cliError
	if errors.As(err, &ce) && ce.status == http.StatusBadRequest {
		return 2
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 124
	}
	return 1
}

func (c *apiClient) do(method, path string, body, into any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		message := resp.Status
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			message = apiErr.Error
		}
		return &cliError{status: resp.StatusCode, message: message}
	}

	if into != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(into)
	}
	return nil
}

func addServerFlag(cmds ...*cobra.Command) {
	for _, cmd := range cmds {
		cmd.PersistentFlags().String("server", "http://localhost:8400", "Control plane address")
	}
}

// Node commands
var nodeCmd = &cobra.Command{
	Use:   "node",
	Short: "Manage fleet nodes",
}

var nodeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		var nodes []*types.Node
		if err := newClient(cmd).do(http.MethodGet, "/nodes", nil, &nodes); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NODE ID\tIP\tROLES\tCODE STATUS\tVERSION")
		for _, n := range nodes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				n.ID, n.IPAddress, strings.Join(n.Roles, ","), n.CodeStatus, short(n.CurrentCodeVersion))
		}
		return w.Flush()
	},
}

var nodeRegisterCmd = &cobra.Command{
	Use:   "register NODE_ID",
	Short: "Register a node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ip, _ := cmd.Flags().GetString("ip")
		sshUser, _ := cmd.Flags().GetString("ssh-user")
		sshPort, _ := cmd.Flags().GetInt("ssh-port")
		hostname, _ := cmd.Flags().GetString("hostname")

		var node types.Node
		err := newClient(cmd).do(http.MethodPost, "/nodes", &types.Node{
			ID:        args[0],
			Hostname:  hostname,
			IPAddress: ip,
			SSHUser:   sshUser,
			SSHPort:   sshPort,
		}, &node)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Node registered: %s (%s)\n", node.ID, node.IPAddress)
		return nil
	},
}

var nodeAssignCmd = &cobra.Command{
	Use:   "assign NODE_ID ROLE",
	Short: "Assign a role to a node",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var nr types.NodeRole
		if err := newClient(cmd).do(http.MethodPost, "/nodes/"+args[0]+"/role/"+args[1], nil, &nr); err != nil {
			return err
		}
		fmt.Printf("✓ Role %s assigned to %s\n", nr.RoleName, nr.NodeID)
		return nil
	},
}

// Role commands
var roleCmd = &cobra.Command{
	Use:   "role",
	Short: "Manage the role catalog",
}

var roleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List roles",
	RunE: func(cmd *cobra.Command, args []string) error {
		var roles []*types.Role
		if err := newClient(cmd).do(http.MethodGet, "/roles", nil, &roles); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tTARGET\tSOURCES\tSERVICE")
		for _, r := range roles {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				r.Name, r.TargetPath, strings.Join(r.SourcePaths, ","), r.SystemdService)
		}
		return w.Flush()
	},
}

// Schedule commands
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage sync schedules",
}

var scheduleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List schedules",
	RunE: func(cmd *cobra.Command, args []string) error {
		var schedules []*types.Schedule
		if err := newClient(cmd).do(http.MethodGet, "/schedules", nil, &schedules); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCRON\tENABLED\tNEXT RUN\tLAST STATUS")
		for _, s := range schedules {
			next := "-"
			if !s.NextRun.IsZero() {
				next = s.NextRun.Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
				short(s.ID), s.Name, s.CronExpression, s.Enabled, next, s.LastRunStatus)
		}
		return w.Flush()
	},
}

var scheduleValidateCmd = &cobra.Command{
	Use:   "validate CRON",
	Short: "Validate a cron expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			Valid       bool        `json:"valid"`
			Description string      `json:"description"`
			Next5Runs   []time.Time `json:"next_5_runs"`
		}
		err := newClient(cmd).do(http.MethodPost, "/schedules/validate",
			map[string]string{"cron": args[0]}, &out)
		if err != nil {
			return err
		}

		if !out.Valid {
			return &cliError{status: http.StatusBadRequest, message: fmt.Sprintf("invalid cron expression: %s", args[0])}
		}
		fmt.Printf("✓ %s\n", out.Description)
		for _, run := range out.Next5Runs {
			fmt.Printf("  %s\n", run.Format(time.RFC3339))
		}
		return nil
	},
}

// Sync commands
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run code syncs",
}

var syncRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a manual sync",
	Long: `Run a manual fan-out sync against a stored schedule or an explicit
set of nodes.

Examples:
  fleet sync run --schedule-id ID
  fleet sync run --nodes n1,n2 --role backend --restart`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scheduleID, _ := cmd.Flags().GetString("schedule-id")
		nodes, _ := cmd.Flags().GetStringSlice("nodes")
		role, _ := cmd.Flags().GetString("role")
		commit, _ := cmd.Flags().GetString("commit")
		restart, _ := cmd.Flags().GetBool("restart")

		req := map[string]any{
			"schedule_id": scheduleID,
			"node_ids":    nodes,
			"role":        role,
			"commit":      commit,
			"restart":     restart,
		}
		var out struct {
			Success bool   `json:"success"`
			Message string `json:"message"`
		}
		if err := newClient(cmd).do(http.MethodPost, "/sync/run", req, &out); err != nil {
			return err
		}
		if !out.Success {
			return fmt.Errorf("%s", out.Message)
		}
		fmt.Printf("✓ %s\n", out.Message)
		return nil
	},
}

// Credential commands
var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage node credentials",
}

var credentialConnectionCmd = &cobra.Command{
	Use:   "connection CREDENTIAL_ID",
	Short: "Show connection info, optionally with a single-use token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withToken, _ := cmd.Flags().GetBool("token")

		path := "/credentials/" + args[0] + "/connection"
		if withToken {
			path += "?token=true"
		}
		var info types.ConnectionInfo
		if err := newClient(cmd).do(http.MethodGet, path, nil, &info); err != nil {
			return err
		}

		fmt.Printf("Node:     %s\n", info.NodeID)
		fmt.Printf("Type:     %s\n", info.Type)
		fmt.Printf("Host:     %s:%d\n", info.Host, info.Port)
		if info.WebsocketURL != "" {
			fmt.Printf("Websocket: %s\n", info.WebsocketURL)
		}
		if info.Token != "" {
			fmt.Printf("Token:    %s (expires %s)\n", info.Token, info.TokenExpires.Format(time.RFC3339))
		}
		return nil
	},
}

var credentialExpiringCmd = &cobra.Command{
	Use:   "expiring",
	Short: "List TLS credentials expiring soon",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")

		var creds []*types.Credential
		path := fmt.Sprintf("/credentials/tls/expiring?days=%d", days)
		if err := newClient(cmd).do(http.MethodGet, path, nil, &creds); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CREDENTIAL\tNODE\tCOMMON NAME\tNOT AFTER")
		for _, c := range creds {
			cn, notAfter := "-", "-"
			if c.TLS != nil {
				cn = c.TLS.CommonName
				notAfter = c.TLS.NotAfter.Format("2006-01-02")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", short(c.ID), c.NodeID, cn, notAfter)
		}
		return w.Flush()
	},
}

func init() {
	addServerFlag(nodeCmd, roleCmd, scheduleCmd, syncCmd, credentialCmd, applyCmd)

	nodeCmd.AddCommand(nodeListCmd)
	nodeCmd.AddCommand(nodeRegisterCmd)
	nodeCmd.AddCommand(nodeAssignCmd)
	nodeRegisterCmd.Flags().String("ip", "", "Node IP address")
	nodeRegisterCmd.Flags().String("hostname", "", "Node hostname")
	nodeRegisterCmd.Flags().String("ssh-user", "autobot", "SSH user")
	nodeRegisterCmd.Flags().Int("ssh-port", 22, "SSH port")
	_ = nodeRegisterCmd.MarkFlagRequired("ip")

	roleCmd.AddCommand(roleListCmd)

	scheduleCmd.AddCommand(scheduleListCmd)
	scheduleCmd.AddCommand(scheduleValidateCmd)

	syncCmd.AddCommand(syncRunCmd)
	syncRunCmd.Flags().String("schedule-id", "", "Schedule to execute")
	syncRunCmd.Flags().StringSlice("nodes", nil, "Nodes to sync")
	syncRunCmd.Flags().String("role", "", "Restrict to one role")
	syncRunCmd.Flags().String("commit", "", "Commit to sync (default latest)")
	syncRunCmd.Flags().Bool("restart", false, "Restart services after sync")

	credentialCmd.AddCommand(credentialConnectionCmd)
	credentialCmd.AddCommand(credentialExpiringCmd)
	credentialConnectionCmd.Flags().Bool("token", false, "Issue a single-use access token")
	credentialExpiringCmd.Flags().Int("days", 30, "Expiry window in days")
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
