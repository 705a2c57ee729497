package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tick-md/tick/pkg/models"
)

var agentCmd = &cobra.Command{
	Use:     "agent",
	Aliases: []string{"agents"},
	Short:   "Manage the agent roster",
}

var (
	agentType  string
	agentRoles []string
	agentTrust string
)

var agentRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Add an agent to the roster",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		caller, err := callerFor()
		if err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()

		agent, err := TaskMgr.RegisterAgent(ctx, caller, models.Agent{
			Name:       normalizeAgent(strings.TrimSpace(args[0])),
			Type:       models.AgentType(agentType),
			Roles:      agentRoles,
			TrustLevel: models.TrustLevel(agentTrust),
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s, %s)\n", agent.Name, agent.Type, strings.Join(agent.Roles, ", "))
		return nil
	},
}

var agentWorkingOn string

var agentStatusCmd = &cobra.Command{
	Use:   "status <name> <working|idle|offline>",
	Short: "Report an agent's availability",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		caller, err := callerFor()
		if err != nil {
			return err
		}
		status := models.AgentStatus(strings.ToLower(args[1]))
		switch status {
		case models.AgentWorking, models.AgentIdle, models.AgentOffline:
		default:
			return fmt.Errorf("invalid agent status %q (use working, idle, offline)", args[1])
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		agent, err := TaskMgr.SetAgentStatus(ctx, caller, normalizeAgent(args[0]), status, agentWorkingOn)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is %s\n", agent.Name, agent.Status)
		return nil
	},
}

var agentListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the roster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireTaskMgr(); err != nil {
			return err
		}
		ctx, cancel := commandContext(cmd)
		defer cancel()
		doc, err := TaskMgr.Document(ctx)
		if err != nil {
			return err
		}
		if len(doc.Agents) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No agents registered.")
			return nil
		}
		printAgentTable(cmd.OutOrStdout(), doc.Agents)
		return nil
	},
}

func printAgentTable(w io.Writer, agents []models.Agent) {
	fmt.Fprintf(w, "  %-16s %-6s %-8s %-10s %-10s %s\n", "NAME", "TYPE", "STATUS", "WORKING", "TRUST", "ROLES")
	for _, a := range agents {
		fmt.Fprintf(w, "  %-16s %-6s %-8s %-10s %-10s %s\n",
			a.Name, a.Type, a.Status, orDash(a.WorkingOn), a.TrustLevel, strings.Join(a.Roles, ", "))
	}
}

func init() {
	agentRegisterCmd.Flags().StringVar(&agentType, "type", "human", "Agent type: human or bot")
	agentRegisterCmd.Flags().StringSliceVar(&agentRoles, "roles", nil, "Comma-separated roles (required)")
	agentRegisterCmd.Flags().StringVar(&agentTrust, "trust", "trusted", "Trust level: owner, trusted, restricted, read-only")
	agentStatusCmd.Flags().StringVar(&agentWorkingOn, "working-on", "", "Task the agent is working on")

	agentCmd.AddCommand(agentRegisterCmd, agentStatusCmd, agentListCmd)
	rootCmd.AddCommand(agentCmd)
}
