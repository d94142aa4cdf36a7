package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/rodgomesc/terminal-hook/internal/router"
	"github.com/rodgomesc/terminal-hook/internal/util"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions known to a running bridge",
	Long: `List the sessions a running bridge is capturing, with their
process IDs, buffered line counts, and last activity times.`,
	RunE: runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	nameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	idStyle     = lipgloss.NewStyle().Faint(true)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func runSessions(cmd *cobra.Command, args []string) error {
	raw, err := invokeOperation(router.OpListSessions, map[string]any{})
	if err != nil {
		return err
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("unexpected bridge response: %w", err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("bridge error %d: %s", envelope.Error.Code, envelope.Error.Message)
	}

	var result router.ListSessionsResult
	if err := json.Unmarshal(envelope.Result, &result); err != nil {
		return fmt.Errorf("unexpected bridge result: %w", err)
	}

	out := cmd.OutOrStdout()
	if result.Count == 0 {
		fmt.Fprintln(out, "No sessions are being captured.")
		return nil
	}

	fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Sessions (%d)", result.Count)))
	for _, s := range result.Sessions {
		pid := "pid unknown"
		if s.ProcessID != nil {
			pid = fmt.Sprintf("pid %d", *s.ProcessID)
		}
		name := util.TruncateANSI(s.Name, 48)
		fmt.Fprintf(out, "  %s %s\n", nameStyle.Render(name), idStyle.Render(s.ID))
		fmt.Fprintf(out, "    %s\n", detailStyle.Render(
			fmt.Sprintf("%s, %d lines buffered, last activity %s", pid, s.BufferLines, s.LastActivity)))
	}
	return nil
}
