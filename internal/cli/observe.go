package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Golemata/internal/domain"
)

// NewStateCmd создаёт команду `golemata state`.
func NewStateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var history bool

	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the computed state of the running application",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if history {
				stream, err := client.GetStates()
				if err != nil {
					return err
				}
				if out.jsonMode {
					out.JSON(stream)
					return nil
				}
				for _, entry := range stream.Entries {
					out.Raw(entry + "\n")
				}
				return nil
			}

			state, err := client.GetState()
			if err != nil {
				return err
			}

			headers := []string{"NODE", "INSTANCES"}
			rows := make([][]string, 0, len(state.Nodes))
			for node, replicas := range state.Nodes {
				rows = append(rows, []string{node, fmt.Sprint(replicas)})
			}

			out.Success("App state: " + state.App)
			out.Print(headers, rows, state)
			return nil
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "Print recent state snapshots instead of the current state")
	return cmd
}

// NewDataCmd создаёт команду `golemata data`.
func NewDataCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "data",
		Short: "Show recent data stream entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			stream, err := client.GetData()
			if err != nil {
				return err
			}

			if out.jsonMode {
				out.JSON(stream)
				return nil
			}
			for _, entry := range stream.Entries {
				out.Raw(entry + "\n")
			}
			return nil
		},
	}
}

// NewSessionsCmd создаёт команду `golemata sessions`.
func NewSessionsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sessions, err := client.ListSessions()
			if err != nil {
				return err
			}

			headers := []string{"ID", "RUN_ID", "STATE", "STARTED", "FINISHED"}
			rows := make([][]string, len(sessions))
			for i, s := range sessions {
				rows[i] = []string{s.ID, s.RunID, s.State, s.StartedAt, s.FinishedAt}
			}

			out.Print(headers, rows, sessions)
			return nil
		},
	}
}

// NewCommandCmd создаёт группу команд `golemata command`.
func NewCommandCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "command",
		Short: "Send commands to the running application",
	}

	cmd.AddCommand(
		newCommandStopCmd(clientFn, outputFn),
		newCommandSuspendCmd(clientFn, outputFn),
		newCommandExecCmd(clientFn, outputFn),
	)

	return cmd
}

func newCommandStopCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the application and terminate all agreements",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := clientFn().SendCommand(CommandRequest{Command: string(domain.CommandStop)})
			if err != nil {
				return err
			}
			outputFn().Success("Stop requested")
			return nil
		},
	}
}

func newCommandSuspendCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "suspend",
		Short: "Suspend the application, keeping agreements alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := clientFn().SendCommand(CommandRequest{Command: string(domain.CommandSuspend)})
			if err != nil {
				return err
			}
			outputFn().Success("Suspend requested")
			return nil
		},
	}
}

func newCommandExecCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "exec NODE -- ARG [ARG...]",
		Short: "Run a command on a node instance",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			node := args[0]
			argv := args[1:]

			err := clientFn().SendCommand(CommandRequest{
				Node:     node,
				Index:    index,
				Commands: argv,
			})
			if err != nil {
				return err
			}
			outputFn().Success(fmt.Sprintf("Command submitted to %s[%d]", node, index))
			return nil
		},
	}

	cmd.Flags().IntVar(&index, "index", 0, "Replica index")
	return cmd
}
