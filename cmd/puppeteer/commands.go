package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/puppeteer/internal/version"
	"github.com/GoCodeAlone/puppeteer/server/api"
	"github.com/GoCodeAlone/puppeteer/task"
)

// cliAgentID tags memory log entries written from the command line.
const cliAgentID = "CLI_USER"

// --- status ---

type boardStatus struct {
	Server map[string]any  `json:"server"`
	Tasks  []task.Task     `json:"tasks"`
	Agents []api.AgentView `json:"agents"`
}

func (c *cli) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the board: tasks and agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			var st boardStatus
			if err := c.client.do(ctx, http.MethodGet, "/api/health", nil, &st.Server); err != nil {
				return err
			}
			if err := c.client.do(ctx, http.MethodGet, "/api/tasks", nil, &st.Tasks); err != nil {
				return err
			}
			if err := c.client.do(ctx, http.MethodGet, "/api/agents", nil, &st.Agents); err != nil {
				return err
			}
			if done, err := encode(c.out, c.format, st); done {
				return err
			}
			c.printTasks(st.Tasks)
			c.printf("\n")
			c.printAgents(st.Agents)
			return nil
		},
	}
}

func (c *cli) printTasks(tasks []task.Task) {
	c.printf("Tasks (%d):\n", len(tasks))
	if len(tasks) == 0 {
		return
	}
	tw := newTable(c.out)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPRIORITY\tDEPENDS ON") //nolint:errcheck
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck
			t.ID, truncate(t.Title, 40), statusLabel(string(t.Status)),
			priorityLabel(t.Priority), strings.Join(t.Dependencies, ","))
	}
	tw.Flush() //nolint:errcheck
}

func (c *cli) printAgents(agents []api.AgentView) {
	c.printf("Agents (%d):\n", len(agents))
	if len(agents) == 0 {
		return
	}
	tw := newTable(c.out)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tLOOP\tPROVIDER\tACTIVITY") //nolint:errcheck
	for _, a := range agents {
		loop := "stopped"
		if a.Running {
			loop = "running"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", //nolint:errcheck
			a.ID, a.Name, statusLabel(string(a.Status)), loop,
			a.Config.Provider+"/"+a.Config.Model, truncate(a.CurrentActivity, 50))
	}
	tw.Flush() //nolint:errcheck
}

// --- task ---

func (c *cli) taskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Create and update tasks",
	}

	var priority, parent string
	create := &cobra.Command{
		Use:   "create <title...>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{
				"title":    strings.Join(args, " "),
				"priority": priority,
				"parentId": parent,
			}
			var t task.Task
			if err := c.client.do(cmd.Context(), http.MethodPost, "/api/tasks", body, &t); err != nil {
				return err
			}
			if done, err := encode(c.out, c.format, t); done {
				return err
			}
			c.printf("Created task %s (%s)\n", t.ID, priorityLabel(t.Priority))
			return nil
		},
	}
	create.Flags().StringVarP(&priority, "priority", "p", "", "HIGH, MEDIUM or LOW (default MEDIUM)")
	create.Flags().StringVar(&parent, "parent", "", "parent task id")

	depends := &cobra.Command{
		Use:   "depends <id> <dependencyId>",
		Short: "Make a task wait for another task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.updateTask(cmd, args[0], map[string]string{"dependencyId": args[1]})
			if err != nil {
				return err
			}
			if done, err := encode(c.out, c.format, t); done {
				return err
			}
			c.printf("Task %s now depends on %s\n", args[0], args[1])
			return nil
		},
	}

	done := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a task DONE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := c.updateTask(cmd, args[0], map[string]string{"status": string(task.StatusDone)})
			if err != nil {
				return err
			}
			if done, err := encode(c.out, c.format, t); done {
				return err
			}
			c.printf("Task %s is %s\n", t.ID, statusLabel(string(t.Status)))
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var tasks []task.Task
			if err := c.client.do(cmd.Context(), http.MethodGet, "/api/tasks", nil, &tasks); err != nil {
				return err
			}
			if done, err := encode(c.out, c.format, tasks); done {
				return err
			}
			c.printTasks(tasks)
			return nil
		},
	}

	cmd.AddCommand(create, depends, done, list)
	return cmd
}

func (c *cli) updateTask(cmd *cobra.Command, id string, body map[string]string) (task.Task, error) {
	var t task.Task
	err := c.client.do(cmd.Context(), http.MethodPut, "/api/tasks/"+url.PathEscape(id), body, &t)
	return t, err
}

// --- agent ---

func (c *cli) agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Spawn and control agents",
	}

	var providerName, model string
	spawn := &cobra.Command{
		Use:   "spawn <name>",
		Short: "Register a new agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"name": args[0], "provider": providerName, "model": model}
			var a api.AgentView
			if err := c.client.do(cmd.Context(), http.MethodPost, "/api/agents", body, &a); err != nil {
				return err
			}
			if done, err := encode(c.out, c.format, a); done {
				return err
			}
			c.printf("Spawned agent %s (%s) using %s/%s\n", a.Name, a.ID, a.Config.Provider, a.Config.Model)
			return nil
		},
	}
	spawn.Flags().StringVar(&providerName, "provider", "", "decision service (default gemini)")
	spawn.Flags().StringVar(&model, "model", "", "model name")

	control := func(action, past string) *cobra.Command {
		return &cobra.Command{
			Use:   action + " <name-or-id>",
			Short: titleCase.String(action) + " an agent's loop",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := c.client.resolveAgent(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				var resp map[string]any
				if err := c.client.do(cmd.Context(), http.MethodPost, "/api/agents/"+a.ID+"/"+action, nil, &resp); err != nil {
					return fmt.Errorf("%s agent loop: %w", action, err)
				}
				if done, err := encode(c.out, c.format, resp); done {
					return err
				}
				c.printf("Agent %s %s\n", a.Name, past)
				return nil
			},
		}
	}

	input := &cobra.Command{
		Use:   "input <name-or-id> <text...>",
		Short: "Send operator input to an agent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.client.resolveAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			body := map[string]string{"input": strings.Join(args[1:], " ")}
			var updated api.AgentView
			if err := c.client.do(cmd.Context(), http.MethodPost, "/api/agents/"+a.ID+"/input", body, &updated); err != nil {
				return err
			}
			if done, err := encode(c.out, c.format, updated); done {
				return err
			}
			c.printf("Input queued for %s\n", a.Name)
			return nil
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var agents []api.AgentView
			if err := c.client.do(cmd.Context(), http.MethodGet, "/api/agents", nil, &agents); err != nil {
				return err
			}
			if done, err := encode(c.out, c.format, agents); done {
				return err
			}
			c.printAgents(agents)
			return nil
		},
	}

	cmd.AddCommand(spawn, control("start", "started"), control("stop", "stopped"), control("pause", "paused"), input, list)
	return cmd
}

// --- memory ---

func (c *cli) memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Read and write agent memory",
	}

	logCmd := &cobra.Command{
		Use:   "log <text...>",
		Short: "Append to today's activity log",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"content": strings.Join(args, " "), "agentId": cliAgentID}
			if err := c.client.do(cmd.Context(), http.MethodPost, "/api/memory/logs", body, nil); err != nil {
				return err
			}
			c.printf("Log added\n")
			return nil
		},
	}

	learn := &cobra.Command{
		Use:   "learn <text...>",
		Short: "Add a durable fact to the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"content": strings.Join(args, " ")}
			if err := c.client.do(cmd.Context(), http.MethodPost, "/api/memory/knowledge", body, nil); err != nil {
				return err
			}
			c.printf("Knowledge added\n")
			return nil
		},
	}

	var days int
	show := &cobra.Command{
		Use:   "show",
		Short: "Show recent logs and the knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var mem struct {
				Knowledge string   `json:"knowledge"`
				Logs      []string `json:"logs"`
			}
			var k map[string]string
			if err := c.client.do(cmd.Context(), http.MethodGet, "/api/memory/knowledge", nil, &k); err != nil {
				return err
			}
			mem.Knowledge = k["content"]
			path := fmt.Sprintf("/api/memory/logs?days=%d", days)
			if err := c.client.do(cmd.Context(), http.MethodGet, path, nil, &mem.Logs); err != nil {
				return err
			}
			if done, err := encode(c.out, c.format, mem); done {
				return err
			}
			c.printf("--- Knowledge ---\n%s\n\n--- Recent logs ---\n", strings.TrimSpace(mem.Knowledge))
			for _, day := range mem.Logs {
				c.printf("%s\n", strings.TrimSpace(day))
			}
			return nil
		},
	}
	show.Flags().IntVar(&days, "days", 7, "number of days of logs")

	cmd.AddCommand(logCmd, learn, show)
	return cmd
}

// --- version ---

func (c *cli) versionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// The version needs no server.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.printf("puppeteer %s (commit %s, built %s)\n", version.Version, version.Commit, version.BuildDate)
			if !check {
				return nil
			}
			rel, err := c.checker.Check(cmd.Context())
			if err != nil {
				return err
			}
			if rel == nil {
				c.printf("You are up to date.\n")
				return nil
			}
			c.printf("A newer release is available: %s\n%s\n", rel.Version, rel.URL)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
