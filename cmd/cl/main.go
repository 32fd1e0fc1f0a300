package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"clubline/internal/app"
	"clubline/internal/config"
	"clubline/internal/db"
	"clubline/internal/domain"
	"clubline/internal/engine"
	"clubline/internal/migrate"
	"clubline/internal/repo"
	"clubline/internal/server"
	"clubline/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Clubline CLI",
	Long: `Clubline keeps a club's maintenance work honest.
- Workspace: your .clubline directory holding the database; settings live in clubline.yml.
- Club: members, managers, and inspectors working on shared or private equipment.
- Plans: reusable maintenance templates; applying one to an equipment stamps out tasks and subtasks.
- Tasks and subtasks: subtasks flow open -> done -> closed, with inspections gating the ones that need them.
- Activity log: append-only diary per task; corrections are new rows, never edits.
- Purchases: spend requests flowing open -> approved -> purchased -> delivered -> reimbursed.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CLUBLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "acting user identifier")
	rootCmd.PersistentFlags().String("club", "", "club subdomain (overrides config)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("club", rootCmd.PersistentFlags().Lookup("club"))
}

func registerCommands() {
	rootCmd.AddCommand(clubCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(equipmentCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(applicationCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(subtaskCmd())
	rootCmd.AddCommand(purchaseCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- club ---

func clubCmd() *cobra.Command {
	club := &cobra.Command{Use: "club", Short: "Manage the club"}
	club.AddCommand(clubInitCmd())
	club.AddCommand(clubListCmd())
	club.AddCommand(clubShowCmd())
	club.AddCommand(clubStatusCmd())
	return club
}

func clubInitCmd() *cobra.Command {
	var subdomain string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write clubline.yml and create the club",
		RunE: func(cmd *cobra.Command, args []string) error {
			if subdomain == "" {
				return fmt.Errorf("--subdomain required")
			}
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(subdomain)), 0o644); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				fmt.Printf("Initialised club %q in %s\n", c.Subdomain, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&subdomain, "subdomain", "", "club subdomain")
	_ = cmd.MarkFlagRequired("subdomain")
	return cmd
}

func clubListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List clubs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListClubs(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func clubShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active club",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				return printJSONOrTable(c)
			})
		},
	}
}

func clubStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts for the active club",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				counts, err := e.Repo.CountTasksByStatus(ctx, c.ID)
				if err != nil {
					return err
				}
				out := map[string]any{
					"club_id":     c.ID,
					"active":      c.Active,
					"task_counts": counts,
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Club: %s (%s)\n", c.Name, c.Subdomain)
				fmt.Println("Tasks:")
				for status, n := range counts {
					fmt.Printf("  %s: %d\n", status, n)
				}
				return nil
			})
		},
	}
}

// --- members ---

func memberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage club members"}
	member.AddCommand(memberAddCmd())
	member.AddCommand(memberRemoveCmd())
	member.AddCommand(memberListCmd())
	return member
}

func memberAddCmd() *cobra.Command {
	var userID string
	var manager, inspector bool
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or update a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				if err := app.EnsureUser(ctx, e.Repo, userID); err != nil {
					return err
				}
				m := domain.Membership{
					UserID:      userID,
					ClubID:      c.ID,
					IsManager:   manager,
					IsInspector: inspector,
					CreatedAt:   time.Now().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.UpsertMembership(ctx, m); err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	cmd.Flags().BoolVar(&manager, "manager", false, "grant manager role")
	cmd.Flags().BoolVar(&inspector, "inspector", false, "grant inspector qualification")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func memberRemoveCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a member",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				return e.Repo.DeleteMembership(ctx, userID, c.ID)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func memberListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List members",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				items, err := e.Repo.ListMemberships(ctx, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"User", "Manager", "Inspector", "Since"})
				for _, m := range items {
					tw.AppendRow(table.Row{m.UserID, m.IsManager, m.IsInspector, m.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- equipment ---

func equipmentCmd() *cobra.Command {
	eq := &cobra.Command{Use: "equipment", Short: "Manage equipment"}
	eq.AddCommand(equipmentCreateCmd())
	eq.AddCommand(equipmentListCmd())
	return eq
}

func equipmentCreateCmd() *cobra.Command {
	var id, name, typ, ownership string
	var owners []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register equipment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				eq := domain.Equipment{
					ID:        id,
					ClubID:    c.ID,
					Name:      name,
					Type:      domain.EquipmentType(typ),
					Ownership: domain.Ownership(ownership),
					OwnerIDs:  owners,
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if eq.ID == "" {
					eq.ID = strings.ToLower(strings.ReplaceAll(name, " ", "-"))
				}
				if err := e.Repo.InsertEquipment(ctx, eq); err != nil {
					return err
				}
				return printJSONOrTable(eq)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "equipment id (optional)")
	cmd.Flags().StringVar(&name, "name", "", "equipment name")
	cmd.Flags().StringVar(&typ, "type", "GLIDER", "equipment type (GLIDER, FACILITY)")
	cmd.Flags().StringVar(&ownership, "ownership", "CLUB", "ownership (CLUB, PRIVATE)")
	cmd.Flags().StringArrayVar(&owners, "owner", []string{}, "owner user id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func equipmentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List equipment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				items, err := e.Repo.ListEquipment(ctx, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Ownership", "Owners"})
				for _, eq := range items {
					tw.AppendRow(table.Row{eq.ID, eq.Name, eq.Type, eq.Ownership, strings.Join(eq.OwnerIDs, ",")})
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- plans ---

// planFile is the YAML shape accepted by `cl plan create --file`.
type planFile struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	EquipmentType string `yaml:"equipment_type"`
	Tasks         []struct {
		Title         string `yaml:"title"`
		Description   string `yaml:"description"`
		Documentation string `yaml:"documentation"`
		SubTasks      []struct {
			Title              string `yaml:"title"`
			Description        string `yaml:"description"`
			Difficulty         int    `yaml:"difficulty"`
			RequiresInspection bool   `yaml:"requires_inspection"`
			Documentation      string `yaml:"documentation"`
		} `yaml:"subtasks"`
	} `yaml:"tasks"`
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Manage maintenance plans"}
	plan.AddCommand(planCreateCmd())
	plan.AddCommand(planListCmd())
	plan.AddCommand(planShowCmd())
	plan.AddCommand(planApplyCmd())
	return plan
}

func planCreateCmd() *cobra.Command {
	var filePath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a plan from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(filePath)
			if err != nil {
				return err
			}
			var pf planFile
			if err := yaml.Unmarshal(data, &pf); err != nil {
				return fmt.Errorf("invalid plan yaml: %w", err)
			}
			opts := engine.PlanCreateOptions{
				ID:            pf.ID,
				Name:          pf.Name,
				EquipmentType: domain.EquipmentType(pf.EquipmentType),
			}
			for _, t := range pf.Tasks {
				task := engine.PlanTaskTemplate{
					Title:         t.Title,
					Description:   t.Description,
					Documentation: t.Documentation,
				}
				for _, st := range t.SubTasks {
					task.SubTasks = append(task.SubTasks, engine.PlanSubTaskTemplate{
						Title:              st.Title,
						Description:        st.Description,
						Difficulty:         st.Difficulty,
						RequiresInspection: st.RequiresInspection,
						Documentation:      st.Documentation,
					})
				}
				opts.Tasks = append(opts.Tasks, task)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				p, err := e.CreatePlan(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&filePath, "file", "", "path to plan YAML")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func planListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPlans(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
}

func planShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a plan with its templates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetPlan(ctx, args[0])
				if err != nil {
					return err
				}
				tasks, err := r.ListPlanTasks(ctx, p.ID)
				if err != nil {
					return err
				}
				out := map[string]any{"plan": p, "tasks": tasks}
				subtasks := map[string][]domain.PlanSubTask{}
				for _, pt := range tasks {
					sts, err := r.ListPlanSubTasks(ctx, pt.ID)
					if err != nil {
						return err
					}
					subtasks[pt.ID] = sts
				}
				out["subtasks"] = subtasks
				return printJSONOrTable(out)
			})
		},
	}
	return cmd
}

func planApplyCmd() *cobra.Command {
	var planID, equipmentID, dueAt string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a plan to an equipment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				res, err := e.ApplyPlan(ctx, engine.ApplyOptions{
					PlanID:      planID,
					EquipmentID: equipmentID,
					DueAt:       dueAt,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&planID, "plan", "", "plan id")
	cmd.Flags().StringVar(&equipmentID, "equipment", "", "equipment id")
	cmd.Flags().StringVar(&dueAt, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("plan")
	_ = cmd.MarkFlagRequired("equipment")
	return cmd
}

// --- applications ---

func applicationCmd() *cobra.Command {
	appCmd := &cobra.Command{Use: "application", Short: "Manage plan applications"}
	appCmd.AddCommand(applicationListCmd())
	appCmd.AddCommand(applicationCancelCmd())
	return appCmd
}

func applicationListCmd() *cobra.Command {
	var equipmentID, from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications for an equipment",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				var items []domain.PlanApplication
				var err error
				if from != "" && to != "" {
					items, err = r.ListApplicationsInRange(ctx, equipmentID, from, to)
				} else {
					items, err = r.ListApplications(ctx, equipmentID)
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&equipmentID, "equipment", "", "equipment id")
	cmd.Flags().StringVar(&from, "from", "", "range start (RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "range end (RFC3339)")
	_ = cmd.MarkFlagRequired("equipment")
	return cmd
}

func applicationCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel an application and its open tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				a, err := e.CancelPlanApplication(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

// --- tasks ---

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks group the subtasks done against one equipment. A task closes only when every subtask is closed or cancelled; cancelling a task cancels its open subtasks.",
	}
	task.AddCommand(taskCreateCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskShowCmd())
	task.AddCommand(taskCloseCmd())
	task.AddCommand(taskCancelCmd())
	task.AddCommand(taskCommentCmd())
	return task
}

func taskCreateCmd() *cobra.Command {
	var opts engine.TaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				if opts.ClubID == "" {
					opts.ClubID = c.ID
				}
				t, err := e.CreateTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "task id (optional)")
	cmd.Flags().StringVar(&opts.EquipmentID, "equipment", "", "equipment id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Documentation, "documentation", "", "documentation link or text")
	cmd.Flags().StringVar(&opts.DueAt, "due", "", "due date (RFC3339)")
	_ = cmd.MarkFlagRequired("equipment")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskListCmd() *cobra.Command {
	var equipmentID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				var tasks []domain.Task
				var err error
				if equipmentID != "" {
					tasks, err = e.Repo.ListTasksByEquipment(ctx, equipmentID)
				} else {
					tasks, err = e.Repo.ListTasksByClub(ctx, c.ID)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Equipment", "Due"})
				for _, t := range tasks {
					due := ""
					if t.DueAt != nil {
						due = *t.DueAt
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.EquipmentID, due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&equipmentID, "equipment", "", "filter by equipment id")
	return cmd
}

func taskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task with subtasks and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				t, err := e.Repo.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				subtasks, err := e.Repo.ListSubTasks(ctx, t.ID)
				if err != nil {
					return err
				}
				progress, err := e.TaskProgress(ctx, t.ID)
				if err != nil {
					return err
				}
				out := map[string]any{"task": t, "subtasks": subtasks, "progress": progress}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("%s [%s] %.1f%%\n", t.Title, t.Status, progress)
				for _, st := range subtasks {
					marker := " "
					switch st.Status {
					case domain.SubTaskClosed:
						marker = "x"
					case domain.SubTaskDone:
						marker = "~"
					case domain.SubTaskCancelled:
						marker = "-"
					}
					fmt.Printf("  [%s] %s (difficulty %d)\n", marker, st.Title, st.Difficulty)
				}
				return nil
			})
		},
	}
}

func taskCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "close <id>",
		Short: "Close a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				t, err := e.CloseTask(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a task and its open subtasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				t, err := e.CancelTask(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

func taskCommentCmd() *cobra.Command {
	var subTaskID, message string
	cmd := &cobra.Command{
		Use:   "comment <task-id>",
		Short: "Comment on a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				if err := e.Comment(ctx, args[0], subTaskID, viper.GetString("actor-id"), message); err != nil {
					return err
				}
				log, err := e.Repo.ListActivities(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(log)
			})
		},
	}
	cmd.Flags().StringVar(&subTaskID, "subtask", "", "subtask id (optional)")
	cmd.Flags().StringVar(&message, "message", "", "comment text")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

// --- subtasks ---

func subtaskCmd() *cobra.Command {
	st := &cobra.Command{
		Use:   "subtask",
		Short: "Manage subtasks",
		Long:  "Subtasks are the actual work. They flow open -> done -> closed; subtasks that require inspection wait in done until an inspector approves or rejects.",
	}
	st.AddCommand(subtaskCreateCmd())
	st.AddCommand(subtaskDoneCmd())
	st.AddCommand(subtaskUndoneCmd())
	st.AddCommand(subtaskApproveCmd())
	st.AddCommand(subtaskRejectCmd())
	st.AddCommand(subtaskCancelCmd())
	return st
}

func subtaskCreateCmd() *cobra.Command {
	var opts engine.SubTaskCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a subtask",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				st, err := e.CreateSubTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "subtask id (optional)")
	cmd.Flags().StringVar(&opts.TaskID, "task", "", "task id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.Difficulty, "difficulty", 1, "difficulty (1-5)")
	cmd.Flags().BoolVar(&opts.RequiresInspection, "requires-inspection", false, "require an inspection before closing")
	cmd.Flags().StringVar(&opts.Documentation, "documentation", "", "documentation link or text")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func subtaskDoneCmd() *cobra.Command {
	var completedBy string
	cmd := &cobra.Command{
		Use:   "done <id>",
		Short: "Mark a subtask done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				actorID := viper.GetString("actor-id")
				facts, err := e.Repo.MembershipFacts(ctx, actorID, c.ID)
				if err != nil {
					return err
				}
				st, err := e.MarkSubTaskDone(ctx, args[0], actorID, completedBy, facts.IsInspector)
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&completedBy, "completed-by", "", "user who actually did the work (defaults to actor)")
	return cmd
}

func subtaskUndoneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undone <id>",
		Short: "Reopen a completed subtask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				st, err := e.UndoSubTaskDone(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
}

func subtaskApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve an inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				st, err := e.InspectApprove(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
}

func subtaskRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject an inspection; the subtask reopens blank",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reason == "" {
				return fmt.Errorf("--reason required")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				st, err := e.InspectReject(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	return cmd
}

func subtaskCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a subtask",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				st, err := e.CancelSubTask(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

// --- purchases ---

func purchaseCmd() *cobra.Command {
	p := &cobra.Command{Use: "purchase", Short: "Manage purchase requests"}
	p.AddCommand(purchaseCreateCmd())
	p.AddCommand(purchaseListCmd())
	p.AddCommand(purchaseShowCmd())
	p.AddCommand(purchaseStepCmd("approve", "Approve a purchase", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Purchase, error) {
		return e.ApprovePurchase(ctx, id, actor)
	}))
	p.AddCommand(purchaseStepCmd("purchased", "Mark a purchase as bought", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Purchase, error) {
		return e.MarkPurchasePurchased(ctx, id, actor)
	}))
	p.AddCommand(purchaseStepCmd("delivered", "Mark a purchase as delivered", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Purchase, error) {
		return e.MarkPurchaseDelivered(ctx, id, actor)
	}))
	p.AddCommand(purchaseStepCmd("reimbursed", "Mark a purchase as reimbursed", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Purchase, error) {
		return e.MarkPurchaseReimbursed(ctx, id, actor)
	}))
	p.AddCommand(purchaseStepCmd("revert", "Undo the latest purchase step", func(ctx context.Context, e engine.Engine, id, actor string) (domain.Purchase, error) {
		return e.RevertPurchase(ctx, id, actor)
	}))
	p.AddCommand(purchaseCancelCmd())
	return p
}

func purchaseCreateCmd() *cobra.Command {
	var opts engine.PurchaseCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a purchase request",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				if opts.ClubID == "" {
					opts.ClubID = c.ID
				}
				p, err := e.CreatePurchase(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ID, "id", "", "purchase id (optional)")
	cmd.Flags().StringVar(&opts.EquipmentID, "equipment", "", "equipment id (optional)")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().IntVar(&opts.AmountCents, "amount-cents", 0, "amount in cents")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func purchaseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List purchase requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, c domain.Club) error {
				items, err := e.Repo.ListPurchases(ctx, c.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Amount", "Created by"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Title, p.Status, fmt.Sprintf("%d.%02d", p.AmountCents/100, p.AmountCents%100), p.CreatedBy})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func purchaseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a purchase with its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				p, err := r.GetPurchase(ctx, args[0])
				if err != nil {
					return err
				}
				events, err := r.ListPurchaseEvents(ctx, p.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"purchase": p, "events": events})
			})
		},
	}
}

func purchaseStepCmd(use, short string, run func(ctx context.Context, e engine.Engine, id, actor string) (domain.Purchase, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				p, err := run(ctx, e, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func purchaseCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a purchase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, _ domain.Club) error {
				p, err := e.CancelPurchase(ctx, args[0], viper.GetString("actor-id"), reason)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

// --- activity log ---

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect activity logs"}
	log.AddCommand(logShowCmd())
	return log
}

func logShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show the activity log of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				log, err := r.ListActivities(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(log)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "Type", "Actor", "SubTask", "Message"})
				for _, a := range log {
					sub := ""
					if a.SubTaskID != nil {
						sub = *a.SubTaskID
					}
					msg := ""
					if a.Message != nil {
						msg = *a.Message
					}
					tw.AppendRow(table.Row{a.TS, a.Type, a.ActorID, sub, msg})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

// --- serve ---

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			if _, err := app.ResolveClub(cmd.Context(), viper.GetString("club"), viper.GetString("actor-id"), r, cfg); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			secret := cfg.Server.JWTSecret
			if s := os.Getenv("CLUBLINE_JWT_SECRET"); s != "" {
				secret = s
			}
			if secret == "" {
				return fmt.Errorf("CLUBLINE_JWT_SECRET or server.jwt_secret is required for bearer auth")
			}
			if addr == "" {
				addr = cfg.Server.Listen
			}
			if basePath == "" {
				basePath = cfg.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:              secret,
				AllowLegacyActorHeader: cfg.Server.AllowLegacyActorHeader,
			}
			log := logger.NewFromEnv()
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg, Logger: log})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving clubline api", "addr", addr, "base_path", basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to config)")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, domain.Club) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace, viper.GetString("club"))
	if err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	c, err := app.ResolveClub(ctx, viper.GetString("club"), viper.GetString("actor-id"), r, cfg)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e, c)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
