package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"caseline/internal/attach"
	"caseline/internal/config"
	"caseline/internal/db"
	"caseline/internal/docstore"
	"caseline/internal/domain"
	"caseline/internal/engine"
	"caseline/internal/migrate"
	"caseline/internal/repo"
	"caseline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "cl",
	Short: "Caseline CLI",
	Long: `Caseline tracks interior fit-out work from first enquiry to delivered project.
Core concepts:
- Workspace: your .caseline directory holding the database and uploaded files.
- Enquiry: an incoming client request; converting it mints a LEAD case.
- Case: one client engagement moving through the sales pipeline stages
  (NEW, LEAD, SITE_VISIT, DRAWING, BOQ, QUOTATION, WAITING_FOR_PLANNING,
  EXECUTION_ACTIVE, COMPLETED). Assigning a task moves the stage.
- Activity: the append-only per-case ledger; every change leaves a record.
- Project: a case flipped one-way into delivery ('cl case flip').
- RFQ: a request for quotation fanned out to vendors with a price snapshot.`,
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
	viper.SetEnvPrefix("CASELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("actor-name", "", "actor display name")
	rootCmd.PersistentFlags().String("actor-role", "sales", "actor role")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("actor-name", rootCmd.PersistentFlags().Lookup("actor-name"))
	_ = viper.BindPFlag("actor-role", rootCmd.PersistentFlags().Lookup("actor-role"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(enquiryCmd())
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(noteCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(rfqCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialise a caseline workspace",
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
			path := config.Path(workspace)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("Wrote %s\n", path)
			}
			fmt.Printf("Workspace ready at %s\n", db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func enquiryCmd() *cobra.Command {
	enq := &cobra.Command{
		Use:   "enquiry",
		Short: "Manage enquiries",
		Long:  "Enquiries are incoming client requests. View them, then convert the promising ones into LEAD cases; conversion is idempotent so a double click never makes two cases.",
	}
	enq.AddCommand(enquiryCreateCmd())
	enq.AddCommand(enquiryListCmd())
	enq.AddCommand(enquiryShowCmd())
	enq.AddCommand(enquiryViewCmd())
	enq.AddCommand(enquiryConvertCmd())
	return enq
}

func enquiryCreateCmd() *cobra.Command {
	var in engine.EnquiryInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an enquiry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateEnquiry(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&in.ClientName, "client-name", "", "client name")
	cmd.Flags().StringVar(&in.ClientEmail, "client-email", "", "client email")
	cmd.Flags().StringVar(&in.ClientPhone, "client-phone", "", "client phone")
	cmd.Flags().StringVar(&in.Budget, "budget", "", "budget range as stated by the client")
	cmd.Flags().StringVar(&in.Timeline, "timeline", "", "expected timeline")
	cmd.Flags().StringVar(&in.Style, "style", "", "style preference")
	_ = cmd.MarkFlagRequired("client-name")
	return cmd
}

func enquiryListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List enquiries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListEnquiries(ctx, status, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Budget", "Status", "Case"})
				for _, it := range items {
					caseID := ""
					if it.ConvertedCaseID != nil {
						caseID = *it.ConvertedCaseID
					}
					tw.AppendRow(table.Row{it.ID, it.ClientName, it.Budget, it.Status, caseID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (NEW, ASSIGNED, CONVERTED_TO_LEAD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func enquiryShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an enquiry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.Repo.GetEnquiry(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func enquiryViewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <id>",
		Short: "Mark an enquiry viewed by you",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.MarkViewed(ctx, args[0], actor()); err != nil {
					return err
				}
				res, err := e.Repo.GetEnquiry(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func enquiryConvertCmd() *cobra.Command {
	var sales string
	var budget float64
	cmd := &cobra.Command{
		Use:   "convert <id>",
		Short: "Convert an enquiry into a LEAD case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				lead := engine.LeadFields{AssignedSales: sales}
				if cmd.Flags().Changed("budget") {
					lead.TotalBudget = &budget
				}
				c, err := e.ConvertEnquiry(ctx, args[0], lead, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&sales, "sales", "", "assigned sales user id (defaults to the acting user)")
	cmd.Flags().Float64Var(&budget, "budget", 0, "total budget for the new case")
	return cmd
}

func caseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "case",
		Short: "Manage cases",
		Long:  "Cases are client engagements moving through the sales pipeline. Statuses normally move by assigning tasks; set-status is the manual override and is recorded in the ledger either way.",
	}
	c.AddCommand(caseCreateCmd())
	c.AddCommand(caseListCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseSetStatusCmd())
	c.AddCommand(caseFlipCmd())
	c.AddCommand(caseSummaryCmd())
	return c
}

func caseCreateCmd() *cobra.Command {
	var in engine.CaseInput
	var budget float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a case directly",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("budget") {
				in.TotalBudget = &budget
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateCase(ctx, in, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&in.ClientName, "client-name", "", "client name")
	cmd.Flags().StringVar(&in.ClientEmail, "client-email", "", "client email")
	cmd.Flags().StringVar(&in.ClientPhone, "client-phone", "", "client phone")
	cmd.Flags().Float64Var(&budget, "budget", 0, "total budget")
	cmd.Flags().StringVar(&in.AssignedSales, "sales", "", "assigned sales user id")
	_ = cmd.MarkFlagRequired("client-name")
	return cmd
}

func caseListCmd() *cobra.Command {
	var f repo.CaseFilters
	var projectsOnly, leadsOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			if projectsOnly {
				v := true
				f.IsProject = &v
			} else if leadsOnly {
				v := false
				f.IsProject = &v
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListCases(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Client", "Status", "Project", "Sales"})
				for _, c := range items {
					sales := ""
					if c.AssignedSales != nil {
						sales = *c.AssignedSales
					}
					tw.AppendRow(table.Row{c.ID, c.ClientName, c.Status, c.IsProject, sales})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "pipeline stage filter")
	cmd.Flags().StringVar(&f.Sales, "sales", "", "assigned sales filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	cmd.Flags().BoolVar(&projectsOnly, "projects", false, "only cases flipped to projects")
	cmd.Flags().BoolVar(&leadsOnly, "leads", false, "only cases not yet projects")
	return cmd
}

func caseShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetCase(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func caseSetStatusCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Set pipeline stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.UpdateStatus(ctx, args[0], status, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "canonical stage name")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func caseFlipCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flip <id>",
		Short: "Flip a case into a project (one-way)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.FlipToProject(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func caseSummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Case counts per pipeline stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				counts, err := e.Repo.CountCasesByStage(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(counts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Stage", "Cases"})
				for stageName, n := range counts {
					tw.AppendRow(table.Row{stageName, n})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Assigning a task is how a case normally moves: the task title decides the next pipeline stage (a 'Site Inspection' pushes the case to SITE_VISIT, a 'Quotation' task to BOQ).",
	}
	t.AddCommand(taskAssignCmd())
	t.AddCommand(taskListCmd())
	return t
}

func taskAssignCmd() *cobra.Command {
	var in engine.TaskInput
	var priority int
	cmd := &cobra.Command{
		Use:   "assign <case-id>",
		Short: "Assign a task on a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in.CaseID = args[0]
			if cmd.Flags().Changed("priority") {
				in.Priority = &priority
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.AssignTask(ctx, in, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "task title (drives the stage transition)")
	cmd.Flags().StringVar(&in.Type, "type", "", "task type (derived from title when omitted)")
	cmd.Flags().StringVar(&in.AssignedTo, "assign", "", "assignee user id")
	cmd.Flags().IntVar(&priority, "priority", 0, "priority (lower is higher)")
	cmd.Flags().StringVar(&in.Deadline, "deadline", "", "RFC3339 deadline")
	cmd.Flags().StringVar(&in.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("assign")
	return cmd
}

func taskListCmd() *cobra.Command {
	var f repo.TaskFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListTasks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Case", "Title", "Type", "Status", "Assignee"})
				for _, t := range items {
					tw.AppendRow(table.Row{t.ID, t.CaseID, t.Title, t.Type, t.Status, t.AssignedTo})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.CaseID, "case", "", "case id filter")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.AssignedTo, "assignee", "", "assignee filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "max rows")
	return cmd
}

func noteCmd() *cobra.Command {
	n := &cobra.Command{
		Use:   "note",
		Short: "Case notes and files",
	}
	n.AddCommand(noteAddCmd())
	return n
}

func noteAddCmd() *cobra.Command {
	var text string
	var files []string
	cmd := &cobra.Command{
		Use:   "add <case-id>",
		Short: "Add a note, optionally attaching files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			var attachments []domain.Attachment
			if len(files) > 0 {
				dir := cfg.Attachments.Dir
				if !filepath.IsAbs(dir) {
					dir = filepath.Join(workspace, dir)
				}
				storage := attach.LocalDir{Dir: dir}
				for _, f := range files {
					data, err := os.ReadFile(f)
					if err != nil {
						return err
					}
					att, err := storage.Put(filepath.Base(f), data)
					if err != nil {
						return err
					}
					attachments = append(attachments, att)
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				recID, err := e.LogNote(ctx, args[0], text, attachments, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"record_id": recID, "attachments": len(attachments)})
			})
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "note text")
	cmd.Flags().StringArrayVar(&files, "attach", []string{}, "file to attach (repeatable)")
	return cmd
}

func activityCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "activity",
		Short: "Case activity ledger",
		Long:  "The ledger is the append-only diary of a case: status changes, tasks, notes, files. Records are never edited or deleted.",
	}
	a.AddCommand(activityListCmd())
	a.AddCommand(activityTailCmd())
	return a
}

func activityListCmd() *cobra.Command {
	var limit int
	var afterSeq int64
	var desc bool
	cmd := &cobra.Command{
		Use:   "list <case-id>",
		Short: "List a case's activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Ledger.List(ctx, args[0], limit, afterSeq, desc)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Seq", "Type", "Action", "Actor", "When"})
				for _, rec := range items {
					tw.AppendRow(table.Row{rec.Seq, rec.Type, rec.Action, rec.UserID, rec.Timestamp})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "max rows")
	cmd.Flags().Int64Var(&afterSeq, "after-seq", 0, "resume past this sequence number")
	cmd.Flags().BoolVar(&desc, "desc", false, "newest first")
	return cmd
}

func activityTailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail <case-id>",
		Short: "Follow a case's activity live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				feed, err := e.Ledger.Subscribe(ctx, args[0])
				if err != nil {
					return err
				}
				defer feed.Close()
				var lastSeq int64
				for {
					select {
					case <-ctx.Done():
						return nil
					case records, ok := <-feed.C:
						if !ok {
							return nil
						}
						for _, rec := range records {
							if rec.Seq <= lastSeq {
								continue
							}
							lastSeq = rec.Seq
							fmt.Printf("%s  %-14s %s (%s)\n", rec.Timestamp, rec.Type, rec.Action, rec.UserID)
						}
					}
				}
			})
		},
	}
	return cmd
}

func rfqCmd() *cobra.Command {
	r := &cobra.Command{
		Use:   "rfq",
		Short: "Requests for quotation",
		Long:  "An RFQ snapshots item prices at open time and invites each vendor. Bidding deadlines are stored for reference, not enforced.",
	}
	r.AddCommand(rfqOpenCmd())
	r.AddCommand(rfqListCmd())
	r.AddCommand(rfqShowCmd())
	return r
}

// parseRfqItem parses "item-id:quantity:price".
func parseRfqItem(s string) (domain.RfqItem, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return domain.RfqItem{}, fmt.Errorf("item %q: want item-id:quantity:price", s)
	}
	qty, err := strconv.Atoi(parts[1])
	if err != nil {
		return domain.RfqItem{}, fmt.Errorf("item %q: bad quantity: %w", s, err)
	}
	price, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return domain.RfqItem{}, fmt.Errorf("item %q: bad price: %w", s, err)
	}
	return domain.RfqItem{ItemID: parts[0], Quantity: qty, Price: price}, nil
}

func rfqOpenCmd() *cobra.Command {
	var items, vendors []string
	var deadline string
	cmd := &cobra.Command{
		Use:   "open <case-id>",
		Short: "Open an RFQ for a case",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := engine.RfqInput{CaseID: args[0], VendorIDs: vendors, BiddingDeadline: deadline}
			for _, s := range items {
				item, err := parseRfqItem(s)
				if err != nil {
					return err
				}
				in.Items = append(in.Items, item)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rfq, err := e.OpenRfq(ctx, in, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(rfq)
			})
		},
	}
	cmd.Flags().StringArrayVar(&items, "item", []string{}, "item as item-id:quantity:price (repeatable)")
	cmd.Flags().StringArrayVar(&vendors, "vendor", []string{}, "vendor id (repeatable)")
	cmd.Flags().StringVar(&deadline, "deadline", "", "RFC3339 bidding deadline")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("vendor")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func rfqListCmd() *cobra.Command {
	var caseID string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List RFQs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListRfqs(ctx, caseID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Case", "Status", "Vendors", "Deadline"})
				for _, r := range items {
					tw.AppendRow(table.Row{r.ID, r.CaseID, r.Status, len(r.VendorIDs), r.BiddingDeadline})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&caseID, "case", "", "case id filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func rfqShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an RFQ with its invites",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rfq, err := e.Repo.GetRfq(ctx, args[0])
				if err != nil {
					return err
				}
				invites, err := e.Repo.ListRfqInvites(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"rfq": rfq, "invites": invites})
			})
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	k := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
		Long:  "API keys authenticate callers of 'cl serve'. The raw key is printed once at creation; only its hash is stored.",
	}
	k.AddCommand(apikeyCreateCmd())
	k.AddCommand(apikeyListCmd())
	k.AddCommand(apikeyDeleteCmd())
	return k
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, actorName, actorRole, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			buf := make([]byte, 24)
			if _, err := rand.Read(buf); err != nil {
				return err
			}
			raw := "clk_" + hex.EncodeToString(buf)
			key := domain.APIKey{
				ID:        uuid.NewString(),
				ActorID:   actorID,
				ActorName: actorName,
				ActorRole: actorRole,
				Name:      name,
				KeyHash:   repo.HashAPIKey(raw),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": key.ID, "key": raw})
				}
				fmt.Printf("API key %s created for %s\n", key.ID, actorID)
				fmt.Printf("Key (store it now, it is not retrievable): %s\n", raw)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id the key acts as")
	cmd.Flags().StringVar(&actorName, "name", "", "actor display name")
	cmd.Flags().StringVar(&actorRole, "role", "sales", "actor role")
	cmd.Flags().StringVar(&name, "label", "", "key label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Role", "Label", "Created"})
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.ActorRole, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor id filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := zap.NewProduction()
			if err != nil {
				return err
			}
			defer log.Sync()
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			store := docstore.New(conn)
			e := engine.New(store, conn, log)
			authCfg := server.AuthConfig{
				JWTSecret:              cfg.Auth.JWTSecret,
				AllowLegacyActorHeader: cfg.Auth.AllowLegacyHeader,
				Logger:                 log,
			}
			if secret := os.Getenv("CASELINE_JWT_SECRET"); secret != "" {
				authCfg.JWTSecret = secret
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: cfg.Server.BasePath, Auth: authCfg})
			if err != nil {
				return err
			}
			server.StartWebhookDispatcher(cmd.Context(), e, cfg.Webhooks, log)
			srv := &http.Server{Addr: cfg.Server.Addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			log.Info("serving caseline api",
				zap.String("addr", cfg.Server.Addr),
				zap.String("base_path", cfg.Server.BasePath))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8944", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func actor() domain.Actor {
	return domain.Actor{
		ID:   viper.GetString("actor-id"),
		Name: viper.GetString("actor-name"),
		Role: viper.GetString("actor-role"),
	}
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	store := docstore.New(conn)
	e := engine.New(store, conn, nil)
	return fn(ctx, e)
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
