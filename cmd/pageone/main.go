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

	"pageone/internal/app"
	"pageone/internal/config"
	"pageone/internal/db"
	"pageone/internal/domain"
	"pageone/internal/engine"
	"pageone/internal/migrate"
	"pageone/internal/repo"
	"pageone/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pageone",
	Short: "Page One CLI",
	Long: `Page One matches screenwriters with producers, one page at a time.
- Writers author snippets: a title, genre, synopsis, hook, plot summary, and best scene.
- Producers discover snippets one random card at a time and triage each:
  burn it (gone for good), shortlist it (saved for later), or greenlight it.
- A greenlight is a match: it opens a message thread between the producer
  and the writer so the two can talk.
- The workspace is a .pageone directory holding only the database; config
  lives in the DB and can be imported from pageone.yml.
- Event log: diary of changes, view with 'pageone log tail'.`,
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
	viper.SetEnvPrefix("PAGEONE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("as", "", "acting user (id or email)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("as", rootCmd.PersistentFlags().Lookup("as"))
}

func registerCommands() {
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(snippetCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(triageCmd())
	rootCmd.AddCommand(shortlistCmd())
	rootCmd.AddCommand(threadCmd())
	rootCmd.AddCommand(messageCmd())
	rootCmd.AddCommand(unreadCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.WaitReady(ctx, conn, 0); err != nil {
		return err
	}
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := db.WaitReady(ctx, conn, 0); err != nil {
		return err
	}
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	cfg, err := app.ResolveConfig(ctx, workspace, "", r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e)
}

// actingUser resolves --as to a stored account. Emails and ids both work.
func actingUser(ctx context.Context, r repo.Repo) (domain.User, error) {
	as := strings.TrimSpace(viper.GetString("as"))
	if as == "" {
		return domain.User{}, fmt.Errorf("--as is required (user id or email)")
	}
	if strings.Contains(as, "@") {
		return r.GetUserByEmail(ctx, as)
	}
	return r.GetUser(ctx, as)
}

func userCmd() *cobra.Command {
	user := &cobra.Command{Use: "user", Short: "Manage accounts"}
	user.AddCommand(userCreateCmd())
	user.AddCommand(userListCmd())
	user.AddCommand(userAPIKeyCmd())
	return user
}

func userCreateCmd() *cobra.Command {
	var email, password, userType string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a writer or producer account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := e.SignUp(ctx, email, password, userType)
				if err != nil {
					return err
				}
				return printJSONOrTable(u)
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&userType, "type", "", "writer or producer")
	return cmd
}

func userListCmd() *cobra.Command {
	var userType string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				users, err := r.ListUsers(ctx, userType)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Email", "Type", "Created"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Email, u.Type, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&userType, "type", "", "filter by type (writer|producer)")
	return cmd
}

func userAPIKeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Mint an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				raw, k, err := e.CreateAPIKey(ctx, u.ID, name)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"id": k.ID, "key": raw, "name": k.Name})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				keys, err := e.Repo.ListAPIKeys(ctx, u.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				return e.Repo.DeleteAPIKey(ctx, args[0], u.ID)
			})
		},
	}

	apikey.AddCommand(create, list, revoke)
	return apikey
}

func snippetCmd() *cobra.Command {
	snippet := &cobra.Command{Use: "snippet", Short: "Author and manage snippets"}
	snippet.AddCommand(snippetCreateCmd())
	snippet.AddCommand(snippetListCmd())
	snippet.AddCommand(snippetShowCmd())
	snippet.AddCommand(snippetUpdateCmd())
	snippet.AddCommand(snippetDeleteCmd())
	return snippet
}

func snippetCreateCmd() *cobra.Command {
	var opts engine.SnippetCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Author a snippet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				opts.WriterID = u.ID
				s, err := e.CreateSnippet(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Title, "title", "", "snippet title")
	cmd.Flags().StringVar(&opts.Genre, "genre", "", "genre")
	cmd.Flags().StringVar(&opts.Synopsis, "synopsis", "", "logline synopsis")
	cmd.Flags().StringVar(&opts.Hook, "hook", "", "the hook")
	cmd.Flags().StringVar(&opts.PlotSummary, "plot-summary", "", "plot summary")
	cmd.Flags().StringVar(&opts.BestScene, "best-scene", "", "best scene excerpt")
	return cmd
}

func snippetListCmd() *cobra.Command {
	var f repo.SnippetFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snippets",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if f.WriterID == "" {
					if u, err := actingUser(ctx, e.Repo); err == nil {
						f.WriterID = u.ID
					}
				}
				snippets, err := e.Repo.ListSnippets(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snippets)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Genre", "Status", "Updated"})
				for _, s := range snippets {
					tw.AppendRow(table.Row{s.ID, s.Title, s.Genre, s.Status, s.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.WriterID, "writer", "", "writer id (defaults to --as)")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func snippetShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <snippet-id>",
		Short: "Show a snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				s, err := r.GetSnippet(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
}

func snippetUpdateCmd() *cobra.Command {
	var title, genre, synopsis, hook, plotSummary, bestScene string
	cmd := &cobra.Command{
		Use:   "update <snippet-id>",
		Short: "Update a snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				opts := engine.SnippetUpdateOptions{ID: args[0], ActorID: u.ID}
				if cmd.Flags().Changed("title") {
					opts.Title = &title
				}
				if cmd.Flags().Changed("genre") {
					opts.Genre = &genre
				}
				if cmd.Flags().Changed("synopsis") {
					opts.Synopsis = &synopsis
				}
				if cmd.Flags().Changed("hook") {
					opts.Hook = &hook
				}
				if cmd.Flags().Changed("plot-summary") {
					opts.PlotSummary = &plotSummary
				}
				if cmd.Flags().Changed("best-scene") {
					opts.BestScene = &bestScene
				}
				s, err := e.UpdateSnippet(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "snippet title")
	cmd.Flags().StringVar(&genre, "genre", "", "genre")
	cmd.Flags().StringVar(&synopsis, "synopsis", "", "logline synopsis")
	cmd.Flags().StringVar(&hook, "hook", "", "the hook")
	cmd.Flags().StringVar(&plotSummary, "plot-summary", "", "plot summary")
	cmd.Flags().StringVar(&bestScene, "best-scene", "", "best scene excerpt")
	return cmd
}

func snippetDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <snippet-id>",
		Short: "Delete a snippet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				return e.DeleteSnippet(ctx, args[0], u.ID)
			})
		},
	}
}

func discoverCmd() *cobra.Command {
	var exclude []string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Draw a random undecided snippet",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				s, err := e.NextSnippet(ctx, u.ID, exclude)
				if errors.Is(err, engine.ErrNoEligibleSnippets) {
					fmt.Println("no more snippets")
					return nil
				}
				if err != nil {
					return err
				}
				return printJSONOrTable(s)
			})
		},
	}
	cmd.Flags().StringSliceVar(&exclude, "exclude", nil, "snippet ids to skip this draw")
	return cmd
}

func triageCmd() *cobra.Command {
	triage := &cobra.Command{Use: "triage", Short: "Decide on a snippet"}

	burn := &cobra.Command{
		Use:   "burn <snippet-id>",
		Short: "Reject a snippet for good",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				return e.Burn(ctx, u.ID, args[0])
			})
		},
	}

	shortlist := &cobra.Command{
		Use:   "shortlist <snippet-id>",
		Short: "Save a snippet for later",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				entry, err := e.Shortlist(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(entry)
			})
		},
	}

	greenlight := &cobra.Command{
		Use:   "greenlight <snippet-id>",
		Short: "Greenlight a snippet and open a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				t, err := e.Greenlight(ctx, u.ID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}

	triage.AddCommand(burn, shortlist, greenlight)
	return triage
}

func shortlistCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shortlist",
		Short: "List your shortlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				entries, err := e.ListShortlist(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Snippet", "Title", "Genre", "Shortlisted"})
				for _, entry := range entries {
					tw.AppendRow(table.Row{entry.SnippetID, entry.Snapshot.Title, entry.Snapshot.Genre, entry.TS})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func threadCmd() *cobra.Command {
	thread := &cobra.Command{Use: "thread", Short: "Message threads"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List your threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				summaries, err := e.ThreadSummaries(ctx, u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summaries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "With", "Last Text", "Last Message", "Unread"})
				for _, s := range summaries {
					tw.AppendRow(table.Row{s.Thread.ID, s.Thread.Preview.Title, s.CounterpartEmail, s.LastMessageText, s.Thread.LastMessageAt, s.Unread})
				}
				tw.Render()
				return nil
			})
		},
	}

	show := &cobra.Command{
		Use:   "show <thread-id>",
		Short: "Show a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				t, err := e.GetThread(ctx, args[0], u.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}

	del := &cobra.Command{
		Use:   "delete <thread-id>",
		Short: "Delete a thread and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				return e.DeleteThread(ctx, args[0], u.ID)
			})
		},
	}

	read := &cobra.Command{
		Use:   "read <thread-id>",
		Short: "Mark a thread read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				n, err := e.MarkThreadRead(ctx, args[0], u.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]int{"messages_read": n})
			})
		},
	}

	thread.AddCommand(list, show, del, read)
	return thread
}

func messageCmd() *cobra.Command {
	message := &cobra.Command{Use: "message", Short: "Thread messages"}

	list := &cobra.Command{
		Use:   "list <thread-id>",
		Short: "List a thread's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				msgs, err := e.ListThreadMessages(ctx, args[0], u.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(msgs)
				}
				for _, m := range msgs {
					marker := " "
					if !m.Read && m.RecipientID == u.ID {
						marker = "*"
					}
					fmt.Printf("%s [%s] %s: %s\n", marker, m.TS, m.SenderID, m.Text)
				}
				return nil
			})
		},
	}

	var text string
	send := &cobra.Command{
		Use:   "send <thread-id>",
		Short: "Send a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				m, err := e.SendMessage(ctx, args[0], u.ID, text)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	send.Flags().StringVar(&text, "text", "", "message text")

	message.AddCommand(list, send)
	return message
}

func unreadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unread",
		Short: "Unread message counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				total, byThread, err := e.UnreadSummary(ctx, u.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"total": total, "by_thread": byThread})
			})
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Dashboard summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := actingUser(ctx, e.Repo)
				if err != nil {
					return err
				}
				st, err := e.Stats(ctx, u.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(st)
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect app config",
		Long:  "Config is the rulebook (stored in DB): the genre catalog, the triage eligibility model, and startup/webhook settings. Import from pageone.yml if desired.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configImportCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show active config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
}

func configValidateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
			if _, err := config.FromFile(path); err != nil {
				return err
			}
			fmt.Println("config OK:", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config file path")
	return cmd
}

func configImportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import config into the DB",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				path := file
				if path == "" {
					path = config.Path(viper.GetString("workspace"))
				}
				cfg, err := config.FromFile(path)
				if err != nil {
					return err
				}
				if err := r.UpsertAppConfig(ctx, app.DefaultAppName, cfg); err != nil {
					return err
				}
				fmt.Println("config imported from", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "config file path")
	return cmd
}

func configInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default pageone.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(app.DefaultAppName)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "The diary of everything that happened: signups, snippets, triage decisions, threads, and messages.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

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
			attempts := 0
			if fileCfg, err := config.LoadOptional(workspace); err == nil && fileCfg != nil {
				attempts = fileCfg.Startup.RetryAttempts
			}
			if err := db.WaitReady(cmd.Context(), conn, attempts); err != nil {
				return err
			}
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			cfg, err := app.ResolveConfig(cmd.Context(), workspace, "", r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("PAGEONE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PAGEONE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
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
			fmt.Printf("Serving Page One API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
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
