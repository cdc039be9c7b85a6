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
	"go.uber.org/zap"

	"rageraps/internal/agent"
	"rageraps/internal/arena"
	"rageraps/internal/config"
	"rageraps/internal/db"
	"rageraps/internal/domain"
	"rageraps/internal/engine"
	"rageraps/internal/knowledge"
	"rageraps/internal/llm"
	"rageraps/internal/migrate"
	"rageraps/internal/repo"
	"rageraps/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rb",
	Short: "RageRaps CLI",
	Long: `RageRaps runs AI rap battles between two contestants.
- Workspace: your .rageraps directory holding the battle database.
- Battle: two contestants, two styles, a fixed number of rounds.
- Round: both verses are generated concurrently, then judged.
- Judgment: AI verdict per round, or a manual call when the judge fails.
- Knowledge: lyrics and bios imported from CSV, retrieved as context.
- Event log: diary of changes, view with 'rb log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initViper)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initViper() {
	viper.SetEnvPrefix("RAGERAPS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(battleCmd())
	rootCmd.AddCommand(knowledgeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage configuration"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default rageraps.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	return cfg
}

func battleCmd() *cobra.Command {
	battle := &cobra.Command{Use: "battle", Short: "Manage battles"}
	battle.AddCommand(battleCreateCmd())
	battle.AddCommand(battleListCmd())
	battle.AddCommand(battleShowCmd())
	battle.AddCommand(battleAdvanceCmd())
	battle.AddCommand(battleJudgeCmd())
	battle.AddCommand(battleUserJudgeCmd())
	battle.AddCommand(battleDeleteCmd())
	return battle
}

func battleDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <battle-id>",
		Short: "Delete a battle and all its rounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteBattle(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func battleCreateCmd() *cobra.Command {
	var c1, c2, s1, s2 string
	var rounds int
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a battle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				b, err := e.CreateBattle(ctx, engine.BattleCreateOptions{
					Contestant1: c1,
					Contestant2: c2,
					Style1:      s1,
					Style2:      s2,
					Rounds:      rounds,
					ActorID:     viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(b)
			})
		},
	}
	cmd.Flags().StringVar(&c1, "contestant1", "", "first contestant name")
	cmd.Flags().StringVar(&c2, "contestant2", "", "second contestant name")
	cmd.Flags().StringVar(&s1, "style1", "", "first contestant style")
	cmd.Flags().StringVar(&s2, "style2", "", "second contestant style")
	cmd.Flags().IntVar(&rounds, "rounds", 0, "round count (0 uses config)")
	_ = cmd.MarkFlagRequired("contestant1")
	_ = cmd.MarkFlagRequired("contestant2")
	return cmd
}

func battleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List battles",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				battles, err := r.ListBattles(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(battles)
				}
				t := table.NewWriter()
				t.SetOutputMirror(os.Stdout)
				t.AppendHeader(table.Row{"ID", "Contestants", "Rounds", "Tally", "Status", "Winner"})
				for _, b := range battles {
					winner := b.Winner
					if b.Draw {
						winner = "(draw)"
					}
					t.AppendRow(table.Row{
						b.ID,
						fmt.Sprintf("%s vs %s", b.Contestant1, b.Contestant2),
						b.RoundCount,
						fmt.Sprintf("%d-%d", b.Wins1, b.Wins2),
						b.Status,
						winner,
					})
				}
				t.Render()
				return nil
			})
		},
	}
}

func battleShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <battle-id>",
		Short: "Show a battle with all rounds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				b, err := r.LoadBattle(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(b)
				}
				printBattle(b)
				return nil
			})
		},
	}
}

func battleAdvanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "advance <battle-id>",
		Short: "Run the next round",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rnd, err := e.AdvanceRound(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					var formatErr *arena.FormatError
					if errors.As(err, &formatErr) {
						fmt.Println("warning:", err)
					} else {
						return err
					}
				}
				return printJSON(rnd)
			})
		},
	}
}

func battleJudgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "judge <battle-id> <round-id>",
		Short: "Request an AI judgment for a round",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.JudgeRoundAI(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(j)
			})
		},
	}
}

func battleUserJudgeCmd() *cobra.Command {
	var winner, feedback string
	cmd := &cobra.Command{
		Use:   "user-judge <battle-id> <round-id>",
		Short: "Record a manual judgment for a round",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				j, err := e.RecordManualJudgment(ctx, args[0], args[1], winner, feedback, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(j)
			})
		},
	}
	cmd.Flags().StringVar(&winner, "winner", "", "winning contestant name")
	cmd.Flags().StringVar(&feedback, "feedback", "", "free-text feedback")
	_ = cmd.MarkFlagRequired("winner")
	return cmd
}

func knowledgeCmd() *cobra.Command {
	know := &cobra.Command{Use: "knowledge", Short: "Manage the knowledge store"}

	importCmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import lyrics/bios from CSV (artist,style,title,kind,content)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				n, err := knowledge.ImportCSV(ctx, r.DB, f)
				if err != nil {
					return err
				}
				fmt.Printf("imported %d rows\n", n)
				return nil
			})
		},
	}

	var style, kind string
	var limit int
	searchCmd := &cobra.Command{
		Use:   "search <entity>",
		Short: "Search stored knowledge for an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				store := knowledge.Store{DB: r.DB}
				snippets, err := store.Retrieve(ctx, args[0], style, kind, limit)
				if err != nil {
					return err
				}
				return printJSON(snippets)
			})
		},
	}
	searchCmd.Flags().StringVar(&style, "style", "", "style filter")
	searchCmd.Flags().StringVar(&kind, "kind", knowledge.KindLyric, "entry kind (lyric or bio)")
	searchCmd.Flags().IntVar(&limit, "limit", 5, "max results")

	know.AddCommand(importCmd)
	know.AddCommand(searchCmd)
	return know
}

func logCmd() *cobra.Command {
	logRoot := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var n int
	var battleID, evtType string
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				events, err := r.LatestEvents(ctx, n, battleID, evtType, "", "")
				if err != nil {
					return err
				}
				return printJSON(events)
			})
		},
	}
	tail.Flags().IntVarP(&n, "lines", "n", 20, "number of events")
	tail.Flags().StringVar(&battleID, "battle", "", "filter by battle id")
	tail.Flags().StringVar(&evtType, "type", "", "filter by event type")
	logRoot.AddCommand(tail)
	return logRoot
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				authCfg := server.AuthConfig{JWTSecret: os.Getenv("RAGERAPS_JWT_SECRET")}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving RageRaps API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	store := knowledge.Store{DB: conn}
	rapper := &agent.Rapper{
		LLM:          llm.NewGemini(cfg.APIKey(), cfg.LLM.Model, cfg.LLM.Temperature),
		Styles:       cfg.Styles,
		LyricResults: cfg.Knowledge.LyricResults,
		BioResults:   cfg.Knowledge.BioResults,
		Log:          log,
	}
	critic := &agent.Critic{
		LLM:        llm.NewGemini(cfg.APIKey(), cfg.LLM.JudgeModel, cfg.LLM.JudgeTemperature),
		BioResults: cfg.Knowledge.BioResults,
		Log:        log,
	}
	orch := &arena.Orchestrator{
		Generator:       rapper,
		Judge:           critic,
		Knowledge:       store,
		ProducerTimeout: cfg.ProducerTimeout(),
		JudgeTimeout:    cfg.JudgeTimeout(),
		Log:             log,
	}
	return fn(ctx, engine.New(conn, cfg, orch, log))
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(workspace)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBattle(b domain.Battle) {
	winner := b.Winner
	if b.Draw {
		winner = "(draw)"
	}
	fmt.Printf("%s vs %s  [%s]  %d-%d  %s\n", b.Contestant1, b.Contestant2, b.Status, b.Wins1, b.Wins2, winner)
	for _, rnd := range b.Rounds {
		fmt.Printf("\n--- Round %d (%s) ---\n", rnd.RoundNumber, rnd.Status)
		for _, v := range []*domain.Verse{rnd.Verse1, rnd.Verse2} {
			if v == nil {
				continue
			}
			fmt.Printf("\n%s:\n%s\n", v.Contestant, v.Content)
			if v.Error != "" {
				fmt.Printf("(%s)\n", v.Error)
			}
		}
		if rnd.Judgment != nil {
			fmt.Printf("\nJudgment (%s): %s\n", rnd.Judgment.Source, rnd.Judgment.Winner)
			if rnd.Judgment.Comparison != "" {
				fmt.Println(rnd.Judgment.Comparison)
			}
		} else {
			fmt.Println("\nJudgment: pending")
		}
	}
}
