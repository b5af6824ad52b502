package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"studynerd/internal/config"
	"studynerd/internal/store"
	"studynerd/internal/tutor"
)

var (
	// Global flags
	verbose   bool
	apiKey    string
	workspace string
	resumeID  string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "studynerd",
	Short: "studyNERD - Visual Tutoring Chat",
	Long: `studyNERD is a terminal tutoring companion.

It chats with a mentor model that guides you toward understanding instead of
handing over finished answers, and turns the mentor's diagrams and image
directives into a visualization feed alongside the conversation.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip logger init for interactive mode (it has its own UI)
		if cmd.Use == "studynerd" && cmd.CalledAs() == "studynerd" {
			return nil
		}

		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat()
	},
}

// configCmd manages the workspace configuration
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage studyNERD configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.ConfigPath(resolveWorkspace()))
		if err != nil {
			return err
		}
		key := "(not set)"
		if cfg.LLM.APIKey != "" {
			key = "****" + lastN(cfg.LLM.APIKey, 4)
		}
		fmt.Printf("Chat model:      %s\n", cfg.LLM.Model)
		fmt.Printf("Image model:     %s\n", cfg.Image.Model)
		fmt.Printf("Image tier:      %s\n", cfg.Image.Tier)
		fmt.Printf("Knowledge level: %s\n", cfg.Tutor.KnowledgeLevel)
		fmt.Printf("Database:        %s\n", cfg.Memory.DatabasePath)
		fmt.Printf("API key:         %s\n", key)
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key [key]",
	Short: "Store the Gemini API key in the workspace config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ws := resolveWorkspace()
		path := config.ConfigPath(ws)
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg.LLM.APIKey = strings.TrimSpace(args[0])
		if cfg.LLM.APIKey == "" {
			return fmt.Errorf("API key is empty")
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		logger.Info("API key stored", zap.String("path", path))
		fmt.Printf("API key stored in %s\n", path)
		return nil
	},
}

var configSetLevelCmd = &cobra.Command{
	Use:   "set-level [beginner|intermediate|advanced]",
	Short: "Set the default knowledge level",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, ok := parseLevel(args[0])
		if !ok {
			return fmt.Errorf("unknown level %q (expected beginner, intermediate, or advanced)", args[0])
		}
		ws := resolveWorkspace()
		path := config.ConfigPath(ws)
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg.Tutor.KnowledgeLevel = string(level)
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Printf("Knowledge level set to %s\n", level)
		return nil
	},
}

// sessionsCmd lists stored tutoring sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored tutoring sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := st.ListSessions(50)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions stored yet.")
			return nil
		}
		for _, s := range sessions {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			fmt.Printf("%s  %-12s  %s  %s\n", s.ID, s.Level, s.UpdatedAt.Format("2006-01-02 15:04"), title)
		}
		return nil
	},
}

// sessionsDeleteCmd removes a stored session with its transcript and feed
var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete [session-id]",
	Short: "Delete a stored session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if _, err := st.GetSession(args[0]); err != nil {
			return err
		}
		if err := st.DeleteSession(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted session %s\n", args[0])
		return nil
	},
}

// exportCmd writes a session transcript as markdown
var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export a session transcript with its visualizations as markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		doc, err := st.ExportMarkdown(args[0])
		if err != nil {
			return err
		}

		out, _ := cmd.Flags().GetString("out")
		if out == "" {
			fmt.Print(doc)
			return nil
		}
		if err := os.WriteFile(out, []byte(doc), 0644); err != nil {
			return fmt.Errorf("failed to write export: %w", err)
		}
		fmt.Printf("Exported session %s to %s\n", args[0], out)
		return nil
	},
}

// versionCmd prints version information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("studyNERD v0.3.0")
	},
}

func resolveWorkspace() string {
	if workspace != "" {
		return workspace
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func openStore() (*store.LocalStore, error) {
	ws := resolveWorkspace()
	cfg, err := config.Load(config.ConfigPath(ws))
	if err != nil {
		return nil, err
	}
	return store.NewLocalStore(databasePath(ws, cfg))
}

// databasePath resolves the configured database path against the workspace.
func databasePath(ws string, cfg *config.Config) string {
	path := cfg.Memory.DatabasePath
	if path == "" {
		path = filepath.Join(".studynerd", "sessions.db")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(ws, path)
	}
	return path
}

func parseLevel(raw string) (tutor.KnowledgeLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "beginner":
		return tutor.LevelBeginner, true
	case "intermediate":
		return tutor.LevelIntermediate, true
	case "advanced":
		return tutor.LevelAdvanced, true
	}
	return "", false
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (overrides config and environment)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (defaults to the current directory)")
	rootCmd.Flags().StringVar(&resumeID, "resume", "", "Resume a stored session by id (see 'studynerd sessions')")

	exportCmd.Flags().String("out", "", "Write the export to a file instead of stdout")

	configCmd.AddCommand(configShowCmd, configSetKeyCmd, configSetLevelCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(configCmd, sessionsCmd, exportCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
