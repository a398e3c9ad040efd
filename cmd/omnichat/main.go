package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JawandS/omni-chat/internal/catalogue"
	"github.com/JawandS/omni-chat/internal/chat"
	"github.com/JawandS/omni-chat/internal/config"
	httpserver "github.com/JawandS/omni-chat/internal/http"
	"github.com/JawandS/omni-chat/internal/llm/ollama"
	"github.com/JawandS/omni-chat/internal/logging"
	"github.com/JawandS/omni-chat/internal/mailer"
	"github.com/JawandS/omni-chat/internal/modelparams"
	"github.com/JawandS/omni-chat/internal/scheduler"
	"github.com/JawandS/omni-chat/internal/settings"
	"github.com/JawandS/omni-chat/internal/storage"
)

var (
	portFlag    int
	verboseFlag bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "omnichat",
		Short: "Omni Chat - one interface for every AI provider",
		Long: `Omni Chat is a locally-hosted web application for chatting with
multiple AI providers through one interface, with persistent history,
projects and scheduled AI tasks.`,
		RunE: runServer,
	}

	rootCmd.Flags().IntVarP(&portFlag, "port", "p", 0, "HTTP server port (default 5000)")
	rootCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Verbose output")

	// Chat management subcommand
	chatsCmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage stored chats",
	}
	chatsListCmd := &cobra.Command{
		Use:   "list",
		Short: "List all chats",
		RunE:  listChats,
	}
	chatsCmd.AddCommand(chatsListCmd)
	rootCmd.AddCommand(chatsCmd)

	// Logs subcommand
	logsCmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the current log file path",
		RunE:  showLogs,
	}
	rootCmd.AddCommand(logsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	// Load .env files from common locations (ignore errors if not found)
	homeDir, _ := os.UserHomeDir()
	godotenv.Load(".env")
	godotenv.Load(filepath.Join(homeDir, ".env"))

	return config.Load()
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if portFlag > 0 {
		cfg.Port = portFlag
	}

	if err := logging.Init(cfg.DataPath); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Close()
	if !verboseFlag {
		logging.SetLevel(logging.LevelInfo)
	}

	logging.Info("Starting Omni Chat")

	store, err := storage.NewSQLiteStore(cfg.DataPath)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	sm := settings.NewManager(cfg.DataPath)
	godotenv.Load(sm.Path())

	cat, err := catalogue.Load(cfg.DataPath)
	if err != nil {
		return fmt.Errorf("failed to load provider catalogue: %w", err)
	}

	params, err := modelparams.Load()
	if err != nil {
		return fmt.Errorf("failed to load parameter catalogue: %w", err)
	}

	service := chat.NewService(sm, cfg.OllamaURL)
	m := mailer.New(sm)
	sched := scheduler.NewScheduler(store, service, m)

	// Handle graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logging.Info("Received shutdown signal")
		cancel()
	}()

	refreshOllamaModels(ctx, cfg, cat)

	sched.Start(ctx)
	defer sched.Stop()

	server := httpserver.NewServer(cfg, store, service, sched, m, sm, cat, params, cfg.Port)
	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// refreshOllamaModels rebuilds the local provider's catalogue entry
// from the live server. An unreachable server removes the entry.
func refreshOllamaModels(ctx context.Context, cfg *config.Config, cat *catalogue.Catalogue) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	models, err := ollama.NewClient(cfg.OllamaURL).ListModels(probeCtx)
	if err != nil {
		logging.Info("Ollama not reachable at %s, local models unavailable", cfg.OllamaURL)
		models = nil
	}
	if err := cat.SetOllama(models); err != nil {
		logging.Warn("Failed to update Ollama catalogue entry: %v", err)
	}
}

func listChats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.DataPath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	chats, err := store.ListChats()
	if err != nil {
		return fmt.Errorf("failed to list chats: %w", err)
	}

	if len(chats) == 0 {
		fmt.Println("No chats found")
		return nil
	}
	for _, c := range chats {
		fmt.Printf("%s  %-40s  %s/%s  %s\n",
			c.ID, c.Title, c.Provider, c.Model, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func showLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logging.Init(cfg.DataPath); err != nil {
		return err
	}
	defer logging.Close()

	fmt.Println(logging.GetLogPath())
	return nil
}
