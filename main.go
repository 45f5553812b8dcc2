package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"outline_assistant/config"
	"outline_assistant/generator"
	"outline_assistant/server"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:           "outline-assistant",
	Short:         "Writing assistant that turns brain dumps into document outlines",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, key relay and sidebar websocket",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.json", "path to config.json")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable info logs")

	serveCmd.Flags().String("addr", "", "http listen address (overrides config.server_addr)")

	rootCmd.AddCommand(serveCmd, analyzeCmd, outlineCmd, applyCmd, watchCmd, authCmd)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	gen, err := buildGenerator(cfg)
	if err != nil {
		return err
	}
	srv, err := server.New(gen, server.Options{
		APIKey:  cfg.LLM.APIKey,
		Logger:  log.Default(),
		Verbose: verbose,
	})
	if err != nil {
		return err
	}

	listen := cfg.ServerAddr
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		listen = addr
	}
	if listen == "" {
		listen = config.DefaultServerAddr
	}
	httpSrv := &http.Server{Addr: listen, Handler: srv.Routes(), ReadHeaderTimeout: 10 * time.Second}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	pterm.Info.Printfln("Starting web server on %s", listen)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	pterm.Info.Println("Server stopped")
	return nil
}

func buildGenerator(cfg config.Config) (*generator.Generator, error) {
	llm, err := buildLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}
	return generator.New(llm, log.Default(), verbose)
}

func buildLLM(cfg config.LLMConfig) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider: cfg.Provider,
		Model:    cfg.Model,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		RelayURL: cfg.RelayURL,
	}
	switch cfg.Provider {
	case "", "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek":
		// OpenAI-compatible endpoint; base_url is mandatory.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

// readInput returns the text of the file named by args[0], or stdin when no
// file (or "-") is given.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", err
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no text provided")
	}
	return text, nil
}
