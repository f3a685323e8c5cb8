// Package main is the LegalChat auth gateway binary.
//
// DESIGN: A single long-running process with two subcommands:
//   - serve (default): load .env and config, set up logging, run the gateway
//   - version:         print the build version
//
// Configuration comes from defaults, an optional YAML file (--config) and the
// environment; --port and --debug override the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/legalchat/auth-gateway/internal/config"
	"github.com/legalchat/auth-gateway/internal/gateway"
	"github.com/legalchat/auth-gateway/internal/monitoring"
	"github.com/legalchat/auth-gateway/internal/utils"
)

// Version is set at build time via ldflags.
var Version = "dev"

const shutdownTimeout = 10 * time.Second

// serveOptions are the command-line overrides of the serve command.
type serveOptions struct {
	configPath string
	envFiles   []string
	debug      bool
	port       int
}

func main() {
	args := os.Args[1:]
	command := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		opts, err := parseServeArgs(args)
		if errors.Is(err, errHelp) {
			printHelp()
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		if err := runServe(opts); err != nil {
			log.Error().Err(err).Msg("gateway stopped")
			os.Exit(1)
		}
	case "version":
		fmt.Println(Version)
	case "help":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n", command)
		printHelp()
		os.Exit(2)
	}
}

var errHelp = errors.New("help requested")

func parseServeArgs(args []string) (serveOptions, error) {
	var opts serveOptions
	value := func(i int, flag string) (string, error) {
		if i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", flag)
		}
		return args[i+1], nil
	}

	for i := 0; i < len(args); i++ {
		switch arg := args[i]; arg {
		case "-h", "--help":
			return opts, errHelp
		case "-d", "--debug":
			opts.debug = true
		case "-c", "--config":
			v, err := value(i, arg)
			if err != nil {
				return opts, err
			}
			opts.configPath = v
			i++
		case "-e", "--env-file":
			v, err := value(i, arg)
			if err != nil {
				return opts, err
			}
			opts.envFiles = append(opts.envFiles, v)
			i++
		case "-p", "--port":
			v, err := value(i, arg)
			if err != nil {
				return opts, err
			}
			port, err := strconv.Atoi(v)
			if err != nil || port <= 0 || port > 65535 {
				return opts, fmt.Errorf("invalid port %q", v)
			}
			opts.port = port
			i++
		default:
			return opts, fmt.Errorf("unknown option: %s", arg)
		}
	}
	if opts.configPath == "" {
		opts.configPath = os.Getenv("LEGALCHAT_GATEWAY_CONFIG")
	}
	return opts, nil
}

// loadEnvFiles loads the given files, or ./.env when none are given. Variables
// already set in the environment win.
func loadEnvFiles(files []string) {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return
		}
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load %s: %v\n", f, err)
		}
	}
}

func loadConfig(opts serveOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	if opts.debug {
		cfg.Monitoring.LogLevel = "debug"
	}
	return cfg, nil
}

func runServe(opts serveOptions) error {
	loadEnvFiles(opts.envFiles)

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	monitoring.Setup(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: "stdout",
	})

	gateway.Version = Version
	gw, err := gateway.New(cfg)
	if err != nil {
		return err
	}
	logStartup(cfg, gw)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := gw.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// logStartup reports the effective lane modes once at startup.
func logStartup(cfg *config.Config, gw *gateway.Gateway) {
	voice := "guarded"
	if cfg.TTS.VoiceOff {
		voice = "off (microphone blocked)"
	}
	ocrMode := "off"
	if cfg.OCR.Active() {
		ocrMode = fmt.Sprintf("on (model=%s, key=%s, jpeg-only)", cfg.OCR.Model, utils.MaskSecret(cfg.OCR.APIKey))
	}
	storage := "limited"
	if gw.SigningReady() {
		storage = fmt.Sprintf("s3-signing-ready (cache ttl=%s)", cfg.OCR.CacheTTL)
	}
	mcpMode := "off"
	if cfg.MCP.Enabled {
		mcpMode = fmt.Sprintf("on (bearer=%s, admin=%s)",
			utils.MaskSecret(cfg.MCP.BearerToken), utils.MaskSecret(cfg.MCP.AdminBearerToken))
	}

	log.Info().
		Str("version", Version).
		Int("port", cfg.Server.Port).
		Str("upstream", cfg.Upstream.BaseURL()).
		Str("public_url", cfg.Upstream.PublicURL).
		Str("logout", cfg.Auth.LogoutMode).
		Msg("LegalChat auth gateway starting")
	log.Info().
		Str("voice", voice).
		Str("ocr", ocrMode).
		Str("storage", storage).
		Str("mcp", mcpMode).
		Bool("logto_branding", cfg.Logto.BrandingEnabled).
		Msg("lane modes")
}

func printHelp() {
	fmt.Print(`LegalChat auth gateway

Usage:
  auth-gateway [serve] [options]
  auth-gateway version

Options:
  -c, --config <path>     YAML config file (default: $LEGALCHAT_GATEWAY_CONFIG)
  -e, --env-file <path>   env file to load before reading config (repeatable, default: .env)
  -p, --port <port>       listen port (overrides config and PORT)
  -d, --debug             debug logging
  -h, --help              show this help
`)
}
