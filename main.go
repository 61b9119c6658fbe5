// Package main provides the entry point for the jsonic CLI application.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/jsonic/internal/audio"
	"github.com/dgnsrekt/jsonic/internal/remote"
	"github.com/dgnsrekt/jsonic/jsonic"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	serverURL  string
	caching    bool
	dryRun     bool
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "jsonic",
		Short: "Speak text and play sounds through a JSonic server",
		Long: paragraph(
			fmt.Sprintf("\nQueue %s and %s on independent channels, rendered by a JSonic server.",
				keyword("speech"), keyword("sounds")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return validateOptions(cmd)
		},
	}
)

func validateOptions(cmd *cobra.Command) error {
	if cmd.Flags().Changed("config") {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("unable to read config file: %w", err)
		}
	}

	dryRun = viper.GetBool("dry_run")
	if viper.GetBool("debug") {
		log.SetLevel(log.DebugLevel)
	}

	if _, err := remote.LoadConfigFromViper(); err != nil {
		return err
	}
	if _, err := jsonic.LoadConfigFromViper(); err != nil {
		return err
	}
	return nil
}

// session bundles an engine with the service and renderer it was built on.
type session struct {
	engine *jsonic.Engine
	player interface{ Close() error }
}

// newSession builds the engine from the loaded configuration. --dry-run,
// or a session that never renders, uses a simulated device.
func newSession(withAudio bool) (*session, error) {
	rcfg, err := remote.LoadConfigFromViper()
	if err != nil {
		return nil, err
	}
	cfg, err := jsonic.LoadConfigFromViper()
	if err != nil {
		return nil, err
	}

	logger := log.Default()
	client, err := remote.NewClient(rcfg, remote.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("unable to create client: %w", err)
	}

	var (
		renderer jsonic.Renderer
		closer   interface{ Close() error }
	)
	if dryRun || !withAudio {
		mp := audio.NewMockPlayer(client, logger)
		renderer, closer = mp, nopCloser{}
	} else {
		p, err := audio.NewPlayer(audio.DefaultPlayerConfig(), client, logger)
		if err != nil {
			return nil, fmt.Errorf("unable to open audio device (try --dry-run): %w", err)
		}
		renderer, closer = p, p
	}

	engine, err := jsonic.New(cfg, client, renderer, jsonic.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	log.Debug("engine ready", "server", client.BaseURL(), "caching", cfg.DefaultCaching, "dry_run", dryRun)
	return &session{engine: engine, player: closer}, nil
}

// close shuts the engine down, waiting at most timeout for the channels.
func (s *session) close(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := s.engine.Close(ctx)
	_ = s.player.Close()
	return err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// waitAll blocks until every handle finished and reports how many were
// cancelled.
func waitAll(ctx context.Context, handles []*jsonic.Handle) (int, error) {
	var cancelled int
	for _, h := range handles {
		outcome, err := h.Wait(ctx)
		if err != nil {
			return cancelled, err
		}
		if outcome == jsonic.Cancelled {
			cancelled++
		}
	}
	return cancelled, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "", "JSonic server root (default http://localhost:8888/)")
	rootCmd.PersistentFlags().BoolVarP(&caching, "cache", "c", false, "cache speech and sounds unless a request says otherwise")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "simulate playback instead of using the audio device")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log debug output")

	// Config bindings
	_ = viper.BindPFlag("server.url", rootCmd.PersistentFlags().Lookup("server"))
	_ = viper.BindPFlag("default_caching", rootCmd.PersistentFlags().Lookup("cache"))
	_ = viper.BindPFlag("dry_run", rootCmd.PersistentFlags().Lookup("dry-run"))
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	viper.SetDefault("server.url", remote.DefaultConfig().BaseURL)
	viper.SetDefault("server.format", remote.DefaultConfig().Format)
	viper.SetDefault("default_caching", false)

	rootCmd.AddCommand(sayCmd, playCmd, enginesCmd, demoCmd, cacheCmd, configCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "jsonic")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "jsonic")}, dirs...)
	}

	if c := os.Getenv("JSONIC_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("jsonic")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("jsonic")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "jsonic.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
