package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# JSonic server
server:
  # root of the REST API
  url: "http://localhost:8888/"
  # audio container requested for speech and assumed for sounds
  format: ".wav"
  timeout: "30s"
  # throttle outbound requests, 0 disables throttling
  requests_per_minute: 0

# cache speech and sounds unless a request says otherwise
default_caching: false
# speech engine used by say
engine: "espeak"

# channel defaults, restored by reset
voice: "default"
rate: 200
pitch: 0.5
volume: 1.0

cache:
  # 0 keeps every entry for the lifetime of the process
  max_entries: 0
  # persist the cache between runs
  # snapshot: "~/.cache/jsonic/cache.snapshot"
`

var printConfigPath bool

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the jsonic config file",
	Long:    paragraph(fmt.Sprintf("\n%s the jsonic config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("jsonic config\njsonic config --config path/to/jsonic.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}
		if printConfigPath {
			fmt.Println(configFile)
			return nil
		}

		c, err := editor.Cmd("jsonic", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

// ensureConfigFile writes the default configuration when configFile does
// not exist yet.
func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	_, err := os.Stat(configFile)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("unable to stat config file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
		return fmt.Errorf("unable create directory: %w", err)
	}
	if err := os.WriteFile(configFile, []byte(defaultConfig), 0o600); err != nil {
		return fmt.Errorf("unable to write config file: %w", err)
	}
	return nil
}

func init() {
	configCmd.Flags().BoolVar(&printConfigPath, "path", false, "print the config file location instead of editing it")
}
