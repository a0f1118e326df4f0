package config

import (
	"fmt"
	"os"
	"strings"

	perrors "github.com/jmgilman/go/errors"
	yaml "gopkg.in/yaml.v2"
)

const DefaultP4Command = "p4"
const DefaultGitCommand = "git"
const DefaultBranch = "main"

// User - target identity for a Perforce user
type User struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

// Config for p4gittransfer
type Config struct {
	UserMapping map[string]User `yaml:"usermapping"`  // p4 user -> git identity
	P4Command   string          `yaml:"p4_command"`   // Name/path of p4 executable
	GitCommand  string          `yaml:"git_command"`  // Name/path of git executable
	IgnoreFiles []string        `yaml:"ignore_files"` // Names never copied from the workspace
	Branch      string          `yaml:"branch"`       // Ref name for gogit/fastimport backends
}

// Unmarshal the config
func Unmarshal(config []byte) (*Config, error) {
	// Default values specified here
	cfg := &Config{
		P4Command:   DefaultP4Command,
		GitCommand:  DefaultGitCommand,
		IgnoreFiles: []string{".gitignore"},
		Branch:      DefaultBranch,
	}
	err := yaml.Unmarshal(config, cfg)
	if err != nil {
		return nil, perrors.Wrap(err, perrors.CodeInvalidConfig,
			"invalid configuration. make sure to use 'single quotes' around strings with special characters")
	}
	err = cfg.validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile - loads config file
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, perrors.Wrapf(err, perrors.CodeInvalidConfig, "failed to load %v", filename)
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, perrors.Wrapf(err, perrors.GetCode(err), "failed to load %v", filename)
	}
	return cfg, nil
}

// LoadConfigString - loads a string
func LoadConfigString(content []byte) (*Config, error) {
	cfg, err := Unmarshal([]byte(content))
	return cfg, err
}

func (c *Config) validate() error {
	if len(c.UserMapping) == 0 {
		return perrors.New(perrors.CodeInvalidConfig, "'usermapping' key not found in settings")
	}
	for handle, u := range c.UserMapping {
		if strings.TrimSpace(u.Name) == "" || strings.TrimSpace(u.Email) == "" {
			return perrors.New(perrors.CodeInvalidConfig,
				fmt.Sprintf("usermapping entry '%s' needs both name and email", handle))
		}
	}
	if c.P4Command == "" {
		c.P4Command = DefaultP4Command
	}
	if c.GitCommand == "" {
		c.GitCommand = DefaultGitCommand
	}
	if c.Branch == "" {
		c.Branch = DefaultBranch
	}
	return nil
}
