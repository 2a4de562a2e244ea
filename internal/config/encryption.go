package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// DefaultConfigName is the file looked up when a directory is given
const DefaultConfigName = "encrypted.json"

// DefaultPasswordEnv overrides defaultPassword so it can stay out of the file
const DefaultPasswordEnv = "PAGECRYPT_DEFAULT_PASSWORD"

// ErrConfigLoad is returned for a missing, unreadable or invalid encryption config
var ErrConfigLoad = errors.New("failed to load encryption config")

// ReplaceSpec describes the placeholder written over an encrypted node
type ReplaceSpec struct {
	// InnerHTML selects innerHTML replacement (keep the element, swap its
	// children). Absent means true.
	InnerHTML *bool  `mapstructure:"innerHTML"`
	Content   string `mapstructure:"content"`
}

// UseInnerHTML reports whether the node's children, not the node, are replaced
func (r *ReplaceSpec) UseInnerHTML() bool {
	return r.InnerHTML == nil || *r.InnerHTML
}

// Rule selects DOM fragments to encrypt
type Rule struct {
	Name      string       `mapstructure:"name"`     // Key in the page's result map
	Selector  string       `mapstructure:"selector"` // CSS selector
	SelectAll bool         `mapstructure:"selectAll"`
	Replace   *ReplaceSpec `mapstructure:"replace"`

	// Password is a CSS selector evaluated inside the matched node; the text
	// of the element it finds is the password. Empty means article/default.
	Password string `mapstructure:"password"`
}

// Article is one generated HTML page to process
type Article struct {
	Title    string `mapstructure:"title"`
	FilePath string `mapstructure:"filePath"` // Relative to the root directory
	UniqueID string `mapstructure:"uniqueID"`
	Password string `mapstructure:"password"` // Overrides defaultPassword when set
	All      bool   `mapstructure:"all"`      // Use the whole-document rule-set
}

// EncryptionConfig is the per-site, single-use encryption configuration
type EncryptionConfig struct {
	GeneratedAt      string    `mapstructure:"generatedAt"`
	TotalCount       int       `mapstructure:"totalCount"`
	DefaultPassword  string    `mapstructure:"defaultPassword"`
	RootDir          string    `mapstructure:"rootDir"`
	DecryptorScript  string    `mapstructure:"decryptorScript"`
	EncryptedAll     []Rule    `mapstructure:"encrypted-all"`
	EncryptedPartial []Rule    `mapstructure:"encrypted-partial"`
	Articles         []Article `mapstructure:"articles"`

	// Path is the file the config was loaded from
	Path string `mapstructure:"-"`
}

// RulesFor returns the rule-set that applies to an article
func (c *EncryptionConfig) RulesFor(a Article) []Rule {
	if a.All {
		return c.EncryptedAll
	}
	return c.EncryptedPartial
}

// ResolveRootDir returns the site root: rootDir when set (relative paths are
// anchored at the config file), otherwise the config file's directory
func (c *EncryptionConfig) ResolveRootDir() string {
	base := filepath.Dir(c.Path)
	if c.RootDir == "" {
		return base
	}
	if filepath.IsAbs(c.RootDir) {
		return filepath.Clean(c.RootDir)
	}
	return filepath.Join(base, c.RootDir)
}

// ResolveConfigPath maps the CLI argument to a config file path: no argument
// means ./encrypted.json, a directory means <dir>/encrypted.json and a .json
// file is used as is
func ResolveConfigPath(fs afero.Fs, arg string) (string, error) {
	if arg == "" {
		return DefaultConfigName, nil
	}

	isDir, err := afero.IsDir(fs, arg)
	if err == nil && isDir {
		return filepath.Join(arg, DefaultConfigName), nil
	}

	if strings.EqualFold(filepath.Ext(arg), ".json") {
		return arg, nil
	}

	return "", fmt.Errorf("path must be a directory or a *.json file: %s", arg)
}

// LoadEncryptionConfig reads and validates the encryption config at path
func LoadEncryptionConfig(fs afero.Fs, path string, strict bool) (*EncryptionConfig, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigLoad, path, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: file not found: %s", ErrConfigLoad, path)
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.BindEnv("defaultPassword", DefaultPasswordEnv); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigLoad, path, err)
	}

	var cfg EncryptionConfig
	if strict {
		err = v.UnmarshalExact(&cfg)
	} else {
		err = v.Unmarshal(&cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigLoad, path, err)
	}
	cfg.Path = path

	if !v.IsSet("defaultPassword") {
		return nil, fmt.Errorf("%w: defaultPassword is required (or set %s)", ErrConfigLoad, DefaultPasswordEnv)
	}
	if !v.IsSet("articles") {
		return nil, fmt.Errorf("%w: articles is required", ErrConfigLoad)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigLoad, err)
	}

	return &cfg, nil
}

// Validate checks required fields and rule name uniqueness
func (c *EncryptionConfig) Validate() error {
	if err := validateRules("encrypted-all", c.EncryptedAll); err != nil {
		return err
	}
	if err := validateRules("encrypted-partial", c.EncryptedPartial); err != nil {
		return err
	}

	for i, a := range c.Articles {
		if a.FilePath == "" {
			return fmt.Errorf("articles[%d] (%q): filePath is required", i, a.Title)
		}
		if filepath.IsAbs(a.FilePath) {
			return fmt.Errorf("articles[%d] (%q): filePath must be relative to the root directory: %s", i, a.Title, a.FilePath)
		}
		if cleaned := filepath.Clean(a.FilePath); cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			return fmt.Errorf("articles[%d] (%q): filePath escapes the root directory: %s", i, a.Title, a.FilePath)
		}
	}

	return nil
}

func validateRules(set string, rules []Rule) error {
	seen := make(map[string]int, len(rules))
	for i, r := range rules {
		if r.Name == "" {
			return fmt.Errorf("%s[%d]: name is required", set, i)
		}
		if r.Selector == "" {
			return fmt.Errorf("%s[%d] (%s): selector is required", set, i, r.Name)
		}
		if prev, dup := seen[r.Name]; dup {
			return fmt.Errorf("%s[%d]: duplicate rule name %q (first used at %s[%d])", set, i, r.Name, set, prev)
		}
		seen[r.Name] = i
	}
	return nil
}
