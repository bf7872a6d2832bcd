package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ansuz/internal/algo"
	"github.com/starford/ansuz/internal/item"
	"github.com/starford/ansuz/internal/queue"
	"github.com/starford/ansuz/internal/review"
	"github.com/starford/ansuz/internal/store"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Persistence backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Vault     VaultConfig       `yaml:"vault"`
	Persist   PersistConfig     `yaml:"persist"`
	Auth      AuthConfig        `yaml:"auth"`
	Review    ReviewConfig      `yaml:"review"`
	Algorithm AlgorithmConfig   `yaml:"algorithm"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Persist.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Review.Validate(); err != nil {
		return err
	}
	return c.Algorithm.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig describes the Markdown vault and which tags make a note
// reviewable.
type VaultConfig struct {
	Path      string   `yaml:"path"`
	TrackTags []string `yaml:"track_tags"`
	CardTags  []string `yaml:"card_tags"`
	Watch     bool     `yaml:"watch"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.TrackTags, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.CardTags, validation.Required, validation.Each(validation.Required)),
	)
}

// TypeTags returns the tags that mark a note's type and never name a deck.
func (c *VaultConfig) TypeTags() []string {
	return append(append([]string{}, c.TrackTags...), c.CardTags...)
}

// PersistConfig selects where engine state is kept.
//
// With the sqlite backend Path is the database file and the FSRS review log
// goes into the same database. With the json backend Path is a directory
// and RevlogPath, when set, names a separate SQLite file for the review log.
type PersistConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	BackupPath string `yaml:"backup_path"`
	RevlogPath string `yaml:"revlog_path"`
}

// Validate validates the persistence configuration.
func (c *PersistConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendJSON, BackendSQLite)),
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.BackupPath, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// ReviewConfig holds queue quotas and pacing. A negative quota means no cap.
type ReviewConfig struct {
	MaxNewCardsPerDay   int    `yaml:"max_new_cards_per_day"`
	MaxNewNotesPerDay   int    `yaml:"max_new_notes_per_day"`
	RepeatItems         bool   `yaml:"repeat_items"`
	DueRunLength        int    `yaml:"due_run_length"`
	NewRunLength        int    `yaml:"new_run_length"`
	DefaultDeck         string `yaml:"default_deck"`
	ExistsConcurrency   int    `yaml:"exists_concurrency"`
	TreatUnmatchedAsNew bool   `yaml:"treat_unmatched_as_new"`
}

// Validate validates the review configuration.
func (c *ReviewConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxNewCardsPerDay, validation.Min(queue.Unlimited)),
		validation.Field(&c.MaxNewNotesPerDay, validation.Min(queue.Unlimited)),
		validation.Field(&c.DueRunLength, validation.Min(0)),
		validation.Field(&c.NewRunLength, validation.Min(0)),
		validation.Field(&c.DefaultDeck, validation.Required),
		validation.Field(&c.ExistsConcurrency, validation.Required, validation.Min(1)),
	)
}

// QueueOptions converts the section into queue options.
func (c *ReviewConfig) QueueOptions() queue.Options {
	limit := func(n int) int {
		if n < 0 {
			return queue.Unlimited
		}
		return n
	}
	return queue.Options{
		MaxNewCards: limit(c.MaxNewCardsPerDay),
		MaxNewNotes: limit(c.MaxNewNotesPerDay),
		RepeatItems: c.RepeatItems,
		DueRun:      c.DueRunLength,
		NewRun:      c.NewRunLength,
		Concurrency: c.ExistsConcurrency,
	}
}

// AlgorithmConfig selects the active algorithm and carries the settings of
// all four.
type AlgorithmConfig struct {
	Active  item.Kind          `yaml:"active"`
	Default algo.DefaultParams `yaml:"default"`
	SM2     algo.SM2Params     `yaml:"sm2"`
	Anki    algo.AnkiParams    `yaml:"anki"`
	FSRS    algo.FSRSParams    `yaml:"fsrs"`
}

// Validate validates the algorithm configuration.
func (c *AlgorithmConfig) Validate() error {
	kinds := make([]any, len(item.Kinds))
	for i, k := range item.Kinds {
		kinds[i] = k
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Active, validation.Required, validation.In(kinds...)),
	); err != nil {
		return err
	}
	blocks := []struct {
		name string
		v    validation.Validatable
	}{
		{"default", &c.Default},
		{"sm2", &c.SM2},
		{"anki", &c.Anki},
		{"fsrs", &c.FSRS},
	}
	for _, b := range blocks {
		if err := b.v.Validate(); err != nil {
			return fmt.Errorf("algorithm.%s: %w", b.name, err)
		}
	}
	return nil
}

// Settings converts the section into review service settings.
func (c *AlgorithmConfig) Settings() review.AlgorithmSettings {
	return review.AlgorithmSettings{
		Active:  c.Active,
		Default: c.Default,
		SM2:     c.SM2,
		Anki:    c.Anki,
		FSRS:    c.FSRS,
	}
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	q := queue.DefaultOptions()
	algos := review.DefaultAlgorithmSettings()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:      "./vault",
			TrackTags: []string{"review"},
			CardTags:  []string{"flashcards"},
			Watch:     true,
		},
		Persist: PersistConfig{
			Backend:    BackendSQLite,
			Path:       "./ansuz.db",
			BackupPath: "backups",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Review: ReviewConfig{
			MaxNewCardsPerDay: q.MaxNewCards,
			MaxNewNotesPerDay: q.MaxNewNotes,
			RepeatItems:       q.RepeatItems,
			DueRunLength:      q.DueRun,
			NewRunLength:      q.NewRun,
			DefaultDeck:       store.DefaultDeck,
			ExistsConcurrency: q.Concurrency,
		},
		Algorithm: AlgorithmConfig{
			Active:  algos.Active,
			Default: algos.Default,
			SM2:     algos.SM2,
			Anki:    algos.Anki,
			FSRS:    algos.FSRS,
		},
	}
}
