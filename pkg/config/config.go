// Package config loads the frozen parameter set of a run.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/macterra/Axio-sub003/pkg/canonicalize"
	"github.com/macterra/Axio-sub003/pkg/commitment"
	"github.com/macterra/Axio-sub003/pkg/expressivity"
	"github.com/macterra/Axio-sub003/pkg/kernel"
	"github.com/macterra/Axio-sub003/pkg/mind"
)

//go:embed config.schema.json
var schemaJSON string

const schemaURL = "https://aki.schemas.local/config/run.schema.json"

// Environment overrides.
const (
	EnvSeed     = "AKI_SEED"
	EnvLogLevel = "AKI_LOG_LEVEL"
)

// Resources are the kernel's per-epoch caps, also used as the default
// successor envelope.
type Resources struct {
	StepsCapEpoch         int `yaml:"steps_cap_epoch" json:"steps_cap_epoch" validate:"gte=1"`
	ActionsCapEpoch       int `yaml:"actions_cap_epoch" json:"actions_cap_epoch" validate:"gte=1"`
	ExternalCallsCapEpoch int `yaml:"external_calls_cap_epoch" json:"external_calls_cap_epoch" validate:"gte=0"`
	MemoryCells           int `yaml:"memory_cells" json:"memory_cells" validate:"gte=0"`
}

// Envelope converts the caps into a successor resource envelope.
func (r Resources) Envelope() mind.ResourceEnvelope {
	return mind.ResourceEnvelope{
		StepsPerEpoch:         r.StepsCapEpoch,
		ActionsPerEpoch:       r.ActionsCapEpoch,
		ExternalCallsPerEpoch: r.ExternalCallsCapEpoch,
		MemoryCells:           r.MemoryCells,
	}
}

// Commitments configures the ledger.
type Commitments struct {
	Alpha   float64  `yaml:"alpha" json:"alpha" validate:"gte=0,lte=1"`
	Genesis []string `yaml:"genesis" json:"genesis"`
}

// Eligibility configures the succession gate.
type Eligibility struct {
	K int `yaml:"k" json:"k" validate:"gte=1"`
}

// Amnesty configures CTA. Interval 0 disables amnesty.
type Amnesty struct {
	Interval int `yaml:"interval" json:"interval" validate:"gte=0"`
	Decay    int `yaml:"decay" json:"decay" validate:"gte=0"`
}

// Features are explicit overrides of the version presets.
type Features struct {
	Rent        *bool `yaml:"rent,omitempty" json:"rent,omitempty"`
	Commitments *bool `yaml:"commitments,omitempty" json:"commitments,omitempty"`
	Eligibility *bool `yaml:"eligibility,omitempty" json:"eligibility,omitempty"`
	CTA         *bool `yaml:"cta,omitempty" json:"cta,omitempty"`
}

// Adversary selects the RSA model. An empty model means no adversary.
type Adversary struct {
	Model string `yaml:"model" json:"model"`
}

// Config is the immutable parameter set of one run.
type Config struct {
	Version               string               `yaml:"version" json:"version" validate:"required"`
	Seed                  int64                `yaml:"seed" json:"seed"`
	LogLevel              string               `yaml:"log_level,omitempty" json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	HorizonEpochs         int                  `yaml:"horizon_epochs" json:"horizon_epochs" validate:"gte=1"`
	RenewalCheckInterval  int                  `yaml:"renewal_check_interval" json:"renewal_check_interval" validate:"gte=1"`
	MSRWCycles            int                  `yaml:"msrw_cycles" json:"msrw_cycles" validate:"gte=1"`
	MaxSuccessiveRenewals int                  `yaml:"max_successive_renewals" json:"max_successive_renewals" validate:"gte=0"`
	StopAfterLapseEpochs  int                  `yaml:"stop_after_lapse_epochs" json:"stop_after_lapse_epochs" validate:"gte=0"`
	Resources             Resources            `yaml:"resources" json:"resources"`
	RentSchedule          []float64            `yaml:"rent_schedule" json:"rent_schedule" validate:"len=5,dive,gte=0,lt=1"`
	Commitments           Commitments          `yaml:"commitments" json:"commitments"`
	Eligibility           Eligibility          `yaml:"eligibility" json:"eligibility"`
	Amnesty               Amnesty              `yaml:"amnesty" json:"amnesty"`
	Features              Features             `yaml:"features" json:"features"`
	Candidates            []mind.CandidateSpec `yaml:"candidates" json:"candidates" validate:"min=1"`
	Adversary             Adversary            `yaml:"adversary" json:"adversary"`
}

// Default returns the baseline configuration: a single compliant
// successor under the full feature set.
func Default() *Config {
	s := expressivity.DefaultSchedule()
	return &Config{
		Version:               "0.8.0",
		Seed:                  1,
		HorizonEpochs:         200,
		RenewalCheckInterval:  10,
		MSRWCycles:            30,
		MaxSuccessiveRenewals: 10,
		Resources:             Resources{StepsCapEpoch: 100, ActionsCapEpoch: 20, ExternalCallsCapEpoch: 2, MemoryCells: 16},
		RentSchedule:          s.Fractions[:],
		Commitments: Commitments{
			Alpha:   0.25,
			Genesis: []string{"CMT_PRESENCE_LOG", "CMT_STATE_ECHO", "CMT_COMPOSED_OP"},
		},
		Eligibility: Eligibility{K: 3},
		Amnesty:     Amnesty{Interval: 10, Decay: 1},
		Candidates:  []mind.CandidateSpec{{Category: "control", Variant: "compliant", Weight: 1}},
	}
}

// Load reads, shape-checks and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default, checks it against the schema,
// applies environment overrides and validates the result.
func Parse(data []byte) (*Config, error) {
	if err := checkSchema(data); err != nil {
		return nil, err
	}
	cfg := Default()
	cfg.Candidates = nil
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, kernel.NewConfigError(kernel.ErrConfigInvalid, "", "parse: %v", err)
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var compiledSchema *jsonschema.Schema

func schema() (*jsonschema.Schema, error) {
	if compiledSchema != nil {
		return compiledSchema, nil
	}
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("config schema load failed: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("config schema compile failed: %w", err)
	}
	compiledSchema = s
	return s, nil
}

// checkSchema validates the document shape. YAML is re-read through JSON so
// numbers reach the validator as json.Number.
func checkSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return kernel.NewConfigError(kernel.ErrConfigInvalid, "", "parse: %v", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return kernel.NewConfigError(kernel.ErrConfigInvalid, "", "config is not JSON-representable: %v", err)
	}
	jd := json.NewDecoder(bytes.NewReader(raw))
	jd.UseNumber()
	var v interface{}
	if err := jd.Decode(&v); err != nil {
		return kernel.NewConfigError(kernel.ErrConfigInvalid, "", "decode: %v", err)
	}
	s, err := schema()
	if err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := ve
			for len(leaf.Causes) > 0 {
				leaf = leaf.Causes[0]
			}
			return kernel.NewConfigError(kernel.ErrConfigInvalid, leaf.InstanceLocation, "%s", leaf.Message)
		}
		return kernel.NewConfigError(kernel.ErrConfigInvalid, "", "%v", err)
	}
	return nil
}

// ApplyEnv applies AKI_SEED and AKI_LOG_LEVEL through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(EnvSeed); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return kernel.NewConfigError(kernel.ErrConfigInvalid, EnvSeed, "not an integer: %q", v)
		}
		c.Seed = seed
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	return nil
}

var validate = validator.New()

// Validate applies field rules and the cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return kernel.NewConfigError(kernel.ErrConfigInvalid, fe.Namespace(), "failed %q (%s)", fe.Tag(), fe.Param())
		}
		return kernel.NewConfigError(kernel.ErrConfigInvalid, "", "%v", err)
	}
	if c.MSRWCycles%c.RenewalCheckInterval != 0 {
		return kernel.NewConfigError(kernel.ErrConfigInvalid, "msrw_cycles",
			"%d is not a multiple of renewal_check_interval %d", c.MSRWCycles, c.RenewalCheckInterval)
	}
	flags, err := c.Flags()
	if err != nil {
		return err
	}
	if flags.Rent {
		if err := c.Schedule().Validate(c.Resources.StepsCapEpoch); err != nil {
			return err
		}
	}
	if flags.Commitments && len(c.Commitments.Genesis) == 0 {
		return kernel.NewConfigError(kernel.ErrConfigGenesisEmpty, "commitments.genesis", "genesis set is empty")
	}
	for i, cand := range c.Candidates {
		if _, ok := mind.Lookup(mind.PolicyID(cand.Category, cand.Variant)); !ok {
			return kernel.NewConfigError(kernel.ErrConfigInvalid, fmt.Sprintf("candidates[%d]", i),
				"unknown successor variant %s:%s", cand.Category, cand.Variant)
		}
	}
	return nil
}

// Schedule returns the rent schedule, zeroed when rent is disabled.
func (c *Config) Schedule() expressivity.Schedule {
	if flags, err := c.Flags(); err == nil && !flags.Rent {
		return expressivity.ZeroSchedule()
	}
	var s expressivity.Schedule
	copy(s.Fractions[:], c.RentSchedule)
	return s
}

// EpochsPerBoundary is the succession cadence in epochs.
func (c *Config) EpochsPerBoundary() int64 {
	return int64(c.MSRWCycles / c.RenewalCheckInterval)
}

// CommitCap is floor(alpha * steps_cap_epoch).
func (c *Config) CommitCap() int {
	return commitment.CommitCap(c.Commitments.Alpha, c.Resources.StepsCapEpoch)
}

// Hash is the canonical digest of the config, used to bind run ids.
func (c *Config) Hash() (string, error) {
	return canonicalize.Digest(c)
}
