package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macterra/Axio-sub003/pkg/kernel"
)

const sample = `
version: "0.8.0"
seed: 7
horizon_epochs: 120
renewal_check_interval: 10
msrw_cycles: 50
max_successive_renewals: 4
resources:
  steps_cap_epoch: 80
  actions_cap_epoch: 12
  external_calls_cap_epoch: 1
  memory_cells: 8
rent_schedule: [0.1, 0.15, 0.2, 0.25, 0.4]
commitments:
  alpha: 0.25
  genesis: [CMT_PRESENCE_LOG, CMT_STATE_ECHO]
eligibility:
  k: 3
amnesty:
  interval: 10
  decay: 1
candidates:
  - category: control
    variant: compliant
    weight: 3
  - category: attack
    variant: violator
    params:
      violate_after_epochs: 4
adversary:
  model: edge_oscillator
`

func noEnv(string) string { return "" }

func configErr(t *testing.T, err error) *kernel.ConfigError {
	t.Helper()
	var ce *kernel.ConfigError
	require.True(t, errors.As(err, &ce), "want ConfigError, got %v", err)
	return ce
}

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, int64(3), cfg.EpochsPerBoundary())
	assert.Equal(t, 25, cfg.CommitCap())

	flags, err := cfg.Flags()
	require.NoError(t, err)
	assert.Equal(t, FeatureSet{Rent: true, Commitments: true, Eligibility: true, CTA: true}, flags)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	t.Setenv(EnvSeed, "")
	t.Setenv(EnvLogLevel, "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 120, cfg.HorizonEpochs)
	assert.Equal(t, int64(5), cfg.EpochsPerBoundary())
	assert.Equal(t, 20, cfg.CommitCap())
	require.Len(t, cfg.Candidates, 2)
	assert.Equal(t, 4, cfg.Candidates[1].Params.Get("violate_after_epochs", 0))
	assert.Equal(t, "edge_oscillator", cfg.Adversary.Model)
	assert.Equal(t, []string{"CMT_PRESENCE_LOG", "CMT_STATE_ECHO"}, cfg.Commitments.Genesis)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvSeed, "99")
	t.Setenv(EnvLogLevel, "DEBUG")
	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Seed)
	assert.Equal(t, "debug", cfg.LogLevel)

	bad := Default()
	err = bad.ApplyEnv(func(k string) string {
		if k == EnvSeed {
			return "seven"
		}
		return ""
	})
	assert.Equal(t, EnvSeed, configErr(t, err).Field)
}

func TestSchemaRejectsShape(t *testing.T) {
	t.Setenv(EnvSeed, "")
	_, err := Parse([]byte(sample + "bogus_field: 1\n"))
	assert.Equal(t, kernel.ErrConfigInvalid, configErr(t, err).Code)

	_, err = Parse([]byte(`version: "0.8.0"
horizon_epochs: 0
renewal_check_interval: 10
msrw_cycles: 30
candidates: [{category: control, variant: compliant}]
`))
	ce := configErr(t, err)
	assert.Equal(t, "/horizon_epochs", ce.Field)
}

func TestValidate_CrossField(t *testing.T) {
	cfg := Default()
	cfg.MSRWCycles = 25
	assert.Equal(t, "msrw_cycles", configErr(t, cfg.Validate()).Field)

	cfg = Default()
	cfg.RentSchedule = []float64{0.1, 0.15, 0.2, 0.25, 0.995}
	assert.Equal(t, kernel.ErrConfigRentSchedule, configErr(t, cfg.Validate()).Code)

	cfg = Default()
	cfg.RentSchedule = []float64{0.3, 0.1, 0.2, 0.25, 0.4}
	assert.Equal(t, kernel.ErrConfigRentSchedule, configErr(t, cfg.Validate()).Code)

	cfg = Default()
	cfg.Commitments.Genesis = nil
	assert.Equal(t, kernel.ErrConfigGenesisEmpty, configErr(t, cfg.Validate()).Code)

	cfg = Default()
	cfg.Candidates[0].Variant = "nope"
	assert.Equal(t, "candidates[0]", configErr(t, cfg.Validate()).Field)

	cfg = Default()
	cfg.Eligibility.K = 0
	assert.Equal(t, kernel.ErrConfigInvalid, configErr(t, cfg.Validate()).Code)
}

func TestFlags_Presets(t *testing.T) {
	cases := []struct {
		version string
		want    FeatureSet
	}{
		{"0.4.3", FeatureSet{}},
		{"0.5.2", FeatureSet{Rent: true}},
		{"0.6.0", FeatureSet{Rent: true, Commitments: true}},
		{"v0.7", FeatureSet{Rent: true, Commitments: true, Eligibility: true}},
		{"0.8.0", FeatureSet{Rent: true, Commitments: true, Eligibility: true, CTA: true}},
	}
	for _, tc := range cases {
		cfg := Default()
		cfg.Version = tc.version
		got, err := cfg.Flags()
		require.NoError(t, err, tc.version)
		assert.Equal(t, tc.want, got, tc.version)
	}

	off := false
	cfg := Default()
	cfg.Features.CTA = &off
	got, err := cfg.Flags()
	require.NoError(t, err)
	assert.False(t, got.CTA)

	cfg.Version = "banana"
	_, err = cfg.Flags()
	assert.Equal(t, "version", configErr(t, err).Field)
}

func TestScheduleZeroWithoutRent(t *testing.T) {
	cfg := Default()
	cfg.Version = "0.4.3"
	s := cfg.Schedule()
	for _, f := range s.Fractions {
		assert.Zero(t, f)
	}
	cfg.Version = "0.8.0"
	assert.InDelta(t, 0.4, cfg.Schedule().Fractions[4], 1e-12)
}

func TestHashStable(t *testing.T) {
	a, err := Default().Hash()
	require.NoError(t, err)
	b, err := Default().Hash()
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c := Default()
	c.Seed = 2
	h, err := c.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, a, h)
}
