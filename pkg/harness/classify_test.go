package harness_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/macterra/Axio-sub003/pkg/harness"
)

// series decodes '#' held, '_' vacant and '.' lapsed epochs.
func series(pattern string) []harness.EpochAuthority {
	out := make([]harness.EpochAuthority, len(pattern))
	for i, c := range pattern {
		switch c {
		case '#':
			out[i] = harness.AuthorityHeld
		case '_':
			out[i] = harness.AuthorityVacant
		default:
			out[i] = harness.AuthorityLapsed
		}
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		stopped bool
		want    harness.Classification
		lapses  int
	}{
		{"all authority", "##########", false, harness.StableAuthority, 0},
		{"early lapse only", "#..#######", false, harness.StableAuthority, 0},
		{"tail fully lapsed", "########..", false, harness.PermanentLapse, 1},
		{"stopped on lapse", "##########", true, harness.PermanentLapse, 0},
		{"single tail lapse", strings.Repeat("#", 16) + "#..#", false, harness.BoundedDegradation, 1},
		{"thrashing", strings.Repeat("#", 24) + ".#.#..", false, harness.StructuralThrashing, 3},
		{"late collapse", strings.Repeat("#", 41) + strings.Repeat(".", 19), false, harness.PermanentLapse, 1},
		{"sparse authority", strings.Repeat("#", 81) + strings.Repeat(".", 19), false, harness.AsymptoticDoS, 1},
		{"vacant tail is not a lapse", "########__", false, harness.AsymptoticDoS, 1},
		{"vacant seat churn", strings.Repeat("#", 24) + "_#_#__", false, harness.StructuralThrashing, 3},
		{"vacant then lapsed tail", strings.Repeat("#", 16) + "__..", false, harness.AsymptoticDoS, 1},
		{"recovered before tail", strings.Repeat(".", 10) + strings.Repeat("#", 10), false, harness.StableAuthority, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := harness.Classify(series(tc.pattern), tc.stopped)
			assert.Equal(t, tc.want, r.Class)
			assert.Equal(t, tc.lapses, r.TailLapses)
		})
	}
}

func TestClassifyEmptyRun(t *testing.T) {
	assert.Equal(t, harness.PermanentLapse, harness.Classify(nil, false).Class)
}

func TestClassifyTailIsAtLeastOneEpoch(t *testing.T) {
	r := harness.Classify(series("#."), false)
	assert.Equal(t, 1, r.TailStart)
	assert.Equal(t, harness.PermanentLapse, r.Class)
}
