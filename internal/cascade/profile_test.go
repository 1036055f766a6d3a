package cascade

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{BehaviorPerson, BehaviorPersonMisc, BehaviorPlayPhone, BehaviorSmoke}, Behaviors())

	for _, name := range Behaviors() {
		p, err := ProfileFor(name)
		require.NoError(t, err, name)
		assert.NoError(t, p.Validate(), name)
		assert.Equal(t, name, p.Behavior)
	}

	person, _ := ProfileFor(BehaviorPerson)
	assert.Equal(t, 1, person.Stages)
	smoke, _ := ProfileFor(BehaviorSmoke)
	assert.Equal(t, 2, smoke.Stages)

	_, err := ProfileFor("loitering")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestProfileForReturnsCopies(t *testing.T) {
	t.Parallel()

	a, err := ProfileFor(BehaviorSmoke)
	require.NoError(t, err)
	a.Include[0] = "mutated"
	a.Remap["cigarette"] = "mutated"

	b, err := ProfileFor(BehaviorSmoke)
	require.NoError(t, err)
	assert.Equal(t, "cigarette", b.Include[0])
	assert.Equal(t, BehaviorSmoke, b.Remap["cigarette"])
}

func TestProfileValidate(t *testing.T) {
	t.Parallel()

	p, err := ProfileFor(BehaviorPlayPhone)
	require.NoError(t, err)
	p.Behavior = ""
	p.Stages = 0
	p.CoverThreshold = 2
	p.CropWorkers = -1
	p.Statistics.Interval = 0

	err = p.Validate()
	require.Error(t, err)
	for _, want := range []string{"behavior", "stages", "cover threshold", "crop workers", "interval"} {
		assert.Contains(t, err.Error(), want)
	}
}
