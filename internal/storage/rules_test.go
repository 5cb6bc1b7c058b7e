package storage_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfare-dev/wayfare/internal/classify"
	"github.com/wayfare-dev/wayfare/internal/common"
	"github.com/wayfare-dev/wayfare/internal/model"
	"github.com/wayfare-dev/wayfare/internal/testutil"
)

func TestRuleSetRoundTrip(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	_, err := store.LatestRuleSet(ctx)
	assert.ErrorIs(t, err, common.ErrNotFound, "empty database has no rule sets")

	require.NoError(t, store.SaveRuleSet(ctx, classify.DefaultRuleSet()))

	got, err := store.GetRuleSet(ctx, classify.DefaultRuleSetVersion)
	require.NoError(t, err)
	assert.Equal(t, classify.DefaultRuleSetVersion, got.Version)
	assert.Len(t, got.Rules, len(classify.DefaultRuleSet().Rules))
	assert.Equal(t, "AIRFARE", got.Rules[0].Category, "rule order survives the round trip")
}

func TestRuleSetVersionsAreImmutable(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	original := model.RuleSet{
		Version: 7,
		Rules: []model.ClassificationRule{
			{Category: "HOTEL", Keywords: []string{"hotel"}, BaseConfidence: 0.95},
		},
	}
	require.NoError(t, store.SaveRuleSet(ctx, original))

	// Writing the same version again must not overwrite the stored rules.
	modified := model.RuleSet{
		Version: 7,
		Rules: []model.ClassificationRule{
			{Category: "MEALS", Keywords: []string{"cafe"}, BaseConfidence: 0.5},
		},
	}
	require.NoError(t, store.SaveRuleSet(ctx, modified))

	got, err := store.GetRuleSet(ctx, 7)
	require.NoError(t, err)
	require.Len(t, got.Rules, 1)
	assert.Equal(t, "HOTEL", got.Rules[0].Category)
}

func TestLatestRuleSetPicksHighestVersion(t *testing.T) {
	store := testutil.TestStore(t)
	ctx := context.Background()

	for version := 1; version <= 3; version++ {
		rs := model.RuleSet{
			Version: version,
			Rules: []model.ClassificationRule{
				{Category: "HOTEL", Keywords: []string{"hotel"}, BaseConfidence: 0.9},
			},
		}
		require.NoError(t, store.SaveRuleSet(ctx, rs))
	}

	latest, err := store.LatestRuleSet(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)

	err = store.SaveRuleSet(ctx, model.RuleSet{Version: 0})
	assert.Error(t, err, "version must be positive")
}
