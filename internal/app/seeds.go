package app

import (
	"context"
	"encoding/json"

	"github.com/risquanter/riskcast/internal/common"
	"github.com/risquanter/riskcast/internal/interfaces"
	"github.com/risquanter/riskcast/internal/models"
)

// defaultSeedsKey is the system KV key holding the deployment's seed triple.
const defaultSeedsKey = "default_seeds"

// loadOrInitSeeds returns the seed triple persisted in system storage,
// writing the built-in defaults on first run. Pinning the triple at first
// startup keeps a deployment's sampling identity stable even if a later
// release changes the built-in constants. Storage failures fall back to the
// built-in defaults rather than blocking startup.
func loadOrInitSeeds(ctx context.Context, store interfaces.TreeStore, logger *common.Logger) models.SeedTriple {
	defaults := models.DefaultSeeds()

	raw, err := store.GetSystemKV(ctx, defaultSeedsKey)
	if err == nil {
		var seeds models.SeedTriple
		if jerr := json.Unmarshal([]byte(raw), &seeds); jerr == nil && seeds != (models.SeedTriple{}) {
			return seeds
		}
		logger.Warn().Str("key", defaultSeedsKey).Str("value", raw).Msg("Stored seed triple unreadable, rewriting defaults")
	}

	encoded, err := json.Marshal(defaults)
	if err != nil {
		return defaults
	}
	if err := store.SetSystemKV(ctx, defaultSeedsKey, string(encoded)); err != nil {
		logger.Warn().Err(err).Str("key", defaultSeedsKey).Msg("Failed to persist seed triple")
	}
	return defaults
}
