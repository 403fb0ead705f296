package decision

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/XavierBriggs/pythia/internal/config"
	"github.com/XavierBriggs/pythia/pkg/models"
)

// InputsHash computes the canonical hash over everything a compute pass
// consumed: the snapshot, the simulation statistics, the league config and
// the decision version. The three per-game decisions share this hash; a
// reader rejects any cached triple whose children disagree with it.
//
// encoding/json writes map keys in sorted order, so marshaling the
// assembled map is canonical.
func InputsHash(snap *models.MarketSnapshot, run *models.SimulationRun, cfg config.LeagueConfig, configVersion string, decisionVersion int64) (string, error) {
	payload := map[string]interface{}{
		"snapshot":         snap,
		"sim":              run.Stats(),
		"config":           cfg.CanonicalMap(configVersion),
		"decision_version": decisionVersion,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal inputs: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
