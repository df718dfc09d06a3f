package clickhouse

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"factory-planner/decision/planning"
	"factory-planner/decision/resolution"
)

// NewRun describes a finished plan as a history record. The ID is left
// empty for RecordRun to fill.
func NewRun(catalogName string, targets resolution.RequirementSet, policy resolution.AmbiguityPolicy, plan *planning.Plan, converged bool) *PlanRun {
	run := &PlanRun{
		Catalog:      catalogName,
		Targets:      FormatTargets(targets),
		Per:          plan.Per.String(),
		Policy:       string(policy),
		Hash:         HashTargets(catalogName, targets, plan.Per.String(), string(policy)),
		Iterations:   uint32(plan.Levels),
		WarningCount: uint32(len(plan.Warnings)),
		Converged:    converged,
	}
	for _, a := range plan.Buildings {
		run.Buildings = append(run.Buildings, RunBuilding{
			Recipe:   string(a.Recipe),
			Building: string(a.Building),
			Item:     string(a.Item),
			Count:    a.Count.Decimal(),
		})
	}
	for _, p := range plan.Inputs {
		run.Primaries = append(run.Primaries, RunPrimary{
			Item:     string(p.Item),
			Quantity: p.Quantity.Decimal(),
		})
	}
	return run
}

// FormatTargets renders targets as "item=qty" pairs sorted by item, with
// repeated items merged.
func FormatTargets(targets resolution.RequirementSet) string {
	merged := resolution.Aggregate(targets)
	pairs := make([]string, 0, len(merged))
	for _, r := range merged {
		pairs = append(pairs, string(r.Item)+"="+r.Quantity.String())
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

// HashTargets identifies the inputs of a run: the same targets, period and
// policy on the same catalog always hash alike.
func HashTargets(catalogName string, targets resolution.RequirementSet, per, policy string) string {
	var sb strings.Builder
	sb.WriteString(catalogName)
	sb.WriteString(";")
	sb.WriteString(FormatTargets(targets))
	sb.WriteString(";")
	sb.WriteString(per)
	sb.WriteString(";")
	sb.WriteString(policy)

	h := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(h[:])
}
