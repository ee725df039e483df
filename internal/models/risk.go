package models

// Static risk profiles per action type. The enum is intentionally closed:
// runbooks may only reference types registered here, so new behaviors
// require editing this table, never a config file.

var riskProfiles = map[ActionType]RiskProfile{
	ActionScaleUp: {
		RiskScore:          0.15,
		ExpectedDowntimeS:  0,
		WorstCaseDowntimeS: 30,
		RecoveryTimeS:      60,
		Reversible:         true,
		BlastImpact:        ImpactDeployment,
		CostPerMinute:      2.0,
		SideEffects:        []string{"increased resource spend"},
	},
	ActionScaleDown: {
		RiskScore:          0.35,
		ExpectedDowntimeS:  0,
		WorstCaseDowntimeS: 120,
		RecoveryTimeS:      60,
		Reversible:         true,
		BlastImpact:        ImpactDeployment,
		CostPerMinute:      1.0,
		SideEffects:        []string{"reduced headroom under load"},
	},
	ActionClearCache: {
		RiskScore:          0.25,
		ExpectedDowntimeS:  5,
		WorstCaseDowntimeS: 60,
		RecoveryTimeS:      120,
		Reversible:         false,
		BlastImpact:        ImpactDeployment,
		CostPerMinute:      1.5,
		SideEffects:        []string{"cold-cache latency until warm"},
	},
	ActionToggleFeatureFlag: {
		RiskScore:          0.20,
		ExpectedDowntimeS:  0,
		WorstCaseDowntimeS: 10,
		RecoveryTimeS:      10,
		Reversible:         true,
		BlastImpact:        ImpactDeployment,
		CostPerMinute:      0.5,
		SideEffects:        []string{"feature behavior change for users"},
	},
	ActionRestartPod: {
		RiskScore:          0.35,
		ExpectedDowntimeS:  30,
		WorstCaseDowntimeS: 120,
		RecoveryTimeS:      60,
		Reversible:         true,
		BlastImpact:        ImpactPod,
		CostPerMinute:      3.0,
		SideEffects:        []string{"in-flight requests dropped"},
	},
	ActionRollbackDeployment: {
		RiskScore:          0.55,
		ExpectedDowntimeS:  60,
		WorstCaseDowntimeS: 300,
		RecoveryTimeS:      300,
		Reversible:         true,
		BlastImpact:        ImpactDeployment,
		CostPerMinute:      5.0,
		SideEffects:        []string{"reverts all changes in the target release"},
	},
	ActionDrainNode: {
		RiskScore:          0.75,
		ExpectedDowntimeS:  300,
		WorstCaseDowntimeS: 900,
		RecoveryTimeS:      600,
		Reversible:         false,
		BlastImpact:        ImpactCluster,
		CostPerMinute:      8.0,
		SideEffects:        []string{"evicts every pod on the node", "capacity reduction"},
	},
}

// inverseActions maps an action type to the type that undoes it, where one
// exists. Used to enqueue a compensating action after a DEGRADED outcome.
var inverseActions = map[ActionType]ActionType{
	ActionScaleUp:            ActionScaleDown,
	ActionScaleDown:          ActionScaleUp,
	ActionToggleFeatureFlag:  ActionToggleFeatureFlag,
	ActionRollbackDeployment: ActionRollbackDeployment,
}

// RiskProfileFor returns the static risk profile for an action type.
// The second return is false for unknown types.
func RiskProfileFor(t ActionType) (RiskProfile, bool) {
	p, ok := riskProfiles[t]
	return p, ok
}

// InverseOf returns the compensating action type, if the table declares one.
func InverseOf(t ActionType) (ActionType, bool) {
	inv, ok := inverseActions[t]
	return inv, ok
}
