package nodeschema

// RepairDecision is the outcome of comparing a locally cached schema against
// a freshly fetched one, per the four-case gating matrix (spec §4.3).
type RepairDecision string

const (
	// DecisionSkipSameVersion: both sides report a version and they agree.
	// No write.
	DecisionSkipSameVersion RepairDecision = "skip_same_version"
	// DecisionUpdateChanged: both sides report a version and they differ.
	// Overwrite local with remote.
	DecisionUpdateChanged RepairDecision = "update_changed_version_or_hash"
	// DecisionSkipSameHash: neither side reports a version, but content
	// hashes agree. No write.
	DecisionSkipSameHash RepairDecision = "skip_same_hash"
	// DecisionUpdateNoVersionInfo: neither side reports a version and
	// hashes differ (or the local side is absent). Overwrite.
	DecisionUpdateNoVersionInfo RepairDecision = "update_no_version_info"
)

// Gate implements the repair-decision matrix:
//
//	| local version | remote version | hash cmp | decision                      |
//	| present, equal | present, equal | —        | skip_same_version             |
//	| present, differ| present, differ| —        | update_changed_version_or_hash |
//	| absent          | absent          | equal    | skip_same_hash                 |
//	| absent          | absent          | differ   | update_no_version_info          |
//
// local is the zero Schema when there is no cached entry for the node type.
func Gate(local, remote Schema) RepairDecision {
	haveVersions := local.Version != "" && remote.Version != ""
	if haveVersions {
		if local.Version == remote.Version {
			return DecisionSkipSameVersion
		}
		return DecisionUpdateChanged
	}
	if local.Hash != "" && local.Hash == remote.Hash {
		return DecisionSkipSameHash
	}
	return DecisionUpdateNoVersionInfo
}

// ShouldWrite reports whether decision requires overwriting the local entry.
func (d RepairDecision) ShouldWrite() bool {
	return d == DecisionUpdateChanged || d == DecisionUpdateNoVersionInfo
}
