package port

import "time"

// ProvisionMetrics records provisioning activity. A nil ProvisionMetrics is
// valid and records nothing.
type ProvisionMetrics interface {
	// ObserveProvision records one finished attempt, outcome being
	// "success" or an error kind name
	ObserveProvision(outcome string, duration time.Duration)

	// RecordCollection records the result of one collection-create call
	RecordCollection(result string)

	// RecordRemoteCall records one WebDAV or OCS round trip
	RecordRemoteCall(op string, failed bool)
}
