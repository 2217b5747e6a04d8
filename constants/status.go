package constants

// DocumentStatus summarizes how a document's three extraction tasks ended.
type DocumentStatus string

// Stable values (written into output records and the graph store).
const (
	DocumentStatusSucceeded DocumentStatus = "SUCCEEDED" // all three tasks produced valid payloads
	DocumentStatusPartial   DocumentStatus = "PARTIAL"   // at least one task failed, at least one succeeded
	DocumentStatusFailed    DocumentStatus = "FAILED"    // every task failed, or the document could not be read
)
