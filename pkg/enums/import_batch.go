package enums

// ImportSource identifies where a bulk import pulled its rows from.
type ImportSource string

const (
	ImportSourceCSV          ImportSource = "csv"
	ImportSourceProviderSync ImportSource = "provider_sync"
)

var validImportSources = []ImportSource{
	ImportSourceCSV,
	ImportSourceProviderSync,
}

// String implements fmt.Stringer.
func (s ImportSource) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ImportSource.
func (s ImportSource) IsValid() bool {
	return member(validImportSources, s)
}

// ParseImportSource converts raw input into an ImportSource.
func ParseImportSource(value string) (ImportSource, error) {
	return parse("import source", validImportSources, value)
}

// ImportBatchStatus tracks an import batch from start to its terminal state.
type ImportBatchStatus string

const (
	ImportBatchStatusProcessing ImportBatchStatus = "processing"
	ImportBatchStatusCompleted  ImportBatchStatus = "completed"
	ImportBatchStatusFailed     ImportBatchStatus = "failed"
)

var validImportBatchStatuses = []ImportBatchStatus{
	ImportBatchStatusProcessing,
	ImportBatchStatusCompleted,
	ImportBatchStatusFailed,
}

// String implements fmt.Stringer.
func (s ImportBatchStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ImportBatchStatus.
func (s ImportBatchStatus) IsValid() bool {
	return member(validImportBatchStatuses, s)
}

// IsTerminal reports whether the batch can no longer change.
func (s ImportBatchStatus) IsTerminal() bool {
	return s == ImportBatchStatusCompleted || s == ImportBatchStatusFailed
}

// ParseImportBatchStatus converts raw input into an ImportBatchStatus.
func ParseImportBatchStatus(value string) (ImportBatchStatus, error) {
	return parse("import batch status", validImportBatchStatuses, value)
}
