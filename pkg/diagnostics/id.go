package diagnostics

// ID identifies this installation and environment in diagnostic events.
type ID struct {
	DiagnosticID string `json:"diagnosticId"`
	SDKKeySuffix string `json:"sdkKeySuffix,omitempty"`
}

// NewID keeps only the last six characters of the mobile key.
func NewID(diagnosticID, mobileKey string) ID {
	suffix := mobileKey
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return ID{DiagnosticID: diagnosticID, SDKKeySuffix: suffix}
}
