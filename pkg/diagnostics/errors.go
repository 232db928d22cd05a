package diagnostics

import "errors"

// ErrStore wraps failures to load or persist diagnostic state.
var ErrStore = errors.New("diagnostics: failed to access diagnostic store")
