package ainotes

import "errors"

// ErrInvalidConfig is returned for configuration the service cannot
// start with, such as a missing LLM provider.
var ErrInvalidConfig = errors.New("ainotes: invalid configuration")
