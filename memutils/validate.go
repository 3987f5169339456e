package memutils

// Validatable is anything DebugValidate can check
type Validatable interface {
	Validate() error
}
