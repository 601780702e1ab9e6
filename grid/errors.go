package grid

import "fmt"

// OriginUnknownError rejects a registration whose interested member cannot be
// identified. The request fails; the node keeps serving.
type OriginUnknownError struct {
	Name string
}

func (e *OriginUnknownError) Error() string {
	return fmt.Sprintf("listener origin is not known for collection %q", e.Name)
}

// RegistrationRejectedError reports a registration this node refused to serve.
type RegistrationRejectedError struct {
	Name   string
	Origin string
	Reason string
}

func (e *RegistrationRejectedError) Error() string {
	return fmt.Sprintf("registration for %q from %s rejected: %s", e.Name, e.Origin, e.Reason)
}
