// Package cluster tracks grid membership and partition ownership.
package cluster

// Address identifies a cluster member as "host:port". The empty Address is
// used as "no address" and never appears in the membership table.
type Address string

// IsNil reports whether the address is unset.
func (a Address) IsNil() bool {
	return a == ""
}

func (a Address) String() string {
	return string(a)
}
