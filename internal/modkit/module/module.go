// Package module defines the minimal contract for a modkit module
package module

// Module defines the minimal contract used by modkit
type Module interface {
	Ports() any
	Name() string
}
