package gfx

import "github.com/pkg/errors"

// Errors returned by backends. They are usually wrapped with context, compare with errors.Is.
var (
	// ErrAllocation is returned when the native API fails to create an object or memory.
	ErrAllocation = errors.New("gfx: allocation failed")
	// ErrCompilation is returned when a set of shaders cannot form a pipeline.
	ErrCompilation = errors.New("gfx: pipeline compilation failed")
	// ErrNotLoaded is returned when binding to a pipeline that has not been loaded.
	ErrNotLoaded = errors.New("gfx: pipeline not loaded")
	// ErrWrongBackend is returned when an object from another backend is passed in.
	ErrWrongBackend = errors.New("gfx: object belongs to a different backend")
	// ErrMissingCapability is returned when a queue lacks the capability an operation needs.
	ErrMissingCapability = errors.New("gfx: missing queue capability")
	// ErrMissingExtension is returned when a required extension or layer is not available.
	ErrMissingExtension = errors.New("gfx: required extension not available")
	ErrOutOfCapacity    = errors.New("gfx: descriptor pool exhausted")
	ErrDeviceLost       = errors.New("gfx: device lost")
	// ErrContract is returned for arguments that violate an operation's preconditions.
	ErrContract    = errors.New("gfx: contract violation")
	ErrNoDevice    = errors.New("gfx: no suitable device")
	ErrAlreadyOpen = errors.New("gfx: context already open")
)
