package motion

import "errors"

var (
	// ErrBadConfig indicates an invalid context configuration.
	ErrBadConfig = errors.New("motion: invalid config")

	// ErrAlreadyActive is returned by Launch when the context already owns
	// a buffer or worker.
	ErrAlreadyActive = errors.New("motion: context already active")

	// ErrWorkerActive is returned by FreeResources when the worker has not
	// been confirmed stopped.
	ErrWorkerActive = errors.New("motion: worker still active")

	// ErrNotRegistered is returned for contexts unknown to the supervisor.
	ErrNotRegistered = errors.New("motion: context not registered")

	// ErrAlreadyRegistered is returned by Bridge.Register when the widget
	// already has a context bound to it.
	ErrAlreadyRegistered = errors.New("motion: widget already registered")
)
