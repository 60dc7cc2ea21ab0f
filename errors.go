package goGuard

import "errors"

var (
	// ErrBuilderUsed is returned when Build is called twice on one Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrInvalidConfig wraps every Config.Validate failure.
	ErrInvalidConfig = errors.New("invalid guard config")
	// ErrNoIdentity is returned by Build when no identity collaborator is set.
	ErrNoIdentity = errors.New("identity collaborator required")
	// ErrNoPresenter is returned by NewNavigator for a nil Presenter.
	ErrNoPresenter = errors.New("presenter required")
	// ErrNavigatorClosed is returned by Navigator methods after Close.
	ErrNavigatorClosed = errors.New("navigator closed")
	// ErrEngineNotReady is returned by methods on a nil or closed Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrInvalidURL is returned for a navigation target that cannot be parsed.
	ErrInvalidURL = errors.New("invalid navigation url")
)
