package shared

const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfigError = 2
	ExitResolve     = 3
	ExitFetch       = 4
	ExitBuild       = 5
)
