package vulkan

type options struct {
	driver            Driver
	onDisposalFailure DisposalFailureHook
}

// Option configures a Context.
type Option func(*options)

// WithDriver replaces the native Vulkan entry points.
func WithDriver(d Driver) Option {
	return func(o *options) {
		o.driver = d
	}
}

// WithDisposalFailureHook is called on the disposal worker for every
// destructor that returned an error or panicked.
func WithDisposalFailureHook(fn DisposalFailureHook) Option {
	return func(o *options) {
		o.onDisposalFailure = fn
	}
}
