// Package code provides CodeRunner implementations for LLM code execution.
package code

import "time"

// Option configures a SubprocessRunner.
type Option func(*runnerConfig)

type runnerConfig struct {
	timeout        time.Duration
	maxOutput      int
	workspace      string
	envVars        map[string]string
	envPassthrough bool

	// HTTPRunner-specific.
	sandboxURL      string
	callbackAddr    string
	callbackExtAddr string
	maxRetries      int
	retryDelay      time.Duration
	maxFileSize     int64
}

func defaultConfig() runnerConfig {
	return runnerConfig{
		timeout:      30 * time.Second,
		maxOutput:    64 * 1024, // 64KB
		callbackAddr: "127.0.0.1:0",
		maxRetries:   3,
		retryDelay:   500 * time.Millisecond,
		maxFileSize:  10 << 20, // 10MB
	}
}

// WithTimeout sets the maximum execution duration for code.
// Default: 30s. The subprocess is killed (SIGKILL) on timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *runnerConfig) { c.timeout = d }
}

// WithMaxOutput sets the maximum output size in bytes.
// Output beyond this limit is truncated. Default: 64KB.
func WithMaxOutput(bytes int) Option {
	return func(c *runnerConfig) { c.maxOutput = bytes }
}

// WithWorkspace sets the working directory for code execution; the script
// starts there and sees the path in _OASIS_WORKSPACE. Filesystem access
// from the code is not confined to this directory. Default: os.TempDir().
func WithWorkspace(path string) Option {
	return func(c *runnerConfig) { c.workspace = path }
}

// WithEnv sets a specific environment variable for the subprocess.
// Multiple calls accumulate. These are added to the subprocess environment
// alongside any passthrough variables.
func WithEnv(key, value string) Option {
	return func(c *runnerConfig) {
		if c.envVars == nil {
			c.envVars = make(map[string]string)
		}
		c.envVars[key] = value
	}
}

// WithEnvPassthrough passes all host environment variables to the subprocess.
// By default, the subprocess inherits a minimal environment.
func WithEnvPassthrough() Option {
	return func(c *runnerConfig) { c.envPassthrough = true }
}

// WithCallbackAddr sets the local address the HTTPRunner's callback server
// listens on for sandbox tool-call requests. Default: "127.0.0.1:0" (random
// free port).
func WithCallbackAddr(addr string) Option {
	return func(c *runnerConfig) { c.callbackAddr = addr }
}

// WithCallbackExternal disables the auto-started callback server. The caller
// mounts HTTPRunner.Handler() on their own mux and reachableAddr is advertised
// to the sandbox as the callback URL base.
func WithCallbackExternal(reachableAddr string) Option {
	return func(c *runnerConfig) { c.callbackExtAddr = reachableAddr }
}

// WithMaxRetries sets how many attempts HTTPRunner makes, the first one
// included, before giving up on a transient sandbox failure. Default: 3.
func WithMaxRetries(n int) Option {
	return func(c *runnerConfig) { c.maxRetries = n }
}

// WithRetryDelay sets the initial backoff between HTTPRunner retry attempts,
// doubling on each subsequent attempt. Default: 500ms.
func WithRetryDelay(d time.Duration) Option {
	return func(c *runnerConfig) { c.retryDelay = d }
}

// WithMaxFileSize caps the size of output files HTTPRunner decodes from the
// sandbox response; larger files are returned as metadata only, without
// their data. Default: 10MB.
func WithMaxFileSize(bytes int64) Option {
	return func(c *runnerConfig) { c.maxFileSize = bytes }
}
