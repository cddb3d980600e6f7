package xlvba

// DefaultCallback is the procedure name embedding operations expect to find
// in a usable project when no callback is configured.
const DefaultCallback = "Run"

type config struct {
	donorPath         string
	overwrite         bool
	callback          string
	ribbonCallback    string
	ribbon            bool
	ribbonTabLabel    string
	ribbonGroupLabel  string
	ribbonButtonLabel string
	defaultProject    func() ([]byte, error)
	compatPatch       func([]byte) []byte
}

// Option configures Embed, EmbedModule, InjectOrRepair, and Inspect.
type Option func(*config)

func newConfig(opts []Option) config {
	cfg := config{
		callback:          DefaultCallback,
		ribbon:            true,
		ribbonTabLabel:    "Macros",
		ribbonGroupLabel:  "Automation",
		ribbonButtonLabel: "Run",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ribbonCallback == "" {
		cfg.ribbonCallback = cfg.callback + "_Ribbon"
	}
	return cfg
}

// WithDonor selects the donor-copy strategy: the project binary is read
// from the given package's xl/vbaProject.bin part and must define the
// expected callback symbol.
func WithDonor(path string) Option {
	return func(c *config) { c.donorPath = path }
}

// WithOverwrite controls whether an existing project part is replaced.
// When false (the default), existing project bytes are never touched and
// only the registration metadata is repaired.
func WithOverwrite(v bool) Option {
	return func(c *config) { c.overwrite = v }
}

// WithCallback sets the procedure name used to validate donors, guard
// host-automation imports, and probe packages during inspection.
func WithCallback(symbol string) Option {
	return func(c *config) { c.callback = symbol }
}

// WithRibbonCallback overrides the onAction callback of a synthesized
// ribbon button. Defaults to the callback symbol plus "_Ribbon".
func WithRibbonCallback(symbol string) Option {
	return func(c *config) { c.ribbonCallback = symbol }
}

// WithRibbon enables or disables synthesizing a one-button ribbon tab when
// the package has no ribbon customization part yet. Enabled by default;
// ribbon synthesis is additive and best-effort either way.
func WithRibbon(v bool) Option {
	return func(c *config) { c.ribbon = v }
}

// WithRibbonLabels sets the tab, group, and button labels of a synthesized
// ribbon part.
func WithRibbonLabels(tab, group, button string) Option {
	return func(c *config) {
		c.ribbonTabLabel = tab
		c.ribbonGroupLabel = group
		c.ribbonButtonLabel = button
	}
}

// WithDefaultProject supplies the bundled-default strategy with a project
// binary source. The source is consulted only when no donor is configured
// and the target needs project bytes.
func WithDefaultProject(fn func() ([]byte, error)) Option {
	return func(c *config) { c.defaultProject = fn }
}

// WithCompatibilityPatch installs an opaque transform applied to an
// existing project part during a metadata-only repair. The transformed
// bytes are written back only when they differ from the input.
func WithCompatibilityPatch(fn func([]byte) []byte) Option {
	return func(c *config) { c.compatPatch = fn }
}
