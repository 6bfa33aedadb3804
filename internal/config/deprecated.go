package config

// deprecation migrates one deprecated option into its replacement and
// returns the warning shown to the user.
type deprecation struct {
	key     string
	present func(o *Options) bool
	migrate func(o *Options) string
}

var deprecations = []deprecation{
	{
		key:     "debug",
		present: func(o *Options) bool { return o.Debug != nil },
		migrate: func(o *Options) string {
			if o.Release == nil {
				release := !*o.Debug
				o.Release = &release
			}
			return "The debug option is deprecated, use release instead"
		},
	},
	{
		key:     "outDir",
		present: func(o *Options) bool { return o.OutDir != "" },
		migrate: func(o *Options) string {
			return "The outDir option is deprecated, name emitted assets through the host instead"
		},
	},
	{
		key:     "wasmPackPath",
		present: func(o *Options) bool { return o.WasmPackPath != "" },
		migrate: func(o *Options) string {
			return "The wasmPackPath option is deprecated and no longer works"
		},
	},
	{
		key:     "experimental.typescriptDeclarationDir",
		present: func(o *Options) bool { return o.Experimental.TypescriptDeclarationDir != "" },
		migrate: func(o *Options) string {
			if o.Experimental.DeclarationDir == "" {
				o.Experimental.DeclarationDir = o.Experimental.TypescriptDeclarationDir
			}
			return "The experimental.typescriptDeclarationDir option is deprecated, use experimental.declarationDir instead"
		},
	},
}
