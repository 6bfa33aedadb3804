package internal

import (
	"log"
	"os"

	"github.com/goplus/rustwasm/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

var (
	verbose bool
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "rustwasm",
	Short: "rustwasm builds Rust crates into WebAssembly modules",
	Long: `rustwasm compiles Rust crates to WebAssembly with cargo, wasm-bindgen and
wasm-opt, and writes the JavaScript modules that load them.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = newLogger(os.Stderr, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		log.Fatal(err)
	}
}

// newLogger writes human-readable logs to w, coloured when w is a terminal.
func newLogger(w *os.File, verbose bool) *zap.Logger {
	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	if term.IsTerminal(int(w.Fd())) {
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(w), level))
}

// loadOptions reads the option file at path, if any.
func loadOptions(path string) (*config.Options, error) {
	if path == "" {
		return &config.Options{}, nil
	}
	return config.Load(path)
}
