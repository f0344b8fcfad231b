package cli

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"codeberg.org/snonux/doctrans/internal"
)

// Actions are the functions run by the commands
type Actions struct {
	Archive   func(cmd *cobra.Command) error
	Serve     func(cmd *cobra.Command) error
	Translate func(cmd *cobra.Command, files []string) error
	Providers func(cmd *cobra.Command) error
	Models    func(cmd *cobra.Command) error
}

// DefaultOutputDir is where translated documents are written
func DefaultOutputDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "doctrans", "output")
}

// CreateRootCommand creates and configures the root cobra command
func CreateRootCommand(flags *Flags, actions Actions) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "doctrans",
		Short: "Chunked document translation service",
		Long: `doctrans translates documents through several language model providers.

Documents are queued under per-user and global limits, split into chunks
with context overlap, translated with retry and provider fallback, and
merged back into a single document.

Examples:
  doctrans serve                          # Run the HTTP service
  doctrans translate report.txt           # Translate files from the command line
  doctrans translate --batch docs.txt     # Translate every file listed in a manifest
  doctrans providers                      # Show API key usage
  doctrans models --service groq          # List models of a provider
  doctrans --archive                      # Move previous outputs to the archive`,
		Args:    cobra.NoArgs,
		Version: internal.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flags.Archive && actions.Archive != nil {
				return actions.Archive(cmd)
			}
			return cmd.Help()
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP intake and status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return actions.Serve(cmd)
		},
	}

	translateCmd := &cobra.Command{
		Use:   "translate [file...]",
		Short: "Translate documents and write the results to the output directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return actions.Translate(cmd, args)
		},
	}

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "Show configured API keys and their usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return actions.Providers(cmd)
		},
	}

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the models of an OpenAI-compatible provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return actions.Models(cmd)
		},
	}

	setupFlags(rootCmd, flags)
	serveCmd.Flags().StringVar(&flags.Addr, "addr", flags.Addr, "HTTP listen address")
	translateCmd.Flags().StringVar(&flags.BatchFile, "batch", "", "Translate the documents listed in a manifest file (one per line)")
	translateCmd.Flags().Int64Var(&flags.UserID, "user", flags.UserID, "User ID the documents are submitted as")
	translateCmd.Flags().StringVar(&flags.TextType, "text-type", "", "Force the text type: general, technical or academic (default: detect)")
	translateCmd.Flags().IntVar(&flags.ChunkSize, "chunk-size", flags.ChunkSize, "Maximum chunk size in characters")
	translateCmd.Flags().IntVar(&flags.Overlap, "overlap", flags.Overlap, "Context overlap in characters")
	modelsCmd.Flags().StringVar(&flags.Service, "service", flags.Service, "Provider to query: groq, openai or azure")

	bindFlagsToViper(rootCmd, serveCmd, translateCmd)

	rootCmd.AddCommand(serveCmd, translateCmd, providersCmd, modelsCmd)
	return rootCmd
}

func setupFlags(cmd *cobra.Command, flags *Flags) {
	// Global flags
	cmd.PersistentFlags().StringVar(&flags.CfgFile, "config", "", "config file (default is $HOME/.doctrans.yaml)")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Verbose development logging")
	cmd.PersistentFlags().StringVarP(&flags.OutputDir, "output", "o", DefaultOutputDir(), "Output directory")
	cmd.PersistentFlags().StringVarP(&flags.OutputFormat, "format", "f", flags.OutputFormat, "Output format (txt, md or html)")
	cmd.PersistentFlags().StringVarP(&flags.TargetLang, "lang", "l", flags.TargetLang, "Target language code")
	cmd.PersistentFlags().IntVar(&flags.Workers, "workers", flags.Workers, "Workers for extraction and rendering")
	cmd.PersistentFlags().StringVar(&flags.CacheBackend, "cache", flags.CacheBackend, "Cache backend (memory, sqlite or redis)")
	cmd.PersistentFlags().StringVar(&flags.CachePath, "cache-path", "", "SQLite cache file")

	// Local flags
	cmd.Flags().BoolVar(&flags.Archive, "archive", false, "Move the output directory to the archive and exit")
}

func bindFlagsToViper(root, serve, translate *cobra.Command) {
	viper.BindPFlag("output.directory", root.PersistentFlags().Lookup("output"))
	viper.BindPFlag("output.format", root.PersistentFlags().Lookup("format"))
	viper.BindPFlag("translation.target_lang", root.PersistentFlags().Lookup("lang"))
	viper.BindPFlag("scheduler.workers", root.PersistentFlags().Lookup("workers"))
	viper.BindPFlag("cache.backend", root.PersistentFlags().Lookup("cache"))
	viper.BindPFlag("cache.path", root.PersistentFlags().Lookup("cache-path"))
	viper.BindPFlag("server.addr", serve.Flags().Lookup("addr"))
	viper.BindPFlag("translation.text_type", translate.Flags().Lookup("text-type"))
	viper.BindPFlag("translation.chunk_size", translate.Flags().Lookup("chunk-size"))
	viper.BindPFlag("translation.overlap", translate.Flags().Lookup("overlap"))
}
