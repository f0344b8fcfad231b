package cli

// Flags holds all command-line flag values
type Flags struct {
	// Global flags
	CfgFile string
	Verbose bool
	Archive bool

	// Translation flags
	OutputDir    string
	OutputFormat string
	TargetLang   string
	TextType     string
	BatchFile    string
	UserID       int64
	ChunkSize    int
	Overlap      int

	// Runtime flags
	Addr         string
	Workers      int
	CacheBackend string
	CachePath    string

	// Models flags
	Service string
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	return &Flags{
		OutputFormat: "txt",
		TargetLang:   "ar",
		UserID:       1,
		ChunkSize:    1000,
		Overlap:      100,
		Addr:         ":8080",
		Workers:      4,
		CacheBackend: "memory",
		Service:      "groq",
	}
}
