package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	analyzer "github.com/cms-rpc/analyzer_go/pkg"
)

// app holds the configuration shared by every subcommand.
type app struct {
	configFile string
	config     analyzer.Configuration

	verbosity  int
	numWorkers int
	outputDir  string
	tag        string
	scanID     int
}

// RootCommand creates the rpcanalysis command tree.
func RootCommand() *cobra.Command {
	a := &app{}
	rootCmd := &cobra.Command{
		Use:           "rpcanalysis",
		Short:         "RPC test beam scan analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	setupFlags(rootCmd, a)

	rootCmd.AddCommand(
		scanCommand(a, analyzer.EfficiencyScan),
		scanCommand(a, analyzer.NoiseScan),
		clusterStudyCommand(a),
		summaryCommand(a),
		geometryCommand(a),
		monitoringCommand(a),
	)
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.setup(cmd)
	}
	return rootCmd
}

func setupFlags(cmd *cobra.Command, a *app) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "Configuration file path")
	flags.IntVarP(&a.verbosity, "verbosity", "v", 0, "Verbosity level")
	flags.IntVarP(&a.numWorkers, "workers", "w", 1, "Number of HV points analysed in parallel")
	flags.StringVarP(&a.outputDir, "output", "o", "", "Output directory")
	flags.StringVarP(&a.tag, "tag", "t", "", "Output tag")
	flags.IntVarP(&a.scanID, "scan", "s", 0, "Scan ID")
}

// setup loads the configuration file and applies the flags given on the
// command line on top of it.
func (a *app) setup(cmd *cobra.Command) error {
	config, err := LoadConfiguration(a.configFile)
	if err != nil {
		return fmt.Errorf("Error reading configuration file: %w", err)
	}
	flags := cmd.Flags()
	if flags.Changed("verbosity") {
		config.Verbosity = a.verbosity
	}
	if flags.Changed("workers") {
		config.NumWorkers = a.numWorkers
	}
	if flags.Changed("output") {
		config.OutputDir = a.outputDir
	}
	if flags.Changed("tag") {
		config.Tag = a.tag
	}
	if flags.Changed("scan") {
		config.ScanID = a.scanID
	}
	if err := config.Validate(); err != nil {
		return err
	}
	a.config = config

	analyzer.SetLogger(logger)
	analyzer.SetVerbosity(config.Verbosity)
	if config.Verbosity > 0 {
		message := fmt.Sprintf("Reading configuration file: %s", a.configFile)
		logger.Info(message, "main")
		printConfiguration(config, logger)
	}
	return nil
}

func scanCommand(a *app, scanType analyzer.ScanType) *cobra.Command {
	return &cobra.Command{
		Use:   scanType.String(),
		Short: fmt.Sprintf("Analyse every HV point of a %s scan", scanType),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.config.ScanType = scanType
			return runScan(a.config)
		},
	}
}

func clusterStudyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clusterstudy [hv point]",
		Short: "Cluster size and multiplicity against the clustering time constant",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hvPoint, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid HV point %q: %w", args[0], err)
			}
			a.config.ScanType = analyzer.EfficiencyScan
			return runClusterStudy(a.config, hvPoint)
		},
	}
}

func summaryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Combine scan results taken at several front-end thresholds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runThresholdSummary(a.config)
		},
	}
}

func geometryCommand(a *app) *cobra.Command {
	var importFile string
	var minScan, maxScan int
	var initSchema bool
	cmd := &cobra.Command{
		Use:   "geometry",
		Short: "Print the detector table or import tables into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if importFile != "" {
				return importGeometries(a.config, importFile, minScan, maxScan, initSchema)
			}
			return showGeometry(a.config)
		},
	}
	cmd.Flags().StringVar(&importFile, "import", "", "JSON geometry file to store in the database")
	cmd.Flags().IntVar(&minScan, "min-scan", 0, "First scan the imported tables apply to")
	cmd.Flags().IntVar(&maxScan, "max-scan", 999999, "Last scan the imported tables apply to")
	cmd.Flags().BoolVar(&initSchema, "init-schema", false, "Create the tables before importing")
	return cmd
}

func monitoringCommand(a *app) *cobra.Command {
	var initSchema bool
	cmd := &cobra.Command{
		Use:   "monitoring",
		Short: "Import the CAEN monitoring files of a scan into the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return importMonitoring(a.config, initSchema)
		},
	}
	cmd.Flags().BoolVar(&initSchema, "init-schema", false, "Create the tables before importing")
	return cmd
}
