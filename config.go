// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015 The Decred developers
// Copyright (c) 2024 The mwsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	flags "github.com/jessevdk/go-flags"

	"github.com/mwsuite/mwwallet/internal/cfgutil"
	"github.com/mwsuite/mwwallet/mwconfig"
	"github.com/mwsuite/mwwallet/netparams"
)

const (
	defaultLogLevel    = "info"
	defaultLogDirname  = "logs"
	defaultLogFilename = "mwwallet.log"
	defaultDBType      = "bdb"
	defaultMinConf     = 10

	walletDbName   = "wallet.db"
	walletSeedName = "wallet.seed"
)

var (
	mwwalletHomeDir   = cfgutil.AppDataDir("mwwallet", false)
	defaultConfigFile = filepath.Join(mwwalletHomeDir, mwconfig.DefaultFilename)
	defaultAppDataDir = mwwalletHomeDir
	defaultLogDir     = filepath.Join(mwwalletHomeDir, defaultLogDirname)
)

// activeNet holds the parameters of the network the wallet runs
// against.  It is set by loadConfig.
var activeNet = &netparams.MainNetParams

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	Create      bool                    `long:"create" description:"Create the wallet if it does not exist"`
	AppDataDir  *cfgutil.ExplicitString `short:"A" long:"appdata" description:"Application data directory for wallet config, database and logs"`
	TestNet     bool                    `long:"testnet" description:"Use the test network (default mainnet)"`
	SimNet      bool                    `long:"simnet" description:"Use the simulation test network (default mainnet)"`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level {trace, debug, info, warn, error, critical}"`
	LogDir      *cfgutil.ExplicitString `long:"logdir" description:"Directory to log output"`
	Profile     string                  `long:"profile" description:"Enable HTTP profiling on given port -- NOTE port must be between 1024 and 65536"`
	DBType      *cfgutil.ExplicitString `long:"dbtype" description:"Database backend to use: bdb or sqlite"`

	// Wallet options
	MinConf uint64 `long:"minconf" description:"Minimum confirmations before an output is treated as spendable"`

	// Node API client options
	NodeAPI           *cfgutil.ExplicitString `short:"c" long:"nodeapi" description:"Address of the node HTTP API to check transactions against (default per network, e.g. http://127.0.0.1:3413)"`
	NodeAPISecretFile *cfgutil.ExplicitString `long:"nodeapisecret" description:"File whose first line is the basic auth secret for the node API"`
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir := filepath.Dir(mwwalletHomeDir)
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows cmd.exe-style
	// %VARIABLE%, but they variables can still be expanded via POSIX-style
	// $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace":
		fallthrough
	case "debug":
		fallthrough
	case "info":
		fallthrough
	case "warn":
		fallthrough
	case "error":
		fallthrough
	case "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	// Convert the subsystemLoggers map keys to a slice.
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}

	// Sort the subsystems for stable display.
	sort.Strings(subsystems)
	return subsystems
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystemLoggers[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// normalizeNodeURL accepts a full URL, a bare host, or a host:port pair
// and returns a normalized URL for the node API.  The scheme defaults
// to http and the port to the one of the network's default node
// address.
func normalizeNodeURL(addr, defaultAddr string) (string, error) {
	defaultURL, err := url.Parse(defaultAddr)
	if err != nil {
		return "", err
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	if u.Port() == "" {
		host, err := cfgutil.NormalizeAddress(u.Host, defaultURL.Port())
		if err != nil {
			return "", err
		}
		u.Host = host
	}
	return u.String(), nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in the wallet functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		DebugLevel:        defaultLogLevel,
		ConfigFile:        cfgutil.NewExplicitString(defaultConfigFile),
		AppDataDir:        cfgutil.NewExplicitString(defaultAppDataDir),
		LogDir:            cfgutil.NewExplicitString(defaultLogDir),
		DBType:            cfgutil.NewExplicitString(defaultDBType),
		MinConf:           defaultMinConf,
		NodeAPI:           cfgutil.NewExplicitString(""),
		NodeAPISecretFile: cfgutil.NewExplicitString(""),
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	funcName := "loadConfig"
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// When the application data directory was changed and no explicit
	// config file path was given, look for the config file inside the new
	// data directory.
	configFilePath := preCfg.ConfigFile.Value
	if preCfg.ConfigFile.ExplicitlySet() {
		configFilePath = cleanAndExpandPath(configFilePath)
	} else if preCfg.AppDataDir.ExplicitlySet() {
		configFilePath = filepath.Join(
			cleanAndExpandPath(preCfg.AppDataDir.Value),
			mwconfig.DefaultFilename)
	}

	// Load additional config from the TOML file.  A missing file is only
	// an error when its path was explicitly given; otherwise the wallet
	// runs from defaults and the file is generated on create.
	var configFileError error
	fileCfg, err := mwconfig.Load(configFilePath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
		if preCfg.ConfigFile.ExplicitlySet() {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
		configFileError = err
		fileCfg = new(mwconfig.Config)
	}

	// Apply the config file settings over the defaults.  The second
	// command line parse below gives explicit options the final word.
	if fileCfg.Wallet.DBBackend != "" {
		cfg.DBType.Value = fileCfg.Wallet.DBBackend
	}
	if fileCfg.Wallet.NodeAPISecretPath != "" {
		cfg.NodeAPISecretFile.Value = fileCfg.Wallet.NodeAPISecretPath
	}
	if fileCfg.Wallet.MinimumConfirmations != 0 {
		cfg.MinConf = fileCfg.Wallet.MinimumConfirmations
	}
	if fileCfg.Logging.LogLevel != "" {
		cfg.DebugLevel = fileCfg.Logging.LogLevel
	}
	if fileCfg.Logging.LogDir != "" {
		cfg.LogDir.Value = fileCfg.Logging.LogDir
	}
	if fileCfg.Wallet.DataFileDir != "" {
		// Relative data directories are resolved against the config
		// file's own directory, so the generated default of "." keeps
		// the database next to the file.
		dataDir := fileCfg.Wallet.DataFileDir
		if !filepath.IsAbs(dataDir) {
			dataDir = filepath.Join(filepath.Dir(configFilePath), dataDir)
		}
		cfg.AppDataDir.Value = dataDir
	}

	// Parse command line options again to ensure they take precedence.
	parser := flags.NewParser(&cfg, flags.Default)
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Choose the active network params based on the selected network.
	// Multiple networks can't be selected simultaneously.  Without a
	// network flag the config file's chain type decides.
	numNets := 0
	if cfg.TestNet {
		activeNet = &netparams.TestNetParams
		numNets++
	}
	if cfg.SimNet {
		activeNet = &netparams.SimNetParams
		numNets++
	}
	if numNets > 1 {
		str := "%s: The testnet and simnet params can't be used " +
			"together -- choose one"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}
	if numNets == 0 && fileCfg.Wallet.ChainType != "" {
		switch fileCfg.Wallet.ChainType {
		case netparams.MainNetParams.Name:
			activeNet = &netparams.MainNetParams
		case netparams.TestNetParams.Name:
			activeNet = &netparams.TestNetParams
		case netparams.SimNetParams.Name:
			activeNet = &netparams.SimNetParams
		default:
			str := "%s: unknown chain type %q in %s"
			err := fmt.Errorf(str, funcName,
				fileCfg.Wallet.ChainType, configFilePath)
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	}

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.LogDir.Value = cleanAndExpandPath(cfg.LogDir.Value)
	cfg.LogDir.Value = filepath.Join(cfg.LogDir.Value, activeNet.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After the log rotation has been
	// initialized, the logger variables may be used.
	initLogRotator(filepath.Join(cfg.LogDir.Value, defaultLogFilename))

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		parser.WriteHelp(os.Stderr)
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	// Sanity check the database type before any file is created with it.
	switch cfg.DBType.Value {
	case "bdb", "sqlite":
	default:
		str := "%s: unknown database type %q (choices: bdb, sqlite)"
		err := fmt.Errorf(str, funcName, cfg.DBType.Value)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Ensure the wallet exists or create it when the create flag is set.
	cfg.AppDataDir.Value = cleanAndExpandPath(cfg.AppDataDir.Value)
	netDir := networkDir(cfg.AppDataDir.Value, activeNet)
	dbPath := filepath.Join(netDir, walletDbName)
	dbFileExists, err := cfgutil.FileExists(dbPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	if cfg.Create {
		// Error if the create flag is set and the wallet already
		// exists.
		if dbFileExists {
			err := fmt.Errorf("The wallet database file `%v` "+
				"already exists.", dbPath)
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}

		// Ensure the data directory for the network exists.
		if err := checkCreateDir(netDir); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}

		// Perform the initial wallet creation wizard.
		if err := createWallet(&cfg, configFilePath); err != nil {
			fmt.Fprintln(os.Stderr, "Unable to create wallet:", err)
			return nil, nil, err
		}

		// Created successfully, so exit now with success.
		os.Exit(0)
	} else if !dbFileExists {
		err := fmt.Errorf("The wallet does not exist.  Run with the " +
			"--create option to initialize and create it.")
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Resolve the node API address: command line first, then the config
	// file, then the per-network default.
	if !cfg.NodeAPI.ExplicitlySet() &&
		fileCfg.Wallet.CheckNodeAPIHTTPAddr != "" {

		cfg.NodeAPI.Value = fileCfg.Wallet.CheckNodeAPIHTTPAddr
	}
	if cfg.NodeAPI.Value == "" {
		cfg.NodeAPI.Value = activeNet.DefaultNodeAPIAddr
	}
	nodeURL, err := normalizeNodeURL(cfg.NodeAPI.Value,
		activeNet.DefaultNodeAPIAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr,
			"Invalid nodeapi network address: %v\n", err)
		return nil, nil, err
	}
	cfg.NodeAPI.Value = nodeURL

	// Expand environment variable and leading ~ for filepaths.
	if cfg.NodeAPISecretFile.Value != "" {
		cfg.NodeAPISecretFile.Value =
			cleanAndExpandPath(cfg.NodeAPISecretFile.Value)
	}

	return &cfg, remainingArgs, nil
}
