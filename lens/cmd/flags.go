package cmd

import (
	"errors"
	"flag"
	"strconv"

	"github.com/CoroLens/go-coro-lens/lens"
)

// CustomFlag defines a custom CLI option.
type CustomFlag struct {
	Name         string
	DefaultValue any
	Usage        string
	Type         string // "string", "int", "bool"
}

// ParseFlags builds Config from standard and custom flags. When -config names
// a YAML file it is loaded first and explicit flags override its values.
func ParseFlags(customFlags []CustomFlag) (*lens.Config, error) {
	config := &lens.Config{CustomFlags: make(map[string]string)}

	// Define all standard flags
	configFile := flag.String("config", "", "Path to a YAML config file, flags override file values")
	targetDir := flag.String("dir", "", "Path to the source tree to instrument")
	modeFlag := flag.String("mode", "all", "Instrumentation mode, values can be: all (default), none")
	aliasFlag := flag.String("alias", lens.DefaultCoroutineAlias, "Coroutine result type alias to match")
	yieldFlag := flag.String("yield", lens.DefaultYieldIdent, "Suspension call identifier to track")
	writeFlag := flag.Bool("write", false, "Rewrite files in place, keeping .bkp backups")
	diffFlag := flag.Bool("diff", false, "Print unified diffs instead of writing")
	outDir := flag.String("out", "", "Mirror instrumented files into this directory")
	cacheMB := flag.Int("cachemb", 200, "Cache memory budget in MB")
	storageDir := flag.String("storage", "", "Directory for recorded session storage")
	reportJsonFile := flag.String("json", "cororeport.json", "File to output trace report details")
	reportChartsFile := flag.String("charts", "cororeport.png", "File to output trace overview chart image")
	sessionLabel := flag.String("session", "default", "Label for stored trace sessions")

	// Define custom flags
	customPtrs := make(map[string]interface{})
	for _, cf := range customFlags {
		switch cf.Type {
		case "string":
			customPtrs[cf.Name] = flag.String(cf.Name, cf.DefaultValue.(string), cf.Usage)
		case "int":
			customPtrs[cf.Name] = flag.Int(cf.Name, cf.DefaultValue.(int), cf.Usage)
		case "bool":
			customPtrs[cf.Name] = flag.Bool(cf.Name, cf.DefaultValue.(bool), cf.Usage)
		}
	}

	flag.Parse()

	if *configFile != "" {
		if err := lens.LoadConfigFile(*configFile, config); err != nil {
			return nil, err
		}
	}

	// Populate config, explicit flags win over file values
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	applyString := func(name string, target *string, value string) {
		if setFlags[name] || *target == "" {
			*target = value
		}
	}
	applyString("dir", &config.TargetDir, *targetDir)
	applyString("mode", &config.Mode, *modeFlag)
	applyString("alias", &config.CoroutineAlias, *aliasFlag)
	applyString("yield", &config.YieldIdent, *yieldFlag)
	applyString("out", &config.OutDir, *outDir)
	applyString("storage", &config.StorageDir, *storageDir)
	applyString("json", &config.ReportJsonFile, *reportJsonFile)
	applyString("charts", &config.ReportChartsFile, *reportChartsFile)
	applyString("session", &config.SessionLabel, *sessionLabel)
	if setFlags["write"] {
		config.Write = *writeFlag
	}
	if setFlags["diff"] {
		config.Diff = *diffFlag
	}
	if setFlags["cachemb"] || config.CacheMB == 0 {
		config.CacheMB = *cacheMB
	}

	// Validate standard flags
	if config.TargetDir == "" {
		return nil, errors.New("usage: -dir ../foo [-mode all|none] [-write | -diff | -out dir]")
	} else if config.Write && config.OutDir != "" {
		return nil, errors.New("-write and -out are mutually exclusive")
	} else if _, err := lens.ParseMode(config.Mode); err != nil {
		return nil, err
	}

	// Populate custom flags - convert all to strings for ease of use
	for name, ptr := range customPtrs {
		switch v := ptr.(type) {
		case *string:
			config.CustomFlags[name] = *v
		case *int:
			config.CustomFlags[name] = strconv.Itoa(*v)
		case *bool:
			config.CustomFlags[name] = strconv.FormatBool(*v)
		}
	}

	return config, nil
}
