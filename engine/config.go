package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully-resolved option set, after CLI flags, config file,
// and environment variables are merged.
type Config struct {
	Help       bool
	ConfigPath string
	SaveConfig string

	URLFile    string
	Md5List    string
	LocalList  string
	ServerList string

	NumTransactions  int
	ReuseConnections bool
	Random           bool
	Sequential       bool

	RandomQStringProb float64
	BrProb            float64

	ThrottleProb float64
	ThrottleMin  int64
	ThrottleMax  int64

	TermProb          float64
	TermMinSec        float64
	TermWeibullK      float64
	TermWeibullLambda float64

	RepeatProb float64

	Verbose  bool
	NoChecks bool
	Quiet    bool
}

// knownKeys lists every config-file key testclient understands. Any other
// key in a config file produces a warning, not a fatal error.
var knownKeys = map[string]bool{
	"help": true, "config": true, "save-config": true,
	"md5-list": true, "local-list": true, "server-list": true,
	"num-transactions": true, "reuse-connections": true, "random": true, "sequential": true,
	"random-qstring-prob": true, "br-prob": true,
	"throttle-prob": true, "throttle-min": true, "throttle-max": true,
	"term-prob": true, "term-min-sec": true, "term-weibull-k": true, "term-weibull-lambda": true,
	"repeat-prob": true,
	"verbose":    true, "no-checks": true, "quiet": true,
}

// flagGroups mirrors the original tool's Input/Traffic simulation/Output
// grouping for --help output.
var flagGroups = []struct {
	title string
	flags []string
}{
	{"Input", []string{"config", "save-config", "md5-list", "local-list", "server-list"}},
	{"Traffic simulation", []string{
		"num-transactions", "reuse-connections", "random", "sequential",
		"random-qstring-prob", "br-prob", "throttle-prob", "throttle-min", "throttle-max",
		"term-prob", "term-min-sec", "term-weibull-k", "term-weibull-lambda", "repeat-prob",
	}},
	{"Output", []string{"verbose", "no-checks", "quiet"}},
}

// ParseFlags defines and parses the command line flags, pairing long and
// short names the way the original tool's option registry did.
func ParseFlags(args []string) (*pflag.FlagSet, error) {
	fs := pflag.NewFlagSet("testclient", pflag.ContinueOnError)

	fs.Bool("help", false, "Print usage information")
	fs.StringP("config", "c", "", "Read options from a config file")
	fs.String("save-config", "", "Dump the resolved option set to a config file and exit")

	fs.StringP("md5-list", "m", "", "File with MD5 sums for each URL")
	fs.StringP("local-list", "l", "", "File with local filenames for each URL")
	fs.String("server-list", "", "File with server authorities and weights")

	fs.IntP("num-transactions", "n", 80, "Number of simultaneous transactions to maintain")
	fs.BoolP("reuse-connections", "u", false, "Keep connections open and reuse them for new requests")
	fs.BoolP("random", "r", true, "Request URLs in random order")
	fs.BoolP("sequential", "s", false, "Request URLs in sequential order")

	fs.Float64("random-qstring-prob", 0.0, "Probability of adding a random query string parameter")
	fs.Float64P("br-prob", "b", 0.0, "Probability of making a byte range request")

	fs.Float64P("throttle-prob", "o", 0.0, "Probability of throttling connection speed")
	fs.Int64P("throttle-min", "i", 10000000, "Randomized throttling: minimum bytes/sec")
	fs.Int64P("throttle-max", "a", 10000000, "Randomized throttling: maximum bytes/sec")

	fs.Float64P("term-prob", "t", 0.0, "Probability of considering early termination")
	fs.Float64P("term-min-sec", "e", 100000000000.0, "Seconds before early termination is considered")
	fs.Float64P("term-weibull-k", "k", 1.2, "Weibull distribution k parameter")
	fs.Float64P("term-weibull-lambda", "d", 30.0, "Weibull distribution lambda parameter")

	fs.Float64P("repeat-prob", "p", 0.0, "Probability of repeating the previous request immediately")

	fs.BoolP("verbose", "v", false, "Dump per-request stats to .header/.aux files")
	fs.BoolP("no-checks", "x", false, "Skip consistency checks; discard content")
	fs.BoolP("quiet", "q", false, "Suppress success and info lines")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return fs, nil
}

// LoadConfig merges CLI flags, an optional config file, and environment
// variables into a Config, mirroring the teacher's viper wiring. Settings
// in the config file are overridden by flags given explicitly on the
// command line.
func LoadConfig(fs *pflag.FlagSet, reporter *Reporter) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("testclient")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return Config{}, errors.WithStack(err)
	}

	configPath, _ := fs.GetString("config")
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("properties")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %q", configPath)
		}
		warnUnknownKeys(v, reporter)
	}

	c := Config{
		Help:              v.GetBool("help"),
		ConfigPath:        configPath,
		SaveConfig:        v.GetString("save-config"),
		Md5List:           v.GetString("md5-list"),
		LocalList:         v.GetString("local-list"),
		ServerList:        v.GetString("server-list"),
		NumTransactions:   v.GetInt("num-transactions"),
		ReuseConnections:  v.GetBool("reuse-connections"),
		Random:            v.GetBool("random"),
		Sequential:        v.GetBool("sequential"),
		RandomQStringProb: v.GetFloat64("random-qstring-prob"),
		BrProb:            v.GetFloat64("br-prob"),
		ThrottleProb:      v.GetFloat64("throttle-prob"),
		ThrottleMin:       v.GetInt64("throttle-min"),
		ThrottleMax:       v.GetInt64("throttle-max"),
		TermProb:          v.GetFloat64("term-prob"),
		TermMinSec:        v.GetFloat64("term-min-sec"),
		TermWeibullK:      v.GetFloat64("term-weibull-k"),
		TermWeibullLambda: v.GetFloat64("term-weibull-lambda"),
		RepeatProb:        v.GetFloat64("repeat-prob"),
		Verbose:           v.GetBool("verbose"),
		NoChecks:          v.GetBool("no-checks"),
		Quiet:             v.GetBool("quiet"),
	}

	if c.Sequential {
		c.Random = false
	}
	if c.NoChecks {
		c.Verbose = false
	}

	if fs.NArg() > 0 {
		c.URLFile = fs.Arg(0)
	}

	return c, nil
}

func warnUnknownKeys(v *viper.Viper, reporter *Reporter) {
	for _, key := range v.AllKeys() {
		if !knownKeys[key] && reporter != nil {
			reporter.Warn("unknown config key %q ignored", key)
		}
	}
}

// SaveConfig dumps c back out in the properties grammar the config file
// loader understands.
func SaveConfig(w io.Writer, c Config) error {
	lines := []struct{ key, val string }{
		{"md5-list", c.Md5List},
		{"local-list", c.LocalList},
		{"server-list", c.ServerList},
		{"num-transactions", fmt.Sprint(c.NumTransactions)},
		{"reuse-connections", fmt.Sprint(c.ReuseConnections)},
		{"random", fmt.Sprint(c.Random)},
		{"sequential", fmt.Sprint(c.Sequential)},
		{"random-qstring-prob", fmt.Sprint(c.RandomQStringProb)},
		{"br-prob", fmt.Sprint(c.BrProb)},
		{"throttle-prob", fmt.Sprint(c.ThrottleProb)},
		{"throttle-min", fmt.Sprint(c.ThrottleMin)},
		{"throttle-max", fmt.Sprint(c.ThrottleMax)},
		{"term-prob", fmt.Sprint(c.TermProb)},
		{"term-min-sec", fmt.Sprint(c.TermMinSec)},
		{"term-weibull-k", fmt.Sprint(c.TermWeibullK)},
		{"term-weibull-lambda", fmt.Sprint(c.TermWeibullLambda)},
		{"repeat-prob", fmt.Sprint(c.RepeatProb)},
		{"verbose", fmt.Sprint(c.Verbose)},
		{"no-checks", fmt.Sprint(c.NoChecks)},
		{"quiet", fmt.Sprint(c.Quiet)},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s = %s\n", l.key, l.val); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// PrintUsage writes grouped usage information to w, matching the original
// tool's Input/Traffic simulation/Output section banners.
func PrintUsage(w io.Writer, fs *pflag.FlagSet) {
	fmt.Fprintln(w, "Usage: testclient [options] <url-file>")
	for _, group := range flagGroups {
		fmt.Fprintf(w, "\n%s:\n", group.title)
		for _, name := range group.flags {
			f := fs.Lookup(name)
			if f == nil {
				continue
			}
			if f.Shorthand != "" {
				fmt.Fprintf(w, "  -%s, --%-22s %s\n", f.Shorthand, name, f.Usage)
			} else {
				fmt.Fprintf(w, "      --%-22s %s\n", name, f.Usage)
			}
		}
	}
}
