package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	pushtester "github.com/kayac/pushtester"
	"github.com/kayac/pushtester/config"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var version string

const usage = `Usage: pushtester [options] <command> [command options]

Commands:
  send      send a notification and print its status line
  token     print a provider authentication token
  history   print the recorded attempts, most recent first
  serve     start the local push server
  version   show version number

Options:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	var (
		confPath  string
		envFile   string
		logFormat string
		logLevel  string
	)

	fs := flag.NewFlagSet("pushtester", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&confPath, "config", "", "specify config file. (default: "+config.DefaultPath()+")")
	fs.StringVar(&confPath, "c", "", "specify config file.")
	fs.StringVar(&envFile, "env-file", ".env", "load environment variables from the file if it exists.")
	fs.StringVar(&logFormat, "log-format", "", "specifies the log format: text, ltsv or json.")
	fs.StringVar(&logLevel, "log-level", "info", "set the log level (debug, warn, info)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cmd, cmdArgs := "send", []string{}
	if fs.NArg() > 0 {
		cmd, cmdArgs = fs.Arg(0), fs.Args()[1:]
	}
	if cmd == "version" {
		fmt.Fprintf(out, "Compiler: %s %s\n", runtime.Compiler, runtime.Version())
		fmt.Fprintf(out, "pushtester version: %s\n", buildVersion())
		return 0
	}

	if err := initLogrus(logFormat, logLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warn("failed to load .env file")
	}

	if confPath == "" {
		confPath = config.DefaultPath()
	}
	conf, err := loadConfig(confPath)
	if err != nil {
		logrus.Error(err)
		return 1
	}
	if conf.Log.File != "" {
		logrus.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   conf.Log.File,
			MaxSize:    conf.Log.MaxSize,
			MaxBackups: conf.Log.MaxBackups,
		}))
	}

	switch cmd {
	case "send":
		return runSend(cmdArgs, conf, confPath, out)
	case "token":
		return runToken(cmdArgs, conf, confPath, out)
	case "history":
		return runHistory(cmdArgs, conf, out)
	case "serve":
		return runServe(cmdArgs, conf)
	}
	logrus.Errorf("Unknown command: %s. Please look at help.", cmd)
	fs.Usage()
	return 2
}

// loadConfig loads fn, or the defaults when fn does not exist yet.
func loadConfig(fn string) (config.Config, error) {
	if _, err := os.Stat(fn); os.IsNotExist(err) {
		logrus.Debugf("%s does not exist, using defaults", fn)
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(fn)
}

func initLogrus(format string, logLevel string) error {
	f, err := pushtester.ParseLogFormat(format)
	if err != nil {
		return err
	}
	logrus.SetFormatter(f)

	lvl, err := logrus.ParseLevel(logLevel)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
	return nil
}

func buildVersion() string {
	if version != "" {
		return version
	}
	return pushtester.Version
}

func expandHome(fn string) string {
	if len(fn) > 1 && fn[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, fn[2:])
		}
	}
	return fn
}
