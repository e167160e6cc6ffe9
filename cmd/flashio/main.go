// Command flashio manipulates a flash image file on the host: it formats the
// filesystem, copies files in and out, takes snapshots to object storage and
// mounts the image through FUSE.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/flashio/config"
	"github.com/timtadh/getopt"
)

var exitCodes = map[string]int{
	"usage":  0,
	"failed": 1,
	"opts":   2,
	"config": 3,
}

const usageMessage = "flashio [options] <command> [args]"

const extendedMessage = `
flashio -- work with a flash image holding a flashio filesystem

Global Options
  -h, --help                view this message
  -c, --config=<path>       TOML configuration (default: built-in defaults)
  -i, --image=<path>        image file, overrides image.path
  -v, --verbose             log at debug level

Commands
  format                    write an empty filesystem to the image
  ls [path]                 list a directory (default /)
  cat <path>                copy a file to stdout
  put <src> <path>          copy a host file (- for stdin) into the image
  rm <path>                 remove a file or empty directory
  mkdir <path>              create a directory
  df                        show block usage
  snapshot [--device=<id>] [name]
                            store the image in the snapshot store; with
                            --device the snapshot is named and recorded in
                            the catalog
  snapshots [--device=<id>] list stored snapshots or a device's history
  restore <name>            write a snapshot back to the image
  restore --device=<id>     restore the device's latest catalog entry
  mount <dir>               serve the filesystem through FUSE until
                            interrupted
`

// env carries what every command needs.
type env struct {
	ctx    context.Context
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type command func(e *env, args []string) error

var commands = map[string]command{
	"format":    cmdFormat,
	"ls":        cmdLs,
	"cat":       cmdCat,
	"put":       cmdPut,
	"rm":        cmdRm,
	"mkdir":     cmdMkdir,
	"df":        cmdDf,
	"snapshot":  cmdSnapshot,
	"snapshots": cmdSnapshots,
	"restore":   cmdRestore,
	"mount":     cmdMount,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func usage(stdout, stderr io.Writer, code int) int {
	fmt.Fprintln(stderr, usageMessage)
	if code == exitCodes["usage"] {
		fmt.Fprint(stdout, extendedMessage)
	} else {
		fmt.Fprintln(stderr, "Try -h or --help for help")
	}
	return code
}

func run(ctx context.Context, argv []string, stdin io.Reader, stdout, stderr io.Writer) int {
	args, optargs, err := getopt.GetOpt(
		argv,
		"hc:i:v",
		[]string{"help", "config=", "image=", "verbose"},
	)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return usage(stdout, stderr, exitCodes["opts"])
	}

	configPath := ""
	imagePath := ""
	verbose := false
	for _, oa := range optargs {
		switch oa.Opt() {
		case "-h", "--help":
			return usage(stdout, stderr, exitCodes["usage"])
		case "-c", "--config":
			configPath = oa.Arg()
		case "-i", "--image":
			imagePath = oa.Arg()
		case "-v", "--verbose":
			verbose = true
		default:
			fmt.Fprintf(stderr, "Unknown flag '%v'\n", oa.Opt())
			return usage(stdout, stderr, exitCodes["opts"])
		}
	}

	if len(args) == 0 {
		fmt.Fprintln(stderr, "Must supply a command, try --help")
		return usage(stdout, stderr, exitCodes["opts"])
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command '%v'\n", args[0])
		return usage(stdout, stderr, exitCodes["opts"])
	}

	cfg := config.Default()
	if configPath != "" {
		if cfg, err = config.Load(configPath); err != nil {
			fmt.Fprintln(stderr, err)
			return exitCodes["config"]
		}
	}
	if imagePath != "" {
		cfg.Image.Path = imagePath
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(stderr, err)
		return exitCodes["config"]
	}

	e := &env{ctx: ctx, cfg: cfg, stdin: stdin, stdout: stdout, stderr: stderr}
	if err := cmd(e, args[1:]); err != nil {
		fmt.Fprintf(stderr, "flashio %s: %v\n", args[0], err)
		var ue usageError
		if errors.As(err, &ue) {
			return usage(stdout, stderr, exitCodes["opts"])
		}
		return exitCodes["failed"]
	}
	return exitCodes["usage"]
}

// usageError reports bad command arguments.
type usageError string

func (e usageError) Error() string { return string(e) }
