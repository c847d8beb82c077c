// ledgerd runs the ledger service: an in-memory event-sourced account store
// served over TCP.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ledgerd/ledgerd/core"
	"github.com/ledgerd/ledgerd/server"
)

var (
	addrFlag = &cli.StringFlag{
		Name:  "addr",
		Usage: "TCP listen address",
		Value: ":9092",
	}
	maxSessionsFlag = &cli.Int64Flag{
		Name:  "max-sessions",
		Usage: "maximum number of concurrent client sessions",
		Value: 64,
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "write logs to this file (rotated) instead of stderr",
	}
	verbosityFlag = &cli.StringFlag{
		Name:  "verbosity",
		Usage: "log level (debug, info, warn, error)",
		Value: "info",
	}
)

func main() {
	app := &cli.App{
		Name:   "ledgerd",
		Usage:  "event-sourced ledger server",
		Flags:  []cli.Flag{addrFlag, maxSessionsFlag, logFileFlag, verbosityFlag},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	logger, err := buildLogger(ctx.String(verbosityFlag.Name), ctx.String(logFileFlag.Name))
	if err != nil {
		return err
	}
	defer logger.Sync()

	ledger := core.New(logger.Named("ledger"))
	srv := server.New(ledger, server.Config{
		Addr:        ctx.String(addrFlag.Name),
		MaxSessions: ctx.Int64(maxSessionsFlag.Name),
		Logger:      logger.Named("server"),
	})
	if err := srv.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	logger.Info("shutting down", zap.Stringer("signal", s))
	srv.Stop()
	return nil
}

func buildLogger(verbosity, file string) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(verbosity)); err != nil {
		return nil, fmt.Errorf("invalid verbosity %q: %v", verbosity, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var sink zapcore.WriteSyncer
	if file != "" {
		sink = zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    100, // megabytes
			MaxBackups: 10,
			MaxAge:     28, // days
		})
	} else {
		sink = zapcore.Lock(os.Stderr)
	}
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), sink, level)), nil
}
