package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"fintrack/internal/cli"
	"fintrack/internal/export"
	"fintrack/internal/log"
	"fintrack/internal/session"
)

func main() {
	var (
		email  = flag.String("email", "", "account email")
		format = flag.String("format", cli.FormatCSV, "csv, xlsx or sheets")
		out    = flag.String("out", "", "output file; defaults to a dated name, - for stdout")
	)
	flag.Parse()

	// Password comes from the environment so it stays out of shell history.
	password := os.Getenv("FINTRACK_PASSWORD")
	if *email == "" || password == "" {
		fmt.Fprintln(os.Stderr, "usage: FINTRACK_PASSWORD=... fintrack-export -email you@example.com [-format csv|xlsx|sheets] [-out file]")
		os.Exit(2)
	}

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg)

	ctx, stop := cli.SignalContext()
	defer stop()

	svc := cli.InitServices(ctx, logger, cfg)
	defer svc.Cleanup()

	opts := cli.ExportOptions{
		Email:    *email,
		Password: password,
		Format:   *format,
		Sheets:   svc.Sheets,
	}

	if *format == cli.FormatCSV || *format == cli.FormatXLSX {
		w, closeOut, err := openOutput(*out, *format)
		if err != nil {
			logger.Error("Failed to open output", log.FieldError, err)
			os.Exit(1)
		}
		defer closeOut()
		opts.Out = w
	}

	n, err := cli.Export(ctx, session.Deps{
		Identity: svc.Identity,
		Store:    svc.Store,
		Prefs:    svc.Prefs,
		Logger:   logger,
	}, opts)
	if err != nil {
		logger.Error("Export failed", log.FieldError, err, "format", *format)
		svc.Cleanup()
		os.Exit(1)
	}
	logger.Info("Export completed", log.FieldCount, n, "format", *format)
}

func openOutput(path, format string) (io.Writer, func(), error) {
	if path == "-" {
		return os.Stdout, func() {}, nil
	}
	if path == "" {
		path = export.FileName(format, time.Now())
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
