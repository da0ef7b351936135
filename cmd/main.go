package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/howeyc/gopass"
	"github.com/pkg/errors"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	t128 "github.com/128technology/pca-importer/client"
	"github.com/128technology/pca-importer/config"
	"github.com/128technology/pca-importer/extractor"
	"github.com/128technology/pca-importer/logger"
)

var build = "development"

// Exit statuses.
const (
	exitOK = iota
	exitFailure
	exitAuthFailure
	exitMalformedConfig
)

var (
	app = kingpin.New("pca-importer", "An application for extracting aggregated PCA metrics for a list of monitored objects")

	initCommand = app.Command("init", "Initialize the app by outputting a settings file.")

	extractCommand = app.Command("extract", "Authenticate once and extract the metrics of every configured monitored object")
	configFile     = extractCommand.Flag("config", "The configuration filename.").Required().String()

	tokenCommand  = app.Command("get-token", "Gets the bearer token for login.")
	tokenURL      = tokenCommand.Arg("url", "The URL to retrieve a token for.").Required().String()
	tokenInsecure = tokenCommand.Flag("insecure", "Skip TLS certificate verification.").Bool()
)

type extractCmd struct {
	config *config.Config
	stdout io.Writer
}

func loadExtractCmd() (*extractCmd, error) {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return nil, err
	}

	if err := logger.Log.SetLevel(cfg.Application.LogLevel); err != nil {
		return nil, errors.Wrap(config.ErrMalformedConfig, err.Error())
	}

	return &extractCmd{config: cfg, stdout: os.Stdout}, nil
}

func (e *extractCmd) writer() extractor.Writer {
	if e.config.Application.Output == config.OutputLineProtocol {
		return extractor.NewLineProtocolWriter(e.stdout)
	}
	return extractor.NewJSONWriter(e.stdout)
}

func (e *extractCmd) run(ctx context.Context) error {
	cfg := e.config

	registry, err := t128.DefaultRegistry(cfg.Metrics.Granularity, t128.Aggregation(cfg.Metrics.Aggregation))
	if err != nil {
		return errors.Wrap(config.ErrMalformedConfig, err.Error())
	}

	credential := cfg.Auth.Credential()
	if credential.Password == "" {
		if credential.Password, err = promptPassword(); err != nil {
			return err
		}
	}

	logger.Log.Info("Interval %v, %v monitored objects", cfg.Metrics.Interval, len(cfg.Objects))

	httpClient := t128.NewHTTPClient(cfg.Auth.RequestTimeout(), cfg.Auth.InsecureSkipVerify)
	token, err := t128.GetToken(ctx, httpClient, cfg.Auth.URL, credential)
	if err != nil {
		return err
	}

	client := t128.CreateClient(cfg.Auth.URL, token, httpClient, t128.WithObjectScope(cfg.Metrics.ScopeToObject))
	var writeErr error
	ext := extractor.New(client, registry, cfg.Metrics.Interval,
		extractor.WithConcurrency(cfg.Application.MaxConcurrentObjects),
		extractor.WithHandler(extractor.WriteTo(e.writer(), &writeErr)))

	results := ext.Run(ctx, cfg.Objects)
	if writeErr != nil {
		return errors.Wrap(writeErr, "writing results")
	}

	summary := extractor.Summarize(results)
	logger.Log.Info("Extracted %v objects: %v succeeded, %v failed, %v skipped",
		len(results), summary.Succeeded, summary.Failed, summary.Skipped)
	return nil
}

func promptPassword() (string, error) {
	fmt.Fprintf(os.Stderr, "Password: ")
	pass, err := gopass.GetPasswd()
	if err != nil {
		return "", errors.Wrap(err, "reading password")
	}
	return string(pass), nil
}

func getToken(ctx context.Context) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Fprintf(os.Stderr, "Username: ")
	user, err := reader.ReadString('\n')
	if err != nil {
		return err
	}

	pass, err := promptPassword()
	if err != nil {
		return err
	}

	fmt.Fprintln(os.Stderr, "Retrieving token...")
	httpClient := t128.NewHTTPClient(t128.DefaultTimeout, *tokenInsecure)
	token, err := t128.GetToken(ctx, httpClient, *tokenURL, t128.Credential{
		Username: strings.TrimSpace(user),
		Password: pass,
	})
	if err != nil {
		return err
	}

	fmt.Printf("%v\n", token)
	return nil
}

func exitStatus(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, t128.ErrAuthentication):
		return exitAuthFailure
	case errors.Is(err, config.ErrMalformedConfig):
		return exitMalformedConfig
	default:
		return exitFailure
	}
}

func main() {
	app.Version(build)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch kingpin.MustParse(app.Parse(os.Args[1:])) {
	case initCommand.FullCommand():
		config.PrintConfig(t128.Metrics)
	case tokenCommand.FullCommand():
		err = getToken(ctx)
	case extractCommand.FullCommand():
		var cmd *extractCmd
		if cmd, err = loadExtractCmd(); err == nil {
			err = cmd.run(ctx)
		}
	}

	if err != nil {
		logger.Log.Error("%v", err.Error())
		stop()
		os.Exit(exitStatus(err))
	}
}
