package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MarkoPoloResearchLab/formlab/internal/fixture"
)

const (
	serveCommandUseName          = "serve"
	serveCommandShortDescription = "Serve the demo page replicas"
	serveCommandLongDescription  = "Serve offline replicas of the checkbox, radio button and date picker demo pages until interrupted"
	flagNameAddress              = "addr"
	flagUsageAddress             = "address for the fixture server to listen on"
	environmentKeyAddress        = "FORMLAB_ADDR"
	unexpectedArgumentsMessage   = "unexpected command arguments"
)

func (application *FormlabApplication) serveCommand() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   serveCommandUseName,
		Short: serveCommandShortDescription,
		Long:  serveCommandLongDescription,
		RunE:  application.serveFixtures,
	}

	application.serveLoader.SetDefault(environmentKeyAddress, fixture.DefaultAddress)
	application.serveLoader.AutomaticEnv()
	command.Flags().String(flagNameAddress, fixture.DefaultAddress, flagUsageAddress)
	if bindErr := bindFlags(application.serveLoader, command.Flags(), []flagBinding{
		{flagName: flagNameAddress, environmentKey: environmentKeyAddress},
	}); bindErr != nil {
		return nil, bindErr
	}

	return command, nil
}

func (application *FormlabApplication) serveFixtures(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return fmt.Errorf("%s: %s", unexpectedArgumentsMessage, strings.Join(arguments, " "))
	}
	address := strings.TrimSpace(application.serveLoader.GetString(environmentKeyAddress))
	if address == "" {
		return fmt.Errorf("%s: %s", missingConfigurationMessage, flagNameAddress)
	}
	command.SilenceUsage = true

	logger, loggerErr := application.newLogger()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(command.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, startErr := fixture.Start(address, logger)
	if startErr != nil {
		return startErr
	}
	fmt.Fprintf(command.OutOrStdout(), fixtureServingFormat, server.URL())

	select {
	case <-ctx.Done():
	case serveErr := <-server.Done():
		return serveErr
	}

	shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownContext)
}
