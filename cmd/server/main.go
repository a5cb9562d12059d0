package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/wa-session-gateway/internal/config"
	"github.com/jrsteele09/wa-session-gateway/internal/logging"
	"github.com/jrsteele09/wa-session-gateway/server"
	"github.com/jrsteele09/wa-session-gateway/waclient/whatsmeowclient"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const shutdownTimeout = 15 * time.Second

var rootCmd = &cobra.Command{
	Use:   "wa-session-gateway",
	Short: "Multi-tenant WhatsApp session gateway",
	Long: `Pairs one WhatsApp account per tenant by QR code, keeps the paired
credentials in a durable store and sends messages on the tenant's behalf.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (YAML, JSON or TOML)")
	rootCmd.Flags().StringP("port", "p", "", "port to listen on (overrides PORT)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("PORT", rootCmd.Flags().Lookup("port"))

	rootCmd.AddCommand(tokenCmd)
}

func initConfig() {
	if err := config.LoadFile(viper.GetViper(), viper.GetString("config")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config file: %v\n", err)
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// serve restarts the gateway after a recovered panic and returns on a clean stop
func serve() error {
	for {
		err := run()
		if err == nil {
			break
		}
		if !errors.Is(err, errPanicRecovered) {
			return err
		}
		log.Error().Err(err).Msg("restarting server")
		time.Sleep(1 * time.Second)
	}
	log.Info().Msg("Server stopped")
	return nil
}

var errPanicRecovered = errors.New("panic recovered")

// instance holds what one run has built so far
type instance struct {
	httpServer *http.Server
	gateway    *server.Gateway
}

func run() (returnError error) {
	inst := &instance{}
	defer recoverAndRelease(inst, &returnError)

	c := config.New(nil)
	logging.Setup(c.GetEnv(), c.GetLogLevel())
	displayAppname(c.GetAppName())

	gateway, err := server.Bootstrap(context.Background(), c, whatsmeowclient.NewFactory(c.GetClientDBName()))
	if err != nil {
		return err
	}
	inst.gateway = gateway

	inst.httpServer = &http.Server{
		Addr:              c.GetPort(),
		Handler:           server.New(c, gateway.Sessions, gateway.Dispatcher),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(inst.httpServer)
	}()

	select {
	case err := <-serveErr:
		returnError = err
	case <-waitForStopSignal():
	}

	if err := inst.shutdown(); err != nil && returnError == nil {
		returnError = err
	}
	return returnError
}

// recoverAndRelease turns a panic into errPanicRecovered after releasing the port and the
// live sessions, so the restarted run can bind again
func recoverAndRelease(inst *instance, returnError *error) {
	r := recover()
	if r == nil {
		return
	}
	log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
	if err := inst.shutdown(); err != nil {
		log.Error().Err(err).Msg("shutdown after panic")
	}
	*returnError = errPanicRecovered
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

// shutdown stops accepting requests, then lets in-flight credential uploads finish
// before every client is released
func (inst *instance) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if inst.httpServer != nil {
		if err := inst.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("server.Shutdown: %w", err)
		}
	}
	if inst.gateway != nil {
		if err := inst.gateway.Close(ctx); err != nil {
			return fmt.Errorf("gateway.Close: %w", err)
		}
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
