// Command netcored is an illustrative host binary wiring server.List over
// one or more listen endpoints. It is scaffolding, not part of the core
// library surface: any real deployment is expected to write its own main
// with its own Context implementation, substituting this one wholesale.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/netcore-go/netcore/endpoint"
	"github.com/netcore-go/netcore/internal/logadapt"
	"github.com/netcore-go/netcore/reactor"
	"github.com/netcore-go/netcore/server"
	"github.com/netcore-go/netcore/socket"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "netcored",
		Short: "illustrative netcore-go host binary",
	}
	root.AddCommand(newStartCommand())
	return root
}

func newStartCommand() *cobra.Command {
	var (
		logLevel string
		listen   []string
		drain    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "bind and run an echo server on each --listen endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(listen) == 0 {
				return fmt.Errorf("at least one --listen is required")
			}

			level, err := zerolog.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
			}
			zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
				Level(level).
				With().Timestamp().Logger()
			logger := logadapt.NewZerolog(zl)

			endpoints := make([]endpoint.Endpoint, 0, len(listen))
			for _, s := range listen {
				ep, perr := endpoint.Parse(s)
				if perr != nil {
					return fmt.Errorf("parsing --listen %q: %w", s, perr)
				}
				endpoints = append(endpoints, ep)
			}

			rt, err := reactor.New(reactor.WithLogger(logger))
			if err != nil {
				return fmt.Errorf("creating runtime: %w", err)
			}
			defer rt.Close()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			var runErr error
			err = rt.Run(func(rt *reactor.Runtime) {
				list := server.NewList(rt, endpoints, func(ep endpoint.Endpoint) server.Context {
					return &echoContext{ep: ep, logger: logger}
				}, func(ep endpoint.Endpoint, bindErr error) {
					logger.Error().Str("endpoint", ep.String()).Err(bindErr).Log("failed to bind listener")
				})
				if list.Len() == 0 {
					runErr = fmt.Errorf("no endpoint bound successfully")
					rt.Stop()
					return
				}

				go func() {
					<-sigCh
					rt.Shutdown(drain)
				}()

				if joinErr := list.Join(); joinErr != nil {
					runErr = joinErr
				}
				if closeErr := list.Close(); closeErr != nil && runErr == nil {
					runErr = closeErr
				}
			})
			if err != nil {
				return err
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().StringArrayVar(&listen, "listen", nil, "endpoint to listen on (repeatable); a Unix path, or host:port")
	cmd.Flags().DurationVar(&drain, "drain-timeout", 30*time.Second, "maximum time to wait for in-flight connections on shutdown")

	return cmd
}

// echoContext is the illustrative default handler: it echoes back whatever
// a client sends, one read at a time, until the client closes or errors.
type echoContext struct {
	ep     endpoint.Endpoint
	logger logadapt.Logger
}

func (c *echoContext) Connection(rt *reactor.Runtime, client *socket.Socket) {
	buf := make([]byte, 4096)
	for {
		n, err := client.Read(buf)
		if err != nil || n == 0 {
			return
		}
		if _, err := client.Write(buf[:n]); err != nil {
			return
		}
	}
}

func (c *echoContext) Listen(addr endpoint.ResolvedAddr) {
	c.logger.Info().Str("endpoint", c.ep.String()).Log("listening")
}

func (c *echoContext) Shutdown() {
	c.logger.Info().Str("endpoint", c.ep.String()).Log("draining")
}
