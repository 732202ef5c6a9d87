// Command ehttpd is an example host program for the ehttp library: it
// loads a Config (flags or a YAML file), builds a route table wired to a
// static file responder and a demo WebSocket echo route, and ticks the
// scheduler in a fixed-interval loop. The host, not the library, decides
// the inter-tick cadence.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/kamocat/ehttp"
	"github.com/kamocat/ehttp/metrics"
	"github.com/kamocat/ehttp/route"
	"github.com/kamocat/ehttp/step"
	"github.com/kamocat/ehttp/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string
	var listenAddr string
	var staticRoot string

	root := &cobra.Command{
		Use:   "ehttpd",
		Short: "Run an ehttp server",
	}
	addCommonFlags(root.PersistentFlags(), &configFile, &listenAddr, &staticRoot)

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Tick the scheduler until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configFile, listenAddr, staticRoot)
		},
	}
	root.AddCommand(serve)
	return root
}

// addCommonFlags registers the root command's flags directly on a
// *pflag.FlagSet so any future subcommand can share the set.
func addCommonFlags(flags *pflag.FlagSet, configFile, listenAddr, staticRoot *string) {
	flags.StringVar(configFile, "config", "", "path to a YAML config file")
	flags.StringVar(listenAddr, "listen", "", "override the listen address")
	flags.StringVar(staticRoot, "static", "", "directory to serve as /static/")
}

func runServe(configFile, listenAddr, staticRoot string) error {
	cfg := ehttp.DefaultConfig()
	if configFile != "" {
		loaded, err := ehttp.LoadConfigFile(configFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if staticRoot != "" {
		cfg.StaticRoot = staticRoot
	}

	logger, err := ehttp.NewProductionLogger()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	rec := metrics.NewRecorder(prometheus.DefaultRegisterer)

	table := route.NewTable()
	if err := registerRoutes(table, cfg); err != nil {
		return fmt.Errorf("registering routes: %w", err)
	}

	srv := ehttp.NewServer(cfg, table, logger, rec)
	if err := srv.Listen(); err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.ListenAddr, err)
	}
	logger.Info("listening", zap.String("addr", srv.Addr()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	runErr := srv.Run(ctx, 2*time.Millisecond)
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := srv.Stop(stopCtx); err != nil {
		logger.Warn("stop did not drain cleanly", zap.Error(err))
	}
	if runErr != nil && runErr != context.Canceled {
		return runErr
	}
	return nil
}

func registerRoutes(table *route.Table, cfg ehttp.Config) error {
	if cfg.StaticRoot != "" {
		fsys := ehttp.NewFileSystem(os.DirFS(cfg.StaticRoot))
		static := ehttp.NewStaticFileHandler(fsys, 0, guessContentType)
		var h ehttp.Handler = func(req *ehttp.Request) (*ehttp.Response, step.Producer[[]byte], error) {
			// Look up the part of the path after /static/ under StaticRoot.
			inner := *req
			inner.Path = "/" + req.PathParams[0]
			return static.Handle(&inner)
		}
		if err := table.Add(route.GET, "^/static/(.*)$", h); err != nil {
			return err
		}
	}

	var echo ehttp.Handler = func(req *ehttp.Request) (*ehttp.Response, step.Producer[[]byte], error) {
		return ehttp.NewResponse(ehttp.StatusOK, []byte("hi")), nil, nil
	}
	if err := table.Add(route.GET, "^/hello$", echo); err != nil {
		return err
	}

	var wsEcho ehttp.WSHandler = func(req *ehttp.Request, conn *ws.Conn) step.Producer[struct{}] {
		return &echoSession{conn: conn}
	}
	return table.Add(route.WEBSOCKET, "^/ws$", wsEcho)
}

// guessContentType maps a handful of well-known extensions to a
// Content-Type value. The static responder never guesses a type itself;
// it takes one from its caller, and this is that caller.
func guessContentType(path string) string {
	switch strings.ToLower(filepath.Ext(strings.TrimSuffix(path, ".gz"))) {
	case ".html":
		return "text/html; charset=utf-8"
	case ".css":
		return "text/css; charset=utf-8"
	case ".js":
		return "application/javascript"
	case ".json":
		return "application/json"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return ""
	}
}

// echoSession drives a WebSocket connection that echoes every inbound
// text message back prefixed with "Echo: ", the same exchange the
// connection coroutine's WebSocket upgrade test drives.
type echoSession struct {
	conn    *ws.Conn
	reading step.Producer[ws.Message]
	writing step.Producer[struct{}]
}

func (e *echoSession) Poll() step.Result[struct{}] {
	if e.writing != nil {
		r := e.writing.Poll()
		switch r.Status {
		case step.Suspend, step.Progress:
			return step.Result[struct{}]{Status: step.Progress}
		case step.Failed:
			return step.Err[struct{}](r.Err)
		}
		e.writing = nil
		return step.Result[struct{}]{Status: step.Progress}
	}

	if e.reading == nil {
		e.reading = e.conn.ReadMessage(0)
	}
	r := e.reading.Poll()
	switch r.Status {
	case step.Suspend:
		return step.Suspended[struct{}]()
	case step.Progress:
		return step.Result[struct{}]{Status: step.Progress}
	case step.Failed:
		return step.Err[struct{}](r.Err)
	}
	e.reading = nil
	e.writing = e.conn.WriteMessage(ws.OpText, append([]byte("Echo: "), r.Value.Data...))
	return step.Result[struct{}]{Status: step.Progress}
}
