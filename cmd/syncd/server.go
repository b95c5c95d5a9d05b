package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/lib-syncore/syncore/config"
	"github.com/LerianStudio/lib-syncore/syncore/eventstream"
	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
	httpapi "github.com/LerianStudio/lib-syncore/syncore/net/http"
)

const shutdownTimeout = 10 * time.Second

type server struct {
	app     *fiber.App
	address string
	logger  libLog.Logger
}

// newServer exposes every configured command as an endpoint that journals
// the posted body as an event of the same name.
func newServer(cfg *config.Config, stores *storage, logger libLog.Logger) (*server, error) {
	protocol, err := eventstream.ParseProtocol(cfg.Server.Protocol)
	if err != nil {
		return nil, err
	}

	opts := []httpapi.WebAPIOption{
		httpapi.WithWebAPILogger(logger),
		httpapi.WithWebAPIConfig(httpapi.WebAPIConfig{
			Protocol:  protocol,
			HTTPSOnly: cfg.Server.HTTPSOnly,
			Debug:     cfg.Server.Debug,
		}),
	}

	for _, name := range cfg.Server.Commands {
		opts = append(opts, httpapi.WithCommand(name, journal(stores.events)))
	}

	api, err := httpapi.NewWebAPI(stores.events, opts...)
	if err != nil {
		return nil, err
	}

	return &server{app: api.App(), address: cfg.Server.Address, logger: logger}, nil
}

func journal(events eventstream.Log) httpapi.CommandHandler {
	return func(c *fiber.Ctx, name string, body json.RawMessage) error {
		event, err := events.Append(c.UserContext(), name, body)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"id": event.ID})
	}
}

func (s *server) run(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
			s.logger.Log(context.Background(), libLog.LevelWarn, "web api shutdown", libLog.Err(err))
		}
	}()

	s.logger.Log(ctx, libLog.LevelInfo, "web api listening", libLog.String("address", s.address))

	return s.app.Listen(s.address)
}
