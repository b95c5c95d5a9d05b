package http

import (
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/lib-syncore/syncore/eventstream"
	libLog "github.com/LerianStudio/lib-syncore/syncore/log"
)

const (
	commandsPath = "/commands"
	eventsPath   = "/events"
)

var (
	// ErrEventLogRequired is returned when NewWebAPI gets a nil log.
	ErrEventLogRequired = errors.New("http: event log is required")
	// ErrCommandHandlerRequired is returned for a command without a handler.
	ErrCommandHandlerRequired = errors.New("http: command handler is required")
	// ErrCommandNameInvalid is returned for empty names or names containing '/'.
	ErrCommandNameInvalid = errors.New("http: command name is invalid")
)

// CommandHandler executes a posted command and writes the response.
type CommandHandler func(c *fiber.Ctx, name string, body json.RawMessage) error

// WebAPIConfig holds the serving options.
type WebAPIConfig struct {
	// Protocol selects how the event index answers.
	Protocol eventstream.Protocol
	// HTTPSOnly rejects requests without X-Forwarded-Proto: https.
	HTTPSOnly bool
	// Debug exposes error messages in 500 responses.
	Debug bool
}

// DefaultWebAPIConfig returns the redirect protocol with HTTPS enforced.
func DefaultWebAPIConfig() WebAPIConfig {
	return WebAPIConfig{
		Protocol:  eventstream.ProtocolRedirect,
		HTTPSOnly: true,
	}
}

// WebAPIOption configures a WebAPI.
type WebAPIOption func(*WebAPI) error

func WithWebAPIConfig(cfg WebAPIConfig) WebAPIOption {
	return func(w *WebAPI) error {
		w.cfg = cfg

		return nil
	}
}

func WithWebAPILogger(logger libLog.Logger) WebAPIOption {
	return func(w *WebAPI) error {
		w.logger = libLog.OrNop(logger)

		return nil
	}
}

// WithCommand exposes name at POST /commands/{name}.
func WithCommand(name string, handler CommandHandler) WebAPIOption {
	return func(w *WebAPI) error {
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, "/?#") {
			return ErrCommandNameInvalid
		}

		if handler == nil {
			return ErrCommandHandlerRequired
		}

		w.commands[name] = handler

		return nil
	}
}

// WithAppCallback lets callers add routes or middleware before the feed
// routes are registered.
func WithAppCallback(fn func(app *fiber.App)) WebAPIOption {
	return func(w *WebAPI) error {
		if fn != nil {
			w.callbacks = append(w.callbacks, fn)
		}

		return nil
	}
}

// WebAPI serves commands and events over fiber.
type WebAPI struct {
	cfg       WebAPIConfig
	events    eventstream.Log
	commands  map[string]CommandHandler
	callbacks []func(app *fiber.App)
	logger    libLog.Logger

	commandRouter *Router[commandState]
	eventRouter   *Router[eventState]
}

type commandState struct {
	name    string
	handler CommandHandler
}

type eventState struct {
	index  bool
	length int64
	event  eventstream.StoredEvent
	found  bool
}

type eventBody struct {
	Type    string          `json:"type,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Next    string          `json:"next,omitempty"`
}

// NewWebAPI builds the routers; call App to obtain a servable application.
func NewWebAPI(events eventstream.Log, opts ...WebAPIOption) (*WebAPI, error) {
	if events == nil {
		return nil, ErrEventLogRequired
	}

	w := &WebAPI{
		cfg:      DefaultWebAPIConfig(),
		events:   events,
		commands: make(map[string]CommandHandler),
		logger:   libLog.NewNop(),
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		if err := opt(w); err != nil {
			return nil, err
		}
	}

	if w.cfg.Protocol.NoEventsStatus == 0 {
		w.cfg.Protocol = eventstream.ProtocolRedirect
	}

	w.commandRouter = NewRouter[commandState]().MustAddStrategies(w.commandStrategies()...)
	w.eventRouter = NewRouter[eventState]().MustAddStrategies(w.eventStrategies()...)

	return w, nil
}

// Commands lists the command endpoints in name order.
func (w *WebAPI) Commands() []string {
	paths := make([]string, 0, len(w.commands))
	for name := range w.commands {
		paths = append(paths, commandsPath+"/"+name)
	}

	sort.Strings(paths)

	return paths
}

// App assembles a fresh fiber application.
func (w *WebAPI) App() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(w.logger, w.cfg.Debug),
	})

	app.Use(WithRequestLogging(w.logger), NotCached, OnlyJSONOutput)

	if w.cfg.HTTPSOnly {
		app.Use(OnlyHTTPS)
	}

	for _, fn := range w.callbacks {
		fn(app)
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON([]string{commandsPath, eventsPath})
	})

	app.Get(commandsPath, func(c *fiber.Ctx) error {
		return c.JSON(w.Commands())
	})

	app.All(commandsPath+"/:name", func(c *fiber.Ctx) error {
		name := strings.Clone(c.Params("name"))

		return w.commandRouter.Execute(c, commandState{name: name, handler: w.commands[name]})
	})

	app.Get(eventsPath, w.serveEventIndex)
	app.Get(eventsPath+"/:id", w.serveEvent)

	app.Use(NotFound)

	return app
}

func (w *WebAPI) commandStrategies() []Strategy[commandState] {
	known := func(s commandState) bool { return s.handler != nil }
	isPost := func(c *fiber.Ctx) bool { return c.Method() == fiber.MethodPost }
	isJSON := func(c *fiber.Ctx) bool { return isJSONMediaType(c.Get(fiber.HeaderContentType)) }

	return []Strategy[commandState]{
		{
			Name:   "unknown-command",
			Filter: func(_ *fiber.Ctx, s commandState) bool { return !known(s) },
			Logic:  func(c *fiber.Ctx, _ commandState) error { return NotFound(c) },
		},
		{
			Name:   "method-not-allowed",
			Filter: func(c *fiber.Ctx, s commandState) bool { return known(s) && !isPost(c) },
			Logic: func(c *fiber.Ctx, _ commandState) error {
				c.Set(fiber.HeaderAllow, allowJSON)
				c.Status(fiber.StatusMethodNotAllowed)

				return nil
			},
		},
		{
			Name:   "not-json",
			Filter: func(c *fiber.Ctx, s commandState) bool { return known(s) && isPost(c) && !isJSON(c) },
			Logic: func(c *fiber.Ctx, _ commandState) error {
				c.Set(fiber.HeaderAllow, allowJSON)
				c.Status(fiber.StatusNotAcceptable)

				return nil
			},
		},
		{
			Name:   "execute-command",
			Filter: func(c *fiber.Ctx, s commandState) bool { return known(s) && isPost(c) && isJSON(c) },
			Logic:  w.executeCommand,
		},
	}
}

func (w *WebAPI) executeCommand(c *fiber.Ctx, s commandState) error {
	body := json.RawMessage(`{}`)
	if len(strings.TrimSpace(string(c.Body()))) > 0 {
		if err := DecodeJSON(c, &body); err != nil {
			return WriteError(c, fiber.StatusBadRequest, ErrInvalidJSON.Error())
		}
	}

	return s.handler(c, s.name, body)
}

func (w *WebAPI) eventStrategies() []Strategy[eventState] {
	protocol := w.cfg.Protocol

	return []Strategy[eventState]{
		{
			Name:   "no-events-yet",
			Filter: func(_ *fiber.Ctx, s eventState) bool { return s.index && s.length == 0 },
			Logic: func(c *fiber.Ctx, _ eventState) error {
				if protocol.NoEventsStatus == fiber.StatusNoContent {
					c.Status(fiber.StatusNoContent)

					return nil
				}

				return WriteError(c, protocol.NoEventsStatus, "No events exist")
			},
		},
		{
			Name: "first-event-redirect",
			Filter: func(_ *fiber.Ctx, s eventState) bool {
				return s.index && s.length > 0 && protocol.PointerStatus != 0
			},
			Logic: func(c *fiber.Ctx, _ eventState) error {
				c.Set(fiber.HeaderLocation, eventPath(0))
				c.Status(protocol.PointerStatus)

				return nil
			},
		},
		{
			Name: "first-event-placeholder",
			Filter: func(_ *fiber.Ctx, s eventState) bool {
				return s.index && s.length > 0 && protocol.PointerStatus == 0
			},
			Logic: func(c *fiber.Ctx, _ eventState) error {
				return c.JSON(eventBody{Next: eventPath(0)})
			},
		},
		{
			Name:   "missing-event",
			Filter: func(_ *fiber.Ctx, s eventState) bool { return !s.index && !s.found },
			Logic:  func(c *fiber.Ctx, _ eventState) error { return NotFound(c) },
		},
		{
			Name:   "linked-event",
			Filter: func(_ *fiber.Ctx, s eventState) bool { return !s.index && s.found && s.event.ID+1 < s.length },
			Logic: func(c *fiber.Ctx, s eventState) error {
				c.Set(fiber.HeaderCacheControl, cacheForever)

				return c.JSON(eventBody{Type: s.event.Type, Message: s.event.Message, Next: eventPath(s.event.ID + 1)})
			},
		},
		{
			Name:   "head-event",
			Filter: func(_ *fiber.Ctx, s eventState) bool { return !s.index && s.found && s.event.ID+1 >= s.length },
			Logic: func(c *fiber.Ctx, s eventState) error {
				return c.JSON(eventBody{Type: s.event.Type, Message: s.event.Message})
			},
		},
	}
}

func (w *WebAPI) serveEventIndex(c *fiber.Ctx) error {
	length, err := w.events.Len(c.UserContext())
	if err != nil {
		return err
	}

	return w.eventRouter.Execute(c, eventState{index: true, length: length})
}

func (w *WebAPI) serveEvent(c *fiber.Ctx) error {
	state := eventState{}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err == nil {
		state.event, state.found, err = w.events.Get(c.UserContext(), id)
		if err != nil {
			return err
		}
	}

	if state.found {
		if state.length, err = w.events.Len(c.UserContext()); err != nil {
			return err
		}
	}

	return w.eventRouter.Execute(c, state)
}

func eventPath(id int64) string {
	return eventsPath + "/" + strconv.FormatInt(id, 10)
}
