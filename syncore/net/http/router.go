package http

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/LerianStudio/lib-syncore/syncore/dispatch"
)

var (
	// ErrRouting wraps failures to select a single strategy.
	ErrRouting = errors.New("http: routing failed")
	// ErrInvalidJSON is returned by DecodeJSON for malformed bodies.
	ErrInvalidJSON = errors.New("only 'Content-Type: application/json' is accepted; supplied JSON is invalid")
)

// Strategy handles the requests its filter accepts, given per-request state.
type Strategy[S any] struct {
	Name   string
	Filter func(c *fiber.Ctx, state S) bool
	Logic  func(c *fiber.Ctx, state S) error
}

type route[S any] struct {
	c     *fiber.Ctx
	state S
}

// Router selects exactly one Strategy per request.
type Router[S any] struct {
	table *dispatch.Table[route[S], error]
}

func NewRouter[S any]() *Router[S] {
	return &Router[S]{
		table: dispatch.NewTable[route[S], error](func(r route[S]) string {
			return r.c.Method() + " " + r.c.OriginalURL()
		}),
	}
}

// AddStrategy registers s. Names must be unique.
func (r *Router[S]) AddStrategy(s Strategy[S]) error {
	if s.Filter == nil || s.Logic == nil {
		return r.table.Register(dispatch.Rule[route[S], error]{Name: s.Name})
	}

	return r.table.Register(dispatch.Rule[route[S], error]{
		Name:   s.Name,
		Match:  func(in route[S]) bool { return s.Filter(in.c, in.state) },
		Action: func(in route[S]) error { return s.Logic(in.c, in.state) },
	})
}

// MustAddStrategies is AddStrategy for static routers.
func (r *Router[S]) MustAddStrategies(strategies ...Strategy[S]) *Router[S] {
	for _, s := range strategies {
		if err := r.AddStrategy(s); err != nil {
			panic(err)
		}
	}

	return r
}

// Execute runs the single strategy accepting c.
func (r *Router[S]) Execute(c *fiber.Ctx, state S) error {
	result, err := r.table.Dispatch(route[S]{c: c, state: state})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRouting, err)
	}

	return result
}

// DecodeJSON unmarshals the request body into v.
func DecodeJSON(c *fiber.Ctx, v any) error {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
	}

	return nil
}
