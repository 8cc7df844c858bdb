package main

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"

	"github.com/osmedit/tilesource/pkg/geo"
	"github.com/osmedit/tilesource/pkg/model"
)

func NewHttp(app *App) *fiber.App {
	f := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		EnablePrintRoutes:     false,
	})

	f.Use(logger.New(logger.Config{
		Format: "[${ip}]:${port} ${status} - ${method} ${path} ${queryParams}\n",
	}))

	f.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))

	f.Get("/layers", getLayersHandler(app))
	f.Get("/layers/:id", getLayerHandler(app))
	f.Get("/tiles/:id/:zoom/:x/:y", getTileHandler(app))

	return f
}

func layerInfo(s *model.TileSource) fiber.Map {
	name := s.Name()
	if s.Kind() == model.KindWMS {
		name += " [wms]"
	}
	m := fiber.Map{
		"id":       s.ID(),
		"name":     name,
		"type":     s.Kind(),
		"category": s.Category(),
		"overlay":  s.IsOverlay(),
		"default":  s.IsDefaultLayer(),
		"min_zoom": s.MinZoom(),
		"max_zoom": s.MaxZoom(),
		"url":      "/tiles/" + url.QueryEscape(s.ID()) + "/{z}/{x}/{y}",
	}
	if a := s.Attribution(); a != "" {
		m["attribution"] = a
	}
	if u := s.AttributionURL(); u != "" {
		m["attribution_url"] = u
	}
	return m
}

// parseBox parses "left,bottom,right,top" in WGS84 degrees.
func parseBox(s string) (*geo.BoundingBox, error) {
	if s == "" {
		return nil, nil
	}
	var left, bottom, right, top float64
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, ",", " "), "%f %f %f %f", &left, &bottom, &right, &top); err != nil {
		return nil, fmt.Errorf("invalid box %q", s)
	}
	box := geo.NewBoundingBox(left, bottom, right, top)
	return &box, nil
}

func getLayersHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		box, err := parseBox(c.Query("box"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).SendString(err.Error())
		}
		category := model.Category(c.Query("category"))
		tileType := model.TileType(c.Query("type"))
		filtered := c.QueryBool("filtered") || box != nil || category != "" || tileType != ""

		var sources []*model.TileSource
		if c.QueryBool("overlay") {
			sources = app.registry.OverlaySorted(box, filtered, category, tileType)
		} else {
			sources = app.registry.BackgroundSorted(box, filtered, category, tileType)
		}

		r := make([]fiber.Map, 0, len(sources))
		for _, s := range sources {
			r = append(r, layerInfo(s))
		}
		return c.JSON(r)
	}
}

func getLayerHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		id, _ := url.QueryUnescape(c.Params("id"))
		s := app.registry.Resolve(id)
		if s == nil {
			return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("layer %s is not found", id))
		}
		return c.JSON(layerInfo(s))
	}
}

func getTileHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		var err error
		var zoom, x, y int

		id, _ := url.QueryUnescape(c.Params("id"))

		if zoom, err = c.ParamsInt("zoom"); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid zoom value")
		}
		if x, err = c.ParamsInt("x"); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid x value")
		}
		if y, err = c.ParamsInt("y"); err != nil {
			return c.Status(fiber.StatusBadRequest).SendString("invalid y value")
		}

		s := app.registry.Resolve(id)
		if s == nil {
			return c.Status(fiber.StatusNotFound).SendString(fmt.Sprintf("layer %s is not found", id))
		}

		tileURL, err := s.BuildURL(x, y, zoom)
		if err != nil {
			app.logger.Error("url resolution failed", "layer", id, slog.Any("error", err))
			return c.Status(fiber.StatusServiceUnavailable).SendString(err.Error())
		}
		if tileURL == "" {
			return c.Status(fiber.StatusNotFound).SendString("layer has no tile url")
		}
		return c.Redirect(tileURL, fiber.StatusFound)
	}
}
