package routes

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/punk-blvck/blvck-hub/internal/controller"
	"github.com/punk-blvck/blvck-hub/internal/server"
	"github.com/punk-blvck/blvck-hub/internal/strategy"
	"github.com/punk-blvck/blvck-hub/internal/version"
)

// ProfileResolver 返回策略在当前配置下的最终画像，通常为 (*config.Config).StrategyProfile。
type ProfileResolver func(key string) (strategy.Profile, bool)

// RegisterDiagnostics 暴露 /-/controller、/-/version 与 /-/strategies 诊断接口。
func RegisterDiagnostics(app *fiber.App, reg *controller.Registration, profiles ProfileResolver) {
	if app == nil || reg == nil {
		return
	}

	app.Get("/-/controller", func(c fiber.Ctx) error {
		return c.JSON(reg.Status())
	})

	app.Post("/-/controller/skip-waiting", func(c fiber.Ctx) error {
		if err := reg.SkipWaiting(c.Context()); err != nil {
			if errors.Is(err, controller.ErrNoWaitingController) {
				return server.WriteError(c, fiber.StatusConflict, "no_waiting_controller")
			}
			return server.WriteError(c, fiber.StatusInternalServerError, "activate_failed")
		}
		return c.JSON(reg.Status())
	})

	app.Get("/-/version", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"version": version.Version,
			"commit":  version.Commit,
		}
		if active := reg.Active(); active != nil {
			payload["cache_version"] = active.Version()
		}
		return c.JSON(payload)
	})

	app.Get("/-/strategies", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"strategies": encodeStrategies(strategy.List(), profiles)})
	})

	app.Get("/-/strategies/:key", func(c fiber.Ctx) error {
		key := strings.ToLower(strings.TrimSpace(c.Params("key")))
		meta, ok := strategy.Resolve(key)
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "strategy_not_found",
				"known": strategy.Keys(),
			})
		}
		return c.JSON(encodeStrategy(meta, profiles))
	})
}

type strategyPayload struct {
	Key          string         `json:"key"`
	Description  string         `json:"description"`
	Destinations []string       `json:"destinations"`
	Profile      profilePayload `json:"profile"`
}

type profilePayload struct {
	NetworkFirst     bool  `json:"network_first"`
	TTLSeconds       int64 `json:"ttl_seconds"`
	StaleOnError     bool  `json:"stale_on_error"`
	FallbackToShell  bool  `json:"fallback_to_shell"`
	StampCaptureTime bool  `json:"stamp_capture_time"`
}

func encodeStrategies(metas []strategy.Metadata, profiles ProfileResolver) []strategyPayload {
	result := make([]strategyPayload, 0, len(metas))
	for _, meta := range metas {
		result = append(result, encodeStrategy(meta, profiles))
	}
	return result
}

func encodeStrategy(meta strategy.Metadata, profiles ProfileResolver) strategyPayload {
	profile := meta.Profile
	if profiles != nil {
		if resolved, ok := profiles(meta.Key); ok {
			profile = resolved
		}
	}
	return strategyPayload{
		Key:          meta.Key,
		Description:  meta.Description,
		Destinations: append([]string{}, meta.Destinations...),
		Profile: profilePayload{
			NetworkFirst:     profile.NetworkFirst,
			TTLSeconds:       int64(profile.TTL / time.Second),
			StaleOnError:     profile.StaleOnError,
			FallbackToShell:  profile.FallbackToShell,
			StampCaptureTime: profile.StampCaptureTime,
		},
	}
}
