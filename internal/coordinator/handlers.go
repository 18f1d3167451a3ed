package coordinator

import (
	"context"
	"fmt"

	"sbzdeck/internal/gateway"
	"sbzdeck/internal/profile"
	"sbzdeck/internal/settings"
	"sbzdeck/internal/shadowstate"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// handle applies one event to the state and returns the effects to deliver
// and whether persisted state changed.
func (c *Coordinator) handle(ctx context.Context, ev Event) ([]Effect, bool) {
	switch e := ev.(type) {
	case ButtonAppeared:
		return c.handleButtonAppeared(e), false
	case ButtonDisappeared:
		delete(c.contexts, e.Context)
		return nil, false
	case ButtonPressed:
		return c.handleButtonPressed(ctx, e)
	case HardwareSelectorChanged:
		return c.handleSelectorChanged(e), false
	case HardwareParameterChanged:
		return nil, c.handleParameterChanged(e)
	case HardwareVolumeChanged:
		return nil, c.handleVolumeChanged(e)
	case SettingsLoaded:
		c.handleSettingsLoaded(e)
		return nil, false
	case FeatureQuery:
		return c.handleFeatureQuery(ctx, e), false
	case FeatureSelectionChanged:
		return nil, c.handleSelectionChanged(ctx, e)
	default:
		c.logger.Warn("Ignoring unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
		return nil, false
	}
}

func (c *Coordinator) handleButtonAppeared(e ButtonAppeared) []Effect {
	c.contexts[e.Context] = struct{}{}
	if c.currentOutput == nil {
		return nil
	}
	code := uint8(c.currentOutput.Code())
	if code == e.State {
		return nil
	}
	c.logger.Debug("Correcting button state",
		zap.String("context", e.Context),
		zap.Uint8("shown", e.State),
		zap.Uint8("actual", code))
	return []Effect{SetButtonState{Context: e.Context, State: code}}
}

// desiredOutput resolves the press target. An explicit desired state wins;
// otherwise the shown state is toggled, with an absent state read as 0.
func desiredOutput(e ButtonPressed) (profile.Output, bool) {
	if e.DesiredState != nil {
		return profile.OutputFromCode(int64(*e.DesiredState))
	}
	var state uint8
	if e.State != nil {
		state = *e.State
	}
	return profile.OutputFromCode(int64((state + 1) % 2))
}

func (c *Coordinator) handleButtonPressed(ctx context.Context, e ButtonPressed) ([]Effect, bool) {
	pressID := uuid.NewString()
	logger := c.logger.With(zap.String("context", e.Context), zap.String("press_id", pressID))

	desired, ok := desiredOutput(e)
	if !ok {
		logger.Warn("Button requested an unknown output", zap.Uint8p("desired_state", e.DesiredState))
		c.tracker.RecordAction(shadowstate.ActionSwitchFailed, "unknown desired state", map[string]any{
			"context":  e.Context,
			"press_id": pressID,
		})
		return []Effect{FlashFailure{Context: e.Context}}, false
	}

	start := c.clock.Now()
	dirty := false

	snap, err := c.snapshot(ctx)
	switch {
	case err != nil:
		logger.Warn("Could not read device state before switching, skipping capture", zap.Error(err))
	default:
		live, known := snap.Output()
		if !known {
			logger.Warn("Device output not recognized, skipping capture")
			break
		}
		if live == desired {
			logger.Info("Device already on requested output", zap.String("output", live.String()))
			c.setCurrentOutput(&live)
			c.tracker.RecordAction(shadowstate.ActionSwitchSkipped, "already on requested output", map[string]any{
				"context":  e.Context,
				"press_id": pressID,
				"output":   live.String(),
			})
			return nil, false
		}
		c.store.Set(live, snap.Profile())
		dirty = true
		logger.Debug("Captured device state", zap.String("output", live.String()))
	}

	previous := c.currentOutput
	req := gateway.BuildApplyRequest(desired, c.store.Get(desired), c.store.Selection())
	err = c.apply(ctx, req)
	c.recorder.SwitchCompleted(previous, desired, err, c.clock.Since(start))

	if err != nil {
		logger.Error("Failed to switch output",
			zap.String("output", desired.String()),
			zap.Error(err))
		c.tracker.RecordAction(shadowstate.ActionSwitchFailed, err.Error(), map[string]any{
			"context":  e.Context,
			"press_id": pressID,
			"output":   desired.String(),
		})
		return []Effect{FlashFailure{Context: e.Context}}, dirty
	}

	c.setCurrentOutput(&desired)
	logger.Info("Switched output", zap.String("output", desired.String()))
	c.tracker.RecordAction(shadowstate.ActionSwitch, "button pressed", map[string]any{
		"context":    e.Context,
		"press_id":   pressID,
		"output":     desired.String(),
		"parameters": len(req.Features),
	})
	return []Effect{FlashSuccess{Context: e.Context}}, dirty
}

func (c *Coordinator) handleSelectorChanged(e HardwareSelectorChanged) []Effect {
	out, ok := profile.OutputFromValue(e.Value)
	if !ok {
		c.logger.Warn("Unrecognized output selector value", zap.Stringer("value", e.Value))
		c.setCurrentOutput(nil)
		c.tracker.RecordAction(shadowstate.ActionSelectorUnknown, "selector changed on device", map[string]any{
			"value": e.Value.String(),
		})
		return nil
	}

	c.setCurrentOutput(&out)
	c.logger.Info("Output changed on device", zap.String("output", out.String()))
	c.tracker.RecordAction(shadowstate.ActionSelectorChanged, "selector changed on device", map[string]any{
		"output": out.String(),
	})

	contexts := c.sortedContexts()
	effects := make([]Effect, 0, len(contexts))
	for _, id := range contexts {
		effects = append(effects, SetButtonState{Context: id, State: uint8(out.Code())})
	}
	return effects
}

func (c *Coordinator) handleParameterChanged(e HardwareParameterChanged) bool {
	c.tracker.UpdateCurrentInputs(map[string]any{
		e.Feature + "/" + e.Parameter: e.Value.Interface(),
	})
	if c.currentOutput == nil {
		c.logger.Debug("Dropping parameter change, output unknown",
			zap.String("feature", e.Feature),
			zap.String("parameter", e.Parameter))
		return false
	}
	c.store.MergeObserved(*c.currentOutput, e.Feature, e.Parameter, e.Value)
	c.logger.Debug("Recorded parameter change",
		zap.String("output", c.currentOutput.String()),
		zap.String("feature", e.Feature),
		zap.String("parameter", e.Parameter),
		zap.Stringer("value", e.Value))
	return true
}

func (c *Coordinator) handleVolumeChanged(e HardwareVolumeChanged) bool {
	if e.Muted {
		return false
	}
	c.tracker.UpdateCurrentInputs(map[string]any{"volume": e.Volume})
	if c.currentOutput == nil {
		return false
	}
	c.store.SetVolume(*c.currentOutput, e.Volume)
	c.recorder.VolumeObserved(*c.currentOutput, e.Volume)
	return true
}

func (c *Coordinator) handleSettingsLoaded(e SettingsLoaded) {
	if settings.IsBlank(e.Raw) {
		c.logger.Info("No stored settings, keeping current ones", zap.String("source", e.Source))
		return
	}
	decoded, dropped, err := settings.Decode(e.Raw)
	if err != nil {
		c.logger.Error("Ignoring unreadable settings", zap.String("source", e.Source), zap.Error(err))
		c.tracker.RecordAction(shadowstate.ActionSettingsRejected, err.Error(), map[string]any{
			"source": e.Source,
		})
		return
	}
	if len(dropped) > 0 {
		c.logger.Warn("Dropped unsupported settings entries",
			zap.String("source", e.Source),
			zap.Strings("paths", dropped))
	}
	c.store.Replace(decoded)
	c.logger.Info("Settings loaded", zap.String("source", e.Source))
	c.tracker.RecordAction(shadowstate.ActionSettingsLoaded, "settings received", map[string]any{
		"source":  e.Source,
		"dropped": len(dropped),
	})
}

func (c *Coordinator) handleFeatureQuery(ctx context.Context, e FeatureQuery) []Effect {
	listing := make(FeatureListing)
	snap, err := c.snapshot(ctx)
	if err != nil {
		c.logger.Warn("Could not read device features", zap.Error(err))
	} else {
		selection := c.store.Selection()
		for feature, params := range snap.Features {
			entry := make(map[string]bool, len(params))
			for name := range params {
				entry[name] = selection.Contains(feature, name)
			}
			listing[feature] = entry
		}
	}
	return []Effect{SendFeatures{Action: e.Action, Context: e.Context, Listing: listing}}
}

func (c *Coordinator) handleSelectionChanged(ctx context.Context, e FeatureSelectionChanged) bool {
	snap, err := c.snapshot(ctx)
	if err != nil {
		c.logger.Warn("Could not read device features, keeping selection", zap.Error(err))
		return false
	}
	selection := profile.NewSelection(e.Selection).Intersect(snap.Features)
	if !c.store.SetSelection(selection) {
		return false
	}
	c.logger.Info("Selection changed", zap.Any("selection", selection.Lists()))
	c.tracker.RecordAction(shadowstate.ActionSelectionChanged, "inspector update", map[string]any{
		"context": e.Context,
	})
	return true
}
