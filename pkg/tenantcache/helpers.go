package tenantcache

import (
	"context"
	"fmt"
)

// Domain helpers for the common invalidation flows. Each emits an event
// through the normal pipeline so the installed rules and warming tasks
// decide what actually happens.

// InvalidateHotelCache emits a data_change event covering all of a hotel's
// configuration keys, handled by the hotel_config_changes rule.
func (e *Engine) InvalidateHotelCache(hotelID int) error {
	event := NewCacheEvent("data_change", fmt.Sprintf("hotel:%d:config", hotelID))
	event.Pattern = fmt.Sprintf("hotel:%d:config*", hotelID)
	return e.EmitEvent(event)
}

// InvalidateUserCache emits a data_change event covering all of a user's
// profile keys, handled by the user_profile_changes rule.
func (e *Engine) InvalidateUserCache(userID int) error {
	event := NewCacheEvent("data_change", fmt.Sprintf("user:%d:profile", userID))
	event.Pattern = fmt.Sprintf("user:%d:profile*", userID)
	return e.EmitEvent(event)
}

// InvalidatePMSCache emits a credentials-rotation event tagged
// pms_credentials, handled by the pms_credentials_rotation rule.
func (e *Engine) InvalidatePMSCache(hotelID int) error {
	event := NewCacheEvent("data_change", fmt.Sprintf("hotel:%d:pms", hotelID))
	event.Tags = []string{"pms_credentials"}
	return e.EmitEvent(event)
}

// WarmCriticalData runs every warming task whose pattern matches the hotel's
// configuration key, waiting for completion.
func (e *Engine) WarmCriticalData(ctx context.Context, hotelID int) error {
	key := fmt.Sprintf("hotel:%d:config", hotelID)
	var lastErr error
	for _, task := range e.warmer.Tasks() {
		if !task.Enabled || !task.Matches(key) {
			continue
		}
		if err := e.warmer.WarmKey(ctx, task.KeyPattern, key); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
