package handler

import (
	"context"

	"beaconattend/internal/apperr"
	"beaconattend/internal/attendance"
	"beaconattend/internal/geo"
)

// fix validates a client supplied location. A missing timestamp means the
// fix was taken now. A nil loc yields a nil coordinate and no error.
func (h *Handler) fix(loc *geo.Coordinate) (*geo.Coordinate, error) {
	if loc == nil {
		return nil, nil
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return nil, apperr.Clone(apperr.ErrLocationUnavailable, "location out of range")
	}
	out := *loc
	now := h.now()
	if out.Timestamp == 0 {
		out.Timestamp = now.UnixMilli()
	}
	if out.Age(now) > h.fixMaxAge {
		return nil, apperr.Clone(apperr.ErrLocationUnavailable, "location fix is too old, retry")
	}
	return &out, nil
}

// requireFix is fix for operations that cannot proceed without a location.
func (h *Handler) requireFix(loc *geo.Coordinate) (geo.Coordinate, error) {
	fix, err := h.fix(loc)
	if err != nil {
		return geo.Coordinate{}, err
	}
	if fix == nil {
		return geo.Coordinate{}, apperr.Clone(apperr.ErrLocationUnavailable, "location access required")
	}
	return *fix, nil
}

// locator turns the fix carried by a request into an attendance.Locator. The
// fix is validated when the gate asks for it.
func (h *Handler) locator(loc *geo.Coordinate) attendance.Locator {
	return attendance.LocatorFunc(func(ctx context.Context) (geo.Coordinate, error) {
		return h.requireFix(loc)
	})
}
