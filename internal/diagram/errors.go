package diagram

import "errors"

var (
	// ErrInvalidParam marks a parameter or field the block type does not accept.
	ErrInvalidParam = errors.New("invalid_param")
	// ErrNameCollision marks two bindings sharing a name within one scope.
	ErrNameCollision = errors.New("name_collision")

	ErrNotFound     = errors.New("not found")
	ErrOffGrid      = errors.New("position is not grid aligned")
	ErrPort         = errors.New("invalid port")
	ErrPortInUse    = errors.New("output port already connected")
	ErrPathExists   = errors.New("path already exists")
	ErrBadWaypoints = errors.New("waypoints do not form an orthogonal grid polyline")
	ErrEmptyName    = errors.New("name must not be empty")
	ErrStartExists  = errors.New("canvas already has a Start block")
)
