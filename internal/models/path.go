package models

// Path is a directed orthogonal edge from an output port to an input port.
type Path struct {
	ID        string
	CanvasID  string
	From      string
	FromPort  Port
	To        string
	ToPort    Port
	Waypoints []Point
}

// PathID derives the id of a path from its endpoints.
func PathID(from, to string) string {
	return from + "-" + to
}

// Endpoints identifies a path by its (from, from_port, to, to_port) tuple.
type Endpoints struct {
	From     string
	FromPort Port
	To       string
	ToPort   Port
}

// Endpoints returns the unique endpoint tuple of the path.
func (p *Path) Endpoints() Endpoints {
	return Endpoints{From: p.From, FromPort: p.FromPort, To: p.To, ToPort: p.ToPort}
}

// Clone returns a deep copy of the path.
func (p *Path) Clone() *Path {
	out := *p
	out.Waypoints = make([]Point, len(p.Waypoints))
	copy(out.Waypoints, p.Waypoints)
	return &out
}
