// internal/routegraph/graph.go
package routegraph

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"time"

	"supply-daddy-api-server/internal/models"
	"supply-daddy-api-server/internal/sentinel"
)

// DefaultTravelHours is returned by TravelHours for node pairs without an edge.
const DefaultTravelHours = 4.0

type Node struct {
	Code string  `json:"code" mapstructure:"code"`
	Name string  `json:"name" mapstructure:"name"`
	X    float64 `json:"x" mapstructure:"x"`
	Y    float64 `json:"y" mapstructure:"y"`
}

type Edge struct {
	From        string  `json:"source" mapstructure:"from"`
	To          string  `json:"target" mapstructure:"to"`
	TravelHours float64 `json:"travel_hours" mapstructure:"travelHours"`
}

type neighbor struct {
	code  string
	hours float64
}

// Graph is the static transit network. It is read-only after New and safe
// for concurrent use.
type Graph struct {
	nodes        []Node
	byCode       map[string]Node
	edges        []Edge
	adj          map[string][]neighbor
	defaultHours float64
}

// New validates nodes and edges and builds the adjacency index.
// defaultHours <= 0 falls back to DefaultTravelHours.
func New(nodes []Node, edges []Edge, defaultHours float64) (*Graph, error) {
	if defaultHours <= 0 {
		defaultHours = DefaultTravelHours
	}
	g := &Graph{
		byCode:       make(map[string]Node, len(nodes)),
		adj:          make(map[string][]neighbor, len(nodes)),
		defaultHours: defaultHours,
	}
	for _, n := range nodes {
		if n.Code == "" {
			return nil, fmt.Errorf("route graph: node with empty code: %w", sentinel.ErrValidation)
		}
		if _, dup := g.byCode[n.Code]; dup {
			return nil, fmt.Errorf("route graph: duplicate node %q: %w", n.Code, sentinel.ErrValidation)
		}
		g.byCode[n.Code] = n
		g.nodes = append(g.nodes, n)
		g.adj[n.Code] = nil
	}
	for _, e := range edges {
		if _, ok := g.byCode[e.From]; !ok {
			return nil, fmt.Errorf("route graph: edge from unknown node %q: %w", e.From, sentinel.ErrValidation)
		}
		if _, ok := g.byCode[e.To]; !ok {
			return nil, fmt.Errorf("route graph: edge to unknown node %q: %w", e.To, sentinel.ErrValidation)
		}
		if !(e.TravelHours > 0) {
			return nil, fmt.Errorf("route graph: edge %s-%s must have positive travel hours: %w", e.From, e.To, sentinel.ErrValidation)
		}
		g.edges = append(g.edges, e)
		g.adj[e.From] = append(g.adj[e.From], neighbor{code: e.To, hours: e.TravelHours})
		g.adj[e.To] = append(g.adj[e.To], neighbor{code: e.From, hours: e.TravelHours})
	}
	return g, nil
}

// MustDefault returns the built-in network and panics if it is malformed.
func MustDefault() *Graph {
	g, err := New(DefaultNodes(), DefaultEdges(), DefaultTravelHours)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

func (g *Graph) Node(code string) (Node, bool) {
	n, ok := g.byCode[code]
	return n, ok
}

// DefaultHours is the travel time used for pairs without an edge.
func (g *Graph) DefaultHours() float64 {
	return g.defaultHours
}

// TravelHours looks up the direct edge between a and b in either direction.
// Missing edges and unknown nodes yield DefaultHours rather than an error.
func (g *Graph) TravelHours(a, b string) float64 {
	if a == b {
		return 0
	}
	for _, n := range g.adj[a] {
		if n.code == b {
			return n.hours
		}
	}
	return g.defaultHours
}

// ShortestPath runs Dijkstra from origin to destination and returns the node
// codes along the cheapest path, endpoints included.
func (g *Graph) ShortestPath(origin, destination string) ([]string, float64, error) {
	if _, ok := g.byCode[origin]; !ok {
		return nil, 0, fmt.Errorf("origin %q: %w", origin, sentinel.ErrNotFound)
	}
	if _, ok := g.byCode[destination]; !ok {
		return nil, 0, fmt.Errorf("destination %q: %w", destination, sentinel.ErrNotFound)
	}
	if origin == destination {
		return []string{origin}, 0, nil
	}

	dist := make(map[string]float64, len(g.nodes))
	prev := make(map[string]string, len(g.nodes))
	for _, n := range g.nodes {
		dist[n.Code] = math.Inf(1)
	}
	dist[origin] = 0

	pq := &queue{{code: origin, dist: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(item)
		if cur.dist > dist[cur.code] {
			continue
		}
		if cur.code == destination {
			break
		}
		for _, n := range g.adj[cur.code] {
			nd := cur.dist + n.hours
			if nd < dist[n.code] {
				dist[n.code] = nd
				prev[n.code] = cur.code
				heap.Push(pq, item{code: n.code, dist: nd})
			}
		}
	}

	if math.IsInf(dist[destination], 1) {
		return nil, 0, fmt.Errorf("no route from %s to %s: %w", origin, destination, sentinel.ErrNotFound)
	}

	var path []string
	for node := destination; ; node = prev[node] {
		path = append(path, node)
		if node == origin {
			break
		}
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, dist[destination], nil
}

// PlanRoute builds route stops for the cheapest path, with expected arrival
// and ETA set to departAt plus the cumulative travel time.
func (g *Graph) PlanRoute(origin, destination string, departAt time.Time) ([]models.RouteStop, error) {
	path, _, err := g.ShortestPath(origin, destination)
	if err != nil {
		return nil, err
	}
	return g.StopsFor(path, departAt)
}

// StopsFor turns an explicit list of node codes into route stops.
func (g *Graph) StopsFor(codes []string, departAt time.Time) ([]models.RouteStop, error) {
	if len(codes) == 0 {
		return nil, fmt.Errorf("route must contain at least one stop: %w", sentinel.ErrValidation)
	}
	stops := make([]models.RouteStop, 0, len(codes))
	cumulative := 0.0
	for i, code := range codes {
		node, ok := g.byCode[code]
		if !ok {
			return nil, fmt.Errorf("location %q: %w", code, sentinel.ErrNotFound)
		}
		if i > 0 {
			cumulative += g.TravelHours(codes[i-1], code)
		}
		at := departAt.Add(Hours(cumulative))
		eta := at
		stops = append(stops, models.RouteStop{
			LocationCode:    code,
			Name:            node.Name,
			ExpectedArrival: &at,
			ETA:             &eta,
		})
	}
	return stops, nil
}

// RecomputeETAs sets the ETA of every stop after fromIndex to at plus the
// travel time accumulated from the stop at fromIndex.
func (g *Graph) RecomputeETAs(route []models.RouteStop, fromIndex int, at time.Time) {
	if fromIndex < 0 || fromIndex >= len(route) {
		return
	}
	cumulative := 0.0
	for i := fromIndex + 1; i < len(route); i++ {
		cumulative += g.TravelHours(route[i-1].LocationCode, route[i].LocationCode)
		eta := at.Add(Hours(cumulative))
		route[i].ETA = &eta
	}
}

// ShiftETAs moves the ETA of every stop after fromIndex by delta.
func ShiftETAs(route []models.RouteStop, fromIndex int, delta time.Duration) {
	for i := fromIndex + 1; i < len(route); i++ {
		route[i].ETA = shift(route[i].ETA, delta)
	}
}

// ShiftExpectedArrivals moves the planned arrival of every stop after
// fromIndex by delta, so a delay already reported is not reported again
// downstream.
func ShiftExpectedArrivals(route []models.RouteStop, fromIndex int, delta time.Duration) {
	for i := fromIndex + 1; i < len(route); i++ {
		route[i].ExpectedArrival = shift(route[i].ExpectedArrival, delta)
	}
}

// PropagateDelay ripples a delay at fromIndex through every later stop.
func PropagateDelay(route []models.RouteStop, fromIndex int, delta time.Duration) {
	ShiftETAs(route, fromIndex, delta)
	ShiftExpectedArrivals(route, fromIndex, delta)
}

func shift(t *time.Time, delta time.Duration) *time.Time {
	if t == nil {
		return nil
	}
	v := t.Add(delta)
	return &v
}

// Hours converts fractional hours to a duration.
func Hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// SortedCodes returns all node codes in lexical order.
func (g *Graph) SortedCodes() []string {
	codes := make([]string, 0, len(g.nodes))
	for _, n := range g.nodes {
		codes = append(codes, n.Code)
	}
	sort.Strings(codes)
	return codes
}

type item struct {
	code string
	dist float64
}

type queue []item

func (q queue) Len() int           { return len(q) }
func (q queue) Less(i, j int) bool { return q[i].dist < q[j].dist }
func (q queue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *queue) Push(x any)        { *q = append(*q, x.(item)) }
func (q *queue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}
