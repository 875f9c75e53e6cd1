package routegraph

// DefaultNodes is the synthetic Indian transit hub network.
func DefaultNodes() []Node {
	return []Node{
		{Code: "DEL", Name: "Delhi Hub", X: 350, Y: 80},
		{Code: "JAI", Name: "Jaipur Hub", X: 230, Y: 160},
		{Code: "LKO", Name: "Lucknow Hub", X: 490, Y: 120},
		{Code: "KNP", Name: "Kanpur Hub", X: 440, Y: 200},
		{Code: "AMD", Name: "Ahmedabad Hub", X: 140, Y: 310},
		{Code: "BPL", Name: "Bhopal Hub", X: 340, Y: 310},
		{Code: "KOL", Name: "Kolkata Hub", X: 620, Y: 340},
		{Code: "MUM", Name: "Mumbai Hub", X: 110, Y: 440},
		{Code: "PNQ", Name: "Pune Hub", X: 170, Y: 510},
		{Code: "NAG", Name: "Nagpur Hub", X: 390, Y: 400},
		{Code: "HYD", Name: "Hyderabad Hub", X: 340, Y: 530},
		{Code: "BBI", Name: "Bhubaneswar Hub", X: 560, Y: 470},
		{Code: "VTZ", Name: "Visakhapatnam Hub", X: 480, Y: 540},
		{Code: "BLR", Name: "Bangalore Hub", X: 290, Y: 660},
		{Code: "CHN", Name: "Chennai Hub", X: 410, Y: 670},
	}
}

// DefaultEdges are undirected; TravelHours looks them up both ways.
func DefaultEdges() []Edge {
	return []Edge{
		{From: "DEL", To: "JAI", TravelHours: 5},
		{From: "DEL", To: "LKO", TravelHours: 9},
		{From: "DEL", To: "KNP", TravelHours: 8},
		{From: "JAI", To: "AMD", TravelHours: 10},
		{From: "JAI", To: "BPL", TravelHours: 11},
		{From: "LKO", To: "KNP", TravelHours: 3},
		{From: "LKO", To: "KOL", TravelHours: 15},
		{From: "KNP", To: "BPL", TravelHours: 9},
		{From: "AMD", To: "MUM", TravelHours: 8},
		{From: "MUM", To: "PNQ", TravelHours: 3},
		{From: "PNQ", To: "BLR", TravelHours: 14},
		{From: "BPL", To: "NAG", TravelHours: 6},
		{From: "NAG", To: "HYD", TravelHours: 8},
		{From: "NAG", To: "KOL", TravelHours: 13},
		{From: "HYD", To: "BLR", TravelHours: 10},
		{From: "HYD", To: "VTZ", TravelHours: 9},
		{From: "BLR", To: "CHN", TravelHours: 6},
		{From: "CHN", To: "VTZ", TravelHours: 12},
		{From: "VTZ", To: "BBI", TravelHours: 7},
		{From: "BBI", To: "KOL", TravelHours: 8},
		{From: "MUM", To: "HYD", TravelHours: 13},
		{From: "PNQ", To: "HYD", TravelHours: 10},
	}
}
