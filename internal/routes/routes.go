package routes

const (
	Health = "/health"
)
