package econ_model_client

const (
	// Default base URL of the economic model engine
	DefaultBaseURL = "http://localhost:8000"

	// Game endpoints
	InitGameEndpoint  = "/game/init"
	StartGameEndpoint = "/game/start"
	NextRoundEndpoint = "/game/next-round"
	StateEndpoint     = "/game/state"

	// Team endpoints
	CreateTeamEndpoint = "/teams/create"
	DecisionsEndpoint  = "/teams/decisions"
	TeamEndpoint       = "/teams/%s"
)
