package binance

// Base URLs
const (
	// Production endpoints
	BaseURLSpot = "https://api.binance.com"

	// Testnet endpoints
	BaseURLSpotTestnet = "https://testnet.binance.vision"
)

// API Endpoints
const (
	// Market data endpoints
	EndpointOrderBook = "/api/v3/depth"
)

// WebSocket URLs
const (
	// Production WebSocket endpoints
	WSBaseURL = "wss://stream.binance.com:9443"

	// Testnet WebSocket endpoints
	WSBaseURLTestnet = "wss://testnet.binance.vision"
)

// WebSocket Methods
const (
	WSMethodSubscribe   = "SUBSCRIBE"
	WSMethodUnsubscribe = "UNSUBSCRIBE"
)
